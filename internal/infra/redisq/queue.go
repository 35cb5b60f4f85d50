package redisq

import (
	"context"
	"encoding/json"
	"errors"
	"fetchq/internal/domain"
	"fetchq/internal/ports"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

var _ ports.WorkQueue = (*Queue)(nil)

// Resolver turns an entry pushed by another process into a runnable task.
type Resolver func(ref domain.Ref) *domain.Task

type Option func(*Queue)

func WithResolver(r Resolver) Option {
	return func(q *Queue) { q.resolve = r }
}

// Queue is a work queue backed by a Redis list. LPOP is atomic on the server,
// so each entry reaches exactly one worker even across processes. Callbacks
// cannot travel through Redis; tasks pushed from this process keep theirs in
// a local registry.
type Queue struct {
	rdb     *redis.Client
	key     string
	resolve Resolver

	mu    sync.Mutex
	local map[string]*domain.Task
}

func NewQueue(rdb *redis.Client, key string, opts ...Option) *Queue {
	q := &Queue{
		rdb:   rdb,
		key:   key,
		local: make(map[string]*domain.Task),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) Push(ctx context.Context, t *domain.Task) error {
	b, err := json.Marshal(t.Ref())
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	q.mu.Lock()
	q.local[t.ID] = t
	q.mu.Unlock()

	if err := q.rdb.RPush(ctx, q.key, b).Err(); err != nil {
		q.mu.Lock()
		delete(q.local, t.ID)
		q.mu.Unlock()
		return fmt.Errorf("push task: %w", err)
	}
	return nil
}

// PushRef enqueues a bare reference for another process to pick up.
func (q *Queue) PushRef(ctx context.Context, ref domain.Ref) error {
	b, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.key, b).Err(); err != nil {
		return fmt.Errorf("push task: %w", err)
	}
	return nil
}

func (q *Queue) TryPop(ctx context.Context) (*domain.Task, error) {
	raw, err := q.rdb.LPop(ctx, q.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("pop task: %w", err)
	}

	var ref domain.Ref
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}

	q.mu.Lock()
	t, ok := q.local[ref.ID]
	delete(q.local, ref.ID)
	q.mu.Unlock()
	if ok {
		return t, nil
	}

	if q.resolve != nil {
		if t := q.resolve(ref); t != nil {
			return t, nil
		}
	}
	return domain.NewTask(ref.URL, nil, domain.WithID(ref.ID)), nil
}

func (q *Queue) Size(ctx context.Context) (int, error) {
	n, err := q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue size: %w", err)
	}
	return int(n), nil
}
