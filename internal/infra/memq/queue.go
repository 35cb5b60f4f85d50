package memq

import (
	"context"
	"fetchq/internal/domain"
	"fetchq/internal/ports"
	"sync"
)

var _ ports.WorkQueue = (*Queue)(nil)

// Queue is an in-process FIFO guarded by a single mutex.
type Queue struct {
	mu    sync.Mutex
	tasks []*domain.Task
	head  int
}

func New(tasks ...*domain.Task) *Queue {
	q := &Queue{}
	q.tasks = append(q.tasks, tasks...)
	return q
}

func (q *Queue) Push(_ context.Context, t *domain.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
	return nil
}

func (q *Queue) TryPop(_ context.Context) (*domain.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == len(q.tasks) {
		return nil, nil
	}
	t := q.tasks[q.head]
	q.tasks[q.head] = nil
	q.head++
	if q.head == len(q.tasks) {
		q.tasks = q.tasks[:0]
		q.head = 0
	}
	return t, nil
}

func (q *Queue) Size(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks) - q.head, nil
}
