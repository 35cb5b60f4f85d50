// Package pool runs fetch tasks from a shared work queue on a fixed set of workers.
//
// A Pool is single use: configure it, Submit tasks, Start, then Await.
//
//	p := pool.New(transport, pool.WithWorkers(4), pool.WithHeader("User-Agent", ua))
//	for _, u := range urls {
//	    _ = p.Submit(ctx, domain.NewTask(u, onComplete))
//	}
//	if err := p.Run(ctx); err != nil {
//	    // an unexpected status or a panicking callback aborted the run
//	}
//
// In ModeBlocking every worker goroutine has at most one request in flight.
// In ModeAsync the workers only dispatch: each popped task runs on its own
// goroutine, bounded by WithMaxInFlight, and Await waits on a countdown latch
// sized to the number of queued tasks.
package pool

import (
	"context"
	"errors"
	"fetchq/internal/domain"
	"fetchq/internal/infra/memq"
	"fetchq/internal/ports"
	"fetchq/internal/usecase"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

var (
	ErrAlreadyStarted     = errors.New("pool: already started")
	ErrNotStarted         = errors.New("pool: not started")
	ErrAlreadyAwaited     = errors.New("pool: already awaited")
	ErrInvalidWorkerCount = errors.New("pool: worker count must be at least 1")
)

type Mode int

const (
	ModeBlocking Mode = iota
	ModeAsync
)

func (m Mode) String() string {
	if m == ModeAsync {
		return "async"
	}
	return "blocking"
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "blocking", "sync":
		return ModeBlocking, nil
	case "async":
		return ModeAsync, nil
	default:
		return ModeBlocking, fmt.Errorf("pool: unknown mode %q", s)
	}
}

const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxInFlight = 64

	blockingProgressEvery = 100
	asyncProgressEvery    = 1000
)

// Observer is told the outcome of every task the pool took off the queue.
// It runs on the goroutine that processed the task.
type Observer func(t *domain.Task, outcome usecase.Outcome)

type state int

const (
	stateIdle state = iota
	stateStarted
	stateAwaited
)

type Pool struct {
	transport     ports.Transport
	ownTransport  bool
	queue         ports.WorkQueue
	workers       int
	mode          Mode
	maxInFlight   int
	timeout       time.Duration
	headers       []domain.Header
	retry         usecase.RetryPolicy
	progressEvery int
	limiter       *rate.Limiter
	tracer        usecase.Tracer
	observer      Observer
	log           zerolog.Logger

	mu    sync.Mutex
	state state

	fetcher  *usecase.Fetcher
	group    errgroup.Group
	inflight *semaphore.Weighted
	latch    *latch
	total    int
	popped   atomic.Int64
	workerSt []*workerStats
	outcomes [OutcomeKinds]atomic.Int64

	aborted atomic.Bool
	errMu   sync.Mutex
	err     error
}

// OutcomeKinds is the number of distinct usecase.Outcome values.
const OutcomeKinds = int(usecase.OutcomeSkipped) + 1

type workerStats struct {
	name      string
	processed atomic.Int64
}

func New(transport ports.Transport, opts ...Option) *Pool {
	p := &Pool{
		transport:   transport,
		queue:       memq.New(),
		workers:     1,
		maxInFlight: DefaultMaxInFlight,
		timeout:     DefaultTimeout,
		retry:       usecase.DefaultRetryPolicy(),
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit queues t. Only valid before Start.
func (p *Pool) Submit(ctx context.Context, t *domain.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != stateIdle {
		return ErrAlreadyStarted
	}
	return p.queue.Push(ctx, t)
}

// ConfigureHeader adds a header sent with every request. Only valid before Start.
func (p *Pool) ConfigureHeader(name, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != stateIdle {
		return ErrAlreadyStarted
	}
	p.headers = append(p.headers, domain.Header{Name: name, Value: value})
	return nil
}

func (p *Pool) SetWorkerCount(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != stateIdle {
		return ErrAlreadyStarted
	}
	if n < 1 {
		return ErrInvalidWorkerCount
	}
	p.workers = n
	return nil
}

// Start snapshots the queue size and launches the workers. It does not block.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != stateIdle {
		return ErrAlreadyStarted
	}

	total, err := p.queue.Size(ctx)
	if err != nil {
		return fmt.Errorf("pool: queue size: %w", err)
	}

	p.total = total
	p.state = stateStarted
	p.fetcher = &usecase.Fetcher{
		Transport: p.transport,
		Headers:   append([]domain.Header(nil), p.headers...),
		Timeout:   p.timeout,
		Retry:     p.retry,
		Limiter:   p.limiter,
		Tracer:    p.tracer,
		Log:       p.log,
	}
	if p.progressEvery == 0 {
		p.progressEvery = blockingProgressEvery
		if p.mode == ModeAsync {
			p.progressEvery = asyncProgressEvery
		}
	}

	p.workerSt = make([]*workerStats, p.workers)
	for i := range p.workerSt {
		p.workerSt[i] = &workerStats{name: fmt.Sprintf("TASK-%02d", i)}
	}

	p.log.Info().
		Int("workers", p.workers).
		Int("total", total).
		Str("mode", p.mode.String()).
		Msg("pool started")

	switch p.mode {
	case ModeAsync:
		p.latch = newLatch(total)
		p.inflight = semaphore.NewWeighted(int64(max(p.maxInFlight, 1)))
		for i := range p.workers {
			p.group.Go(func() error { return p.dispatch(ctx, i) })
		}
	default:
		for i := range p.workers {
			p.group.Go(func() error { return p.work(ctx, i) })
		}
	}
	return nil
}

// Await blocks until every task taken from the queue has been processed and
// all workers have stopped. It returns the error that aborted the run, if any.
func (p *Pool) Await() error {
	p.mu.Lock()
	switch p.state {
	case stateIdle:
		p.mu.Unlock()
		return ErrNotStarted
	case stateAwaited:
		p.mu.Unlock()
		return ErrAlreadyAwaited
	}
	p.state = stateAwaited
	p.mu.Unlock()

	groupErr := p.group.Wait()
	if p.mode == ModeAsync {
		// tasks never taken off the queue will not count down
		if n := p.total - int(p.popped.Load()); n > 0 {
			p.latch.Add(-n)
		}
		p.latch.Wait()
	}

	p.logSummary()

	if p.ownTransport {
		if c, ok := p.transport.(io.Closer); ok {
			if err := c.Close(); err != nil {
				p.log.Warn().Err(err).Msg("close transport")
			}
		}
	}

	if err := p.firstError(); err != nil {
		return err
	}
	return groupErr
}

// Run is Start followed by Await.
func (p *Pool) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	return p.Await()
}

// fail records the first run-aborting error and stops further dequeues.
func (p *Pool) fail(err error) {
	p.errMu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.errMu.Unlock()
	p.aborted.Store(true)
}

func (p *Pool) firstError() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

// next pops a task unless the run is over. A nil task means the caller should stop.
func (p *Pool) next(ctx context.Context, id int) (*domain.Task, error) {
	if p.aborted.Load() {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, err := p.queue.TryPop(ctx)
	if err != nil {
		err = fmt.Errorf("pool: pop task: %w", err)
		p.fail(err)
		return nil, err
	}
	if t == nil {
		return nil, nil
	}

	ws := p.workerSt[id]
	processed := ws.processed.Add(1)
	count := int(p.popped.Add(1))
	if p.latch != nil && count > p.total {
		// pushed after Start by another producer
		p.latch.Add(1)
	}
	if p.progressEvery > 0 && count%p.progressEvery == 0 {
		p.log.Info().
			Str("worker", ws.name).
			Int64("processed", processed).
			Msgf("%4d / %4d  %s", count, p.total, t.URL)
	}
	return t, nil
}

func (p *Pool) record(t *domain.Task, outcome usecase.Outcome) {
	p.outcomes[outcome].Add(1)
	if p.observer != nil {
		p.observer(t, outcome)
	}
}
