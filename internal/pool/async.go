package pool

import (
	"context"
	"fetchq/internal/domain"
)

// dispatch reserves an in-flight slot, then pops a task and hands it to its own
// goroutine, keeping at most maxInFlight requests running. A task is only
// taken off the queue once a slot is free. Completion is tracked by the latch,
// not by this loop returning.
func (p *Pool) dispatch(ctx context.Context, id int) error {
	for {
		if err := p.inflight.Acquire(ctx, 1); err != nil {
			return err
		}

		t, err := p.next(ctx, id)
		if err != nil || t == nil {
			p.inflight.Release(1)
			return err
		}
		go p.execute(ctx, t)
	}
}

func (p *Pool) execute(ctx context.Context, t *domain.Task) {
	defer p.inflight.Release(1)
	defer p.latch.CountDown()

	outcome, err := p.fetcher.Process(ctx, t)
	p.record(t, outcome)
	if err != nil {
		p.fail(err)
	}
}
