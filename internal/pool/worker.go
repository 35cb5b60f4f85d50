package pool

import "context"

// work is the blocking worker loop: pop, execute, dispatch, repeat until the queue is empty.
func (p *Pool) work(ctx context.Context, id int) error {
	for {
		t, err := p.next(ctx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return nil
		}

		outcome, err := p.fetcher.Process(ctx, t)
		p.record(t, outcome)
		if err != nil {
			p.fail(err)
			return err
		}
	}
}
