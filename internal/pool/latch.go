package pool

import "sync"

// latch is a countdown that can also grow, released when it reaches zero.
type latch struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

func newLatch(n int) *latch {
	l := &latch{count: n}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *latch) CountDown() { l.Add(-1) }

func (l *latch) Add(delta int) {
	l.mu.Lock()
	l.count += delta
	if l.count <= 0 {
		l.cond.Broadcast()
	}
	l.mu.Unlock()
}

func (l *latch) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func (l *latch) Wait() {
	l.mu.Lock()
	for l.count > 0 {
		l.cond.Wait()
	}
	l.mu.Unlock()
}
