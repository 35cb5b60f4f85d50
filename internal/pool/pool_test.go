package pool

import (
	"context"
	"fetchq/internal/domain"
	"fetchq/internal/infra/redisq"
	"fetchq/internal/ports"
	"fetchq/internal/testutils"
	"fetchq/internal/usecase"
	"fetchq/pkg/backoff"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRetry(sl *testutils.Sleeper) usecase.RetryPolicy {
	return usecase.RetryPolicy{
		MaxRetry: usecase.DefaultMaxRetry,
		Backoff:  backoff.Quadratic(time.Millisecond),
		Sleep:    sl.Sleep,
	}
}

// collector records completed URLs from any goroutine.
type collector struct {
	mu   sync.Mutex
	seen map[string]int
}

func newCollector() *collector { return &collector{seen: make(map[string]int)} }

func (c *collector) callback(r *domain.Result) error {
	c.mu.Lock()
	c.seen[r.Task.URL]++
	c.mu.Unlock()
	return nil
}

func (c *collector) count(url string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[url]
}

func (c *collector) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.seen {
		n += v
	}
	return n
}

func urls(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("http://example.test/%d", i)
	}
	return out
}

func bothModes(t *testing.T, fn func(t *testing.T, mode Mode)) {
	for _, mode := range []Mode{ModeBlocking, ModeAsync} {
		t.Run(mode.String(), func(t *testing.T) { fn(t, mode) })
	}
}

func TestPool_ExactlyOnce(t *testing.T) {
	bothModes(t, func(t *testing.T, mode Mode) {
		const n = 300
		tr := testutils.NewStubTransport()
		col := newCollector()
		p := New(tr, WithWorkers(8), WithMode(mode), WithMaxInFlight(16), WithRetryPolicy(testRetry(&testutils.Sleeper{})))

		for _, u := range urls(n) {
			tr.On(u, testutils.OK(u))
			require.NoError(t, p.Submit(context.Background(), domain.NewTask(u, col.callback)))
		}
		require.NoError(t, p.Run(context.Background()))

		assert.Equal(t, n, tr.TotalCalls())
		assert.Equal(t, n, col.total())
		for _, u := range urls(n) {
			assert.Equal(t, 1, tr.Calls(u), u)
			assert.Equal(t, 1, col.count(u), u)
		}

		sum := 0
		stats := p.Stats()
		require.Len(t, stats, 8)
		for i, ws := range stats {
			assert.Equal(t, fmt.Sprintf("TASK-%02d", i), ws.Name)
			sum += ws.Processed
		}
		assert.Equal(t, n, sum)

		s := p.Summary()
		assert.Equal(t, n, s.Total)
		assert.Equal(t, n, s.Popped)
		assert.Equal(t, n, s.Completed)
	})
}

func TestPool_SoftFailuresDoNotStopTheRun(t *testing.T) {
	bothModes(t, func(t *testing.T, mode Mode) {
		tr := testutils.NewStubTransport()
		col := newCollector()
		logs := &testutils.LogBuffer{}
		p := New(tr, WithWorkers(3), WithMode(mode), WithLogger(logs.Logger()), WithRetryPolicy(testRetry(&testutils.Sleeper{})))

		all := urls(20)
		for i, u := range all {
			switch i % 4 {
			case 0:
				tr.On(u, testutils.Status(404))
			case 1:
				tr.On(u, testutils.Status(400))
			default:
				tr.On(u, testutils.OK("ok"))
			}
			require.NoError(t, p.Submit(context.Background(), domain.NewTask(u, col.callback)))
		}

		require.NoError(t, p.Run(context.Background()))
		assert.Equal(t, 10, col.total())
		assert.Equal(t, 10, p.Summary().SoftFailures)
		assert.Equal(t, 10, logs.Count("warn", "task dropped"))
	})
}

func TestPool_TransportFailureDoesNotStopTheRun(t *testing.T) {
	tr := testutils.NewStubTransport().On("http://example.test/ok", testutils.OK("x"))
	col := newCollector()
	p := New(tr, WithWorkers(2))

	require.NoError(t, p.Submit(context.Background(), domain.NewTask("http://example.test/unscripted", col.callback)))
	require.NoError(t, p.Submit(context.Background(), domain.NewTask("http://example.test/ok", col.callback)))

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 1, col.total())
	assert.Equal(t, 1, p.Summary().TransportFailures)
}

// A:200, B:404, C:429 three times then 200, D:503.
func TestPool_MixedStatusScenario(t *testing.T) {
	const (
		a = "http://example.test/A"
		b = "http://example.test/B"
		c = "http://example.test/C"
		d = "http://example.test/D"
	)

	bothModes(t, func(t *testing.T, mode Mode) {
		tr := testutils.NewStubTransport().
			On(a, testutils.OK("a")).
			On(b, testutils.Status(404)).
			On(c, append(testutils.Times(testutils.Status(429), 3), testutils.OK("c"))...).
			On(d, testutils.Reply{Status: 503, Body: "down"})
		sl := &testutils.Sleeper{}
		col := newCollector()
		p := New(tr, WithWorkers(2), WithMode(mode), WithRetryPolicy(testRetry(sl)))

		for _, u := range []string{a, b, c, d} {
			require.NoError(t, p.Submit(context.Background(), domain.NewTask(u, col.callback)))
		}

		err := p.Run(context.Background())
		require.Error(t, err)

		var use *domain.UnexpectedStatusError
		require.ErrorAs(t, err, &use)
		assert.Equal(t, 503, use.StatusCode)
		assert.Equal(t, d, use.URL)

		assert.Equal(t, 1, col.count(a))
		assert.Equal(t, 0, col.count(b))
		assert.Equal(t, 1, col.count(c))
		assert.Equal(t, 0, col.count(d))
		assert.Equal(t, 4, tr.Calls(c))
		assert.Equal(t, []time.Duration{time.Millisecond, 4 * time.Millisecond, 9 * time.Millisecond}, sl.Delays())

		s := p.Summary()
		assert.Equal(t, 2, s.Completed)
		assert.Equal(t, 1, s.SoftFailures)
		assert.Equal(t, 1, s.Fatal)
	})
}

func TestPool_FatalStopsFurtherDequeues(t *testing.T) {
	tr := testutils.NewStubTransport().On("http://example.test/0", testutils.Status(503))
	col := newCollector()
	p := New(tr, WithWorkers(1))

	for _, u := range urls(5) {
		if u != "http://example.test/0" {
			tr.On(u, testutils.OK("x"))
		}
		require.NoError(t, p.Submit(context.Background(), domain.NewTask(u, col.callback)))
	}

	err := p.Run(context.Background())
	assert.True(t, usecase.IsFatal(err))
	assert.Equal(t, 1, tr.TotalCalls())
	assert.Equal(t, 0, col.total())
	assert.Equal(t, 1, p.Summary().Popped)
}

func TestPool_CallbackPanicAbortsRun(t *testing.T) {
	bothModes(t, func(t *testing.T, mode Mode) {
		tr := testutils.NewStubTransport().On("http://example.test/p", testutils.OK("x"))
		p := New(tr, WithMode(mode))
		require.NoError(t, p.Submit(context.Background(), domain.NewTask("http://example.test/p", func(*domain.Result) error {
			panic("callback exploded")
		})))

		err := p.Run(context.Background())
		var cpe *domain.CallbackPanicError
		require.ErrorAs(t, err, &cpe)
		assert.Equal(t, "callback exploded", cpe.Value)
	})
}

func TestPool_CallbackErrorIsCounted(t *testing.T) {
	tr := testutils.NewStubTransport().On("http://example.test/e", testutils.OK("x"))
	p := New(tr)
	require.NoError(t, p.Submit(context.Background(), domain.NewTask("http://example.test/e", func(*domain.Result) error {
		return assert.AnError
	})))

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 1, p.Summary().CallbackFailures)
}

func TestPool_EmptyQueue(t *testing.T) {
	bothModes(t, func(t *testing.T, mode Mode) {
		tr := testutils.NewStubTransport()
		p := New(tr, WithWorkers(4), WithMode(mode))

		done := make(chan error, 1)
		go func() { done <- p.Run(context.Background()) }()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("await did not return for an empty queue")
		}
		assert.Zero(t, tr.TotalCalls())
		for _, ws := range p.Stats() {
			assert.Zero(t, ws.Processed)
		}
	})
}

func TestPool_Lifecycle(t *testing.T) {
	tr := testutils.NewStubTransport()
	p := New(tr)

	assert.ErrorIs(t, p.Await(), ErrNotStarted)
	assert.ErrorIs(t, p.SetWorkerCount(0), ErrInvalidWorkerCount)
	require.NoError(t, p.SetWorkerCount(2))

	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyStarted)
	assert.ErrorIs(t, p.Submit(context.Background(), domain.NewTask("http://example.test/late", nil)), ErrAlreadyStarted)
	assert.ErrorIs(t, p.ConfigureHeader("X-Late", "1"), ErrAlreadyStarted)
	assert.ErrorIs(t, p.SetWorkerCount(3), ErrAlreadyStarted)

	require.NoError(t, p.Await())
	assert.ErrorIs(t, p.Await(), ErrAlreadyAwaited)
	assert.Len(t, p.Stats(), 2)
}

func TestPool_HeadersForwarded(t *testing.T) {
	tr := testutils.NewStubTransport().On("http://example.test/h", testutils.OK("x"))
	p := New(tr, WithHeader("User-Agent", "fetchq"), WithTimeout(5*time.Second))
	require.NoError(t, p.ConfigureHeader("Referer", "http://example.test/"))
	require.NoError(t, p.Submit(context.Background(), domain.NewTask("http://example.test/h", nil)))
	require.NoError(t, p.Run(context.Background()))

	reqs := tr.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, []domain.Header{
		{Name: "User-Agent", Value: "fetchq"},
		{Name: "Referer", Value: "http://example.test/"},
	}, reqs[0].Headers)
	assert.Equal(t, 5*time.Second, reqs[0].Timeout)
}

// gatedTransport blocks every request until released and tracks concurrency.
type gatedTransport struct {
	*testutils.StubTransport
	current, peak atomic.Int32
	delay         time.Duration
}

func (g *gatedTransport) Execute(ctx context.Context, req ports.Request) (*domain.Response, error) {
	n := g.current.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(g.delay)
	g.current.Add(-1)
	return g.StubTransport.Execute(ctx, req)
}

func TestPool_AsyncMaxInFlight(t *testing.T) {
	g := &gatedTransport{StubTransport: testutils.NewStubTransport(), delay: 5 * time.Millisecond}
	col := newCollector()
	p := New(g, WithWorkers(4), WithMode(ModeAsync), WithMaxInFlight(3))

	for _, u := range urls(40) {
		g.On(u, testutils.OK("x"))
		require.NoError(t, p.Submit(context.Background(), domain.NewTask(u, col.callback)))
	}
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, 40, col.total())
	assert.LessOrEqual(t, g.peak.Load(), int32(3))
}

func TestPool_Observer(t *testing.T) {
	tr := testutils.NewStubTransport().
		On("http://example.test/ok", testutils.OK("x")).
		On("http://example.test/missing", testutils.Status(404))

	var mu sync.Mutex
	got := map[string]usecase.Outcome{}
	p := New(tr, WithWorkers(2), WithObserver(func(t *domain.Task, o usecase.Outcome) {
		mu.Lock()
		got[t.URL] = o
		mu.Unlock()
	}))
	require.NoError(t, p.Submit(context.Background(), domain.NewTask("http://example.test/ok", nil)))
	require.NoError(t, p.Submit(context.Background(), domain.NewTask("http://example.test/missing", nil)))
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, map[string]usecase.Outcome{
		"http://example.test/ok":      usecase.OutcomeCompleted,
		"http://example.test/missing": usecase.OutcomeSoftFailure,
	}, got)
}

type closingTransport struct {
	*testutils.StubTransport
	closed bool
}

func (c *closingTransport) Close() error {
	c.closed = true
	return nil
}

func TestPool_OwnedTransportClosed(t *testing.T) {
	ct := &closingTransport{StubTransport: testutils.NewStubTransport()}
	require.NoError(t, New(ct, WithOwnedTransport()).Run(context.Background()))
	assert.True(t, ct.closed)

	ct = &closingTransport{StubTransport: testutils.NewStubTransport()}
	require.NoError(t, New(ct).Run(context.Background()))
	assert.False(t, ct.closed)
}

func TestPool_RedisQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	bothModes(t, func(t *testing.T, mode Mode) {
		key := "fetchq:test:" + mode.String()
		tr := testutils.NewStubTransport()
		col := newCollector()
		p := New(tr, WithQueue(redisq.NewQueue(rdb, key)), WithWorkers(4), WithMode(mode))

		for _, u := range urls(25) {
			tr.On(u, testutils.OK("x"))
			require.NoError(t, p.Submit(context.Background(), domain.NewTask(u, col.callback)))
		}
		require.NoError(t, p.Run(context.Background()))

		assert.Equal(t, 25, col.total())
		n, err := rdb.LLen(context.Background(), key).Result()
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestPool_CancelledContext(t *testing.T) {
	tr := testutils.NewStubTransport()
	p := New(tr, WithWorkers(2))
	for _, u := range urls(3) {
		tr.On(u, testutils.OK("x"))
		require.NoError(t, p.Submit(context.Background(), domain.NewTask(u, nil)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, tr.TotalCalls())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("ASYNC")
	require.NoError(t, err)
	assert.Equal(t, ModeAsync, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeBlocking, m)

	_, err = ParseMode("parallel")
	assert.Error(t, err)
}

func TestFormatWorkerLines(t *testing.T) {
	stats := make([]WorkerStats, 12)
	for i := range stats {
		stats[i] = WorkerStats{Name: fmt.Sprintf("TASK-%02d", i), Processed: i}
	}
	lines := formatWorkerLines(stats)
	require.Len(t, lines, 2)
	assert.Equal(t, "TASK-00    0   1   2   3   4   5   6   7   8   9", lines[0])
	assert.Equal(t, "TASK-10   10  11", lines[1])
}

func TestPool_AsyncFatalDequeuesNothingMore(t *testing.T) {
	tr := testutils.NewStubTransport()
	col := newCollector()
	p := New(tr, WithWorkers(2), WithMode(ModeAsync), WithMaxInFlight(1))

	for i, u := range urls(6) {
		if i == 0 {
			tr.On(u, testutils.Status(503))
		} else {
			tr.On(u, testutils.OK("x"))
		}
		require.NoError(t, p.Submit(context.Background(), domain.NewTask(u, col.callback)))
	}

	err := p.Run(context.Background())
	assert.True(t, usecase.IsFatal(err))
	assert.Equal(t, 1, tr.TotalCalls())
	assert.Equal(t, 1, p.Summary().Popped)
	assert.Zero(t, col.total())
}
