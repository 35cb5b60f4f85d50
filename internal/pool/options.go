package pool

import (
	"fetchq/internal/domain"
	"fetchq/internal/ports"
	"fetchq/internal/usecase"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithQueue replaces the default in-memory queue.
func WithQueue(q ports.WorkQueue) Option {
	return func(p *Pool) {
		if q != nil {
			p.queue = q
		}
	}
}

// WithWorkers sets the number of workers. Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithMode(m Mode) Option {
	return func(p *Pool) { p.mode = m }
}

// WithMaxInFlight bounds concurrent requests in ModeAsync.
func WithMaxInFlight(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.maxInFlight = n
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithHeader(name, value string) Option {
	return func(p *Pool) {
		p.headers = append(p.headers, domain.Header{Name: name, Value: value})
	}
}

func WithRetryPolicy(rp usecase.RetryPolicy) Option {
	return func(p *Pool) { p.retry = rp }
}

// WithProgressEvery logs a progress line every n dequeued tasks. Negative disables it.
// The default is 100 for ModeBlocking and 1000 for ModeAsync.
func WithProgressEvery(n int) Option {
	return func(p *Pool) { p.progressEvery = n }
}

// WithRateLimit caps requests per second across all workers, retries included.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(p *Pool) {
		if perSecond > 0 && burst > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

func WithTracer(t usecase.Tracer) Option {
	return func(p *Pool) { p.tracer = t }
}

func WithObserver(o Observer) Option {
	return func(p *Pool) { p.observer = o }
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Pool) { p.log = l.With().Str("component", "pool").Logger() }
}

// WithOwnedTransport makes Await close the transport if it implements io.Closer.
func WithOwnedTransport() Option {
	return func(p *Pool) { p.ownTransport = true }
}
