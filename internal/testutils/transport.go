// Package testutils provides scripted transports for tests.
package testutils

import (
	"context"
	"errors"
	"fetchq/internal/domain"
	"fetchq/internal/ports"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Reply is one scripted exchange. Err, when set, is returned instead of a response.
type Reply struct {
	Status      int
	Body        string
	ContentType string
	Err         error
}

func OK(body string) Reply {
	return Reply{Status: http.StatusOK, Body: body, ContentType: "text/plain"}
}

func Status(code int) Reply { return Reply{Status: code} }

// Times repeats r n times.
func Times(r Reply, n int) []Reply {
	out := make([]Reply, n)
	for i := range out {
		out[i] = r
	}
	return out
}

var ErrUnscripted = errors.New("testutils: no reply scripted for url")

// StubTransport replays scripted replies per URL. The last reply of a script repeats.
type StubTransport struct {
	mu       sync.Mutex
	scripts  map[string][]Reply
	calls    map[string]int
	requests []ports.Request
}

func NewStubTransport() *StubTransport {
	return &StubTransport{
		scripts: make(map[string][]Reply),
		calls:   make(map[string]int),
	}
}

func (s *StubTransport) On(url string, replies ...Reply) *StubTransport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[url] = append(s.scripts[url], replies...)
	return s
}

func (s *StubTransport) Execute(ctx context.Context, req ports.Request) (*domain.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	script := s.scripts[req.URL]
	n := s.calls[req.URL]
	s.calls[req.URL] = n + 1
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if len(script) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnscripted, req.URL)
	}
	r := script[min(n, len(script)-1)]
	if r.Err != nil {
		return nil, r.Err
	}

	resp := &domain.Response{
		StatusCode: r.Status,
		Reason:     http.StatusText(r.Status),
		Proto:      "HTTP/1.1",
		Body:       []byte(r.Body),
	}
	if r.ContentType != "" {
		resp.Headers = append(resp.Headers, domain.Header{Name: "Content-Type", Value: r.ContentType})
	}
	return resp, nil
}

// Calls returns how many times url was requested.
func (s *StubTransport) Calls(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[url]
}

func (s *StubTransport) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *StubTransport) Requests() []ports.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.Request(nil), s.requests...)
}

// Sleeper records retry waits instead of sleeping.
type Sleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *Sleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *Sleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func (s *Sleeper) Total() time.Duration {
	var sum time.Duration
	for _, d := range s.Delays() {
		sum += d
	}
	return sum
}
