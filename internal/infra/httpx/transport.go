// Package httpx implements the fetch transport on top of net/http.
package httpx

import (
	"context"
	"fetchq/internal/domain"
	"fetchq/internal/ports"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var _ ports.Transport = (*Transport)(nil)

// Error is an I/O level failure: the exchange produced no usable response.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("transport: %s: %v", e.URL, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

type Options struct {
	// MaxIdleConnsPerHost bounds the idle connection pool per host.
	// Default: 50
	MaxIdleConnsPerHost int

	// IdleConnTimeout closes idle connections after this long.
	// Default: 90s
	IdleConnTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost: 50,
		IdleConnTimeout:     90 * time.Second,
	}
}

// Transport issues GET requests. The connection pool is shared by all callers.
type Transport struct {
	client *http.Client
	base   *http.Transport
}

func New(opts Options) *Transport {
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = DefaultOptions().MaxIdleConnsPerHost
	}
	if opts.IdleConnTimeout <= 0 {
		opts.IdleConnTimeout = DefaultOptions().IdleConnTimeout
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.MaxIdleConnsPerHost = opts.MaxIdleConnsPerHost
	base.MaxIdleConns = opts.MaxIdleConnsPerHost * 2
	base.IdleConnTimeout = opts.IdleConnTimeout

	return &Transport{
		client: &http.Client{Transport: base},
		base:   base,
	}
}

func (t *Transport) Execute(ctx context.Context, req ports.Request) (*domain.Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, &Error{URL: req.URL, Err: fmt.Errorf("create request: %w", err)}
	}
	for _, h := range req.Headers {
		hreq.Header.Add(h.Name, h.Value)
	}

	resp, err := t.client.Do(hreq)
	if err != nil {
		return nil, &Error{URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{URL: req.URL, Err: fmt.Errorf("read body: %w", err)}
	}

	out := &domain.Response{
		StatusCode: resp.StatusCode,
		Reason:     reasonPhrase(resp),
		Proto:      resp.Proto,
		Body:       body,
	}
	for name, values := range resp.Header {
		for _, v := range values {
			out.Headers = append(out.Headers, domain.Header{Name: name, Value: v})
		}
	}
	return out, nil
}

// Close releases idle connections.
func (t *Transport) Close() error {
	t.base.CloseIdleConnections()
	return nil
}

// reasonPhrase strips the numeric code from resp.Status ("404 Not Found").
func reasonPhrase(resp *http.Response) string {
	if _, reason, ok := strings.Cut(resp.Status, " "); ok {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}
