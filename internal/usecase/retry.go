package usecase

import (
	"context"
	"fetchq/pkg/backoff"
	"net/http"
	"time"
)

const DefaultMaxRetry = 10

// Class is the handling category of an HTTP status code.
type Class int

const (
	ClassSuccess Class = iota
	ClassRetryable
	ClassSoft
	ClassUnexpected
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassRetryable:
		return "retryable"
	case ClassSoft:
		return "soft"
	default:
		return "unexpected"
	}
}

func Classify(code int) Class {
	switch code {
	case http.StatusOK:
		return ClassSuccess
	case http.StatusTooManyRequests, http.StatusInternalServerError:
		return ClassRetryable
	case http.StatusBadRequest, http.StatusNotFound:
		return ClassSoft
	default:
		return ClassUnexpected
	}
}

// RetryPolicy bounds how often a retryable status is retried and how long to wait in between.
type RetryPolicy struct {
	MaxRetry int
	Backoff  backoff.Func
	// Sleep waits for d or until ctx is done. Nil means a timer based wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetry: DefaultMaxRetry,
		Backoff:  backoff.Quadratic(time.Second),
	}
}

// Next reports whether another attempt is allowed after retryCount retries,
// and the delay to wait before it.
func (p RetryPolicy) Next(retryCount int) (time.Duration, bool) {
	if retryCount >= p.MaxRetry {
		return 0, false
	}
	if p.Backoff == nil {
		return 0, true
	}
	return p.Backoff(retryCount + 1), true
}

func (p RetryPolicy) wait(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
