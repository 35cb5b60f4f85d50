package usecase

import (
	"context"
	"errors"
	"fetchq/internal/domain"
	"fetchq/internal/ports"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Outcome is what happened to a single task.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeSoftFailure
	OutcomeRetriesExhausted
	OutcomeTransportFailure
	OutcomeCallbackFailed
	OutcomeFatal
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeSoftFailure:
		return "soft_failure"
	case OutcomeRetriesExhausted:
		return "retries_exhausted"
	case OutcomeTransportFailure:
		return "transport_failure"
	case OutcomeCallbackFailed:
		return "callback_failed"
	case OutcomeFatal:
		return "fatal"
	default:
		return "skipped"
	}
}

// Tracer records the result of every successful exchange.
type Tracer interface {
	Trace(r *domain.Result) error
}

// Fetcher runs one task to completion: request, retry, classify, dispatch.
// A Fetcher is shared by all workers of a pool and must not be modified once in use.
type Fetcher struct {
	Transport ports.Transport
	Headers   []domain.Header
	Timeout   time.Duration
	Retry     RetryPolicy
	Limiter   *rate.Limiter
	Tracer    Tracer
	Log       zerolog.Logger
}

// Process executes t. The returned error is non-nil only when the whole run
// has to stop: an unexpected status, a panicking callback, or ctx ending.
func (f *Fetcher) Process(ctx context.Context, t *domain.Task) (Outcome, error) {
	logger := f.Log.With().Str("task", t.ID).Str("url", t.URL).Logger()

	retryCount := 0
	for {
		if f.Limiter != nil {
			if err := f.Limiter.Wait(ctx); err != nil {
				return OutcomeSkipped, err
			}
		}

		resp, err := f.Transport.Execute(ctx, ports.Request{
			URL:     t.URL,
			Headers: f.Headers,
			Timeout: f.Timeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				return OutcomeSkipped, ctx.Err()
			}
			logger.Warn().Err(err).Msg("transport failure, task dropped")
			return OutcomeTransportFailure, nil
		}

		switch Classify(resp.StatusCode) {
		case ClassRetryable:
			delay, ok := f.Retry.Next(retryCount)
			if !ok {
				logger.Warn().
					Int("status", resp.StatusCode).
					Str("reason", resp.Reason).
					Int("retries", retryCount).
					Msg("retries exhausted, task dropped")
				return OutcomeRetriesExhausted, nil
			}
			retryCount++
			logger.Warn().
				Int("status", resp.StatusCode).
				Str("reason", resp.Reason).
				Int("retry", retryCount).
				Dur("backoff", delay).
				Msg("retrying")
			if err := f.Retry.wait(ctx, delay); err != nil {
				return OutcomeSkipped, err
			}
			continue

		case ClassSoft:
			logger.Warn().Int("status", resp.StatusCode).Str("reason", resp.Reason).Msg("task dropped")
			return OutcomeSoftFailure, nil

		case ClassSuccess:
			return f.dispatch(t, domain.NewResult(t, resp), logger)

		default:
			logger.Error().
				Int("status", resp.StatusCode).
				Str("reason", resp.Reason).
				Str("proto", resp.Proto).
				Bytes("body", resp.Body).
				Msg("unexpected status")
			return OutcomeFatal, &domain.UnexpectedStatusError{
				URL:        t.URL,
				StatusCode: resp.StatusCode,
				Reason:     resp.Reason,
				Body:       resp.Body,
			}
		}
	}
}

// dispatch runs the hooks and the callback on the calling goroutine.
func (f *Fetcher) dispatch(t *domain.Task, r *domain.Result, logger zerolog.Logger) (outcome Outcome, err error) {
	defer func() {
		if v := recover(); v != nil {
			stack := debug.Stack()
			logger.Error().Interface("panic", v).Bytes("stack", stack).Msg("callback panicked")
			outcome = OutcomeFatal
			err = &domain.CallbackPanicError{TaskID: t.ID, URL: t.URL, Value: v, Stack: stack}
		}
	}()

	if f.Tracer != nil {
		if err := f.Tracer.Trace(r); err != nil {
			logger.Warn().Err(err).Msg("trace failed")
		}
	}

	if t.Before != nil {
		t.Before(t)
	}
	var cbErr error
	if t.OnComplete != nil {
		cbErr = t.OnComplete(r)
	} else {
		logger.Debug().Msg("no callback")
	}
	if t.After != nil {
		t.After(t)
	}

	if cbErr != nil {
		logger.Error().Err(cbErr).Msg("callback failed")
		return OutcomeCallbackFailed, nil
	}
	return OutcomeCompleted, nil
}

// IsFatal reports whether err came from a condition that aborts a run
// rather than from cancellation.
func IsFatal(err error) bool {
	var use *domain.UnexpectedStatusError
	var cpe *domain.CallbackPanicError
	return errors.As(err, &use) || errors.As(err, &cpe)
}
