package usecase

import (
	"context"
	"fetchq/internal/domain"
	"fetchq/internal/ports"
	"fmt"
	"net/url"
	"strings"
)

// CallbackFactory builds the completion callback for a URL.
type CallbackFactory func(rawURL string) domain.Callback

type Enqueuer struct {
	Q ports.WorkQueue
}

// URLs validates and pushes every URL in order. Blank entries and lines
// starting with '#' are skipped.
func (e Enqueuer) URLs(ctx context.Context, urls []string, newCallback CallbackFactory) ([]*domain.Task, error) {
	tasks := make([]*domain.Task, 0, len(urls))
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		if err := ValidateURL(raw); err != nil {
			return tasks, err
		}

		var cb domain.Callback
		if newCallback != nil {
			cb = newCallback(raw)
		}
		t := domain.NewTask(raw, cb)
		if err := e.Q.Push(ctx, t); err != nil {
			return tasks, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", raw)
	}
	return nil
}
