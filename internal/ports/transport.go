package ports

import (
	"context"
	"fetchq/internal/domain"
	"time"
)

type Request struct {
	URL     string
	Headers []domain.Header
	Timeout time.Duration
}

// Transport performs a single GET exchange. Implementations must be safe for concurrent use.
type Transport interface {
	Execute(ctx context.Context, req Request) (*domain.Response, error)
}
