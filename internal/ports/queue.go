package ports

import (
	"context"
	"fetchq/internal/domain"
)

// WorkQueue is the pending-task FIFO shared by all workers of one pool.
type WorkQueue interface {
	Push(ctx context.Context, t *domain.Task) error
	// TryPop hands each task to exactly one caller. It returns a nil task once the queue is empty.
	TryPop(ctx context.Context) (*domain.Task, error)
	Size(ctx context.Context) (int, error)
}
