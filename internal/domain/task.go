package domain

import "github.com/google/uuid"

// Callback receives the Result of a task that completed with 200 OK.
// A returned error is logged by the pool and does not abort the run.
type Callback func(r *Result) error

// Hook observes a task right before or after its Callback runs.
type Hook func(t *Task)

// Task is one URL fetch. It must not be modified after it was submitted.
type Task struct {
	ID         string
	URL        string
	OnComplete Callback
	Before     Hook
	After      Hook
}

type TaskOption func(*Task)

func WithID(id string) TaskOption {
	return func(t *Task) {
		if id != "" {
			t.ID = id
		}
	}
}

func WithHooks(before, after Hook) TaskOption {
	return func(t *Task) {
		t.Before = before
		t.After = after
	}
}

func NewTask(url string, onComplete Callback, opts ...TaskOption) *Task {
	t := &Task{
		ID:         uuid.NewString(),
		URL:        url,
		OnComplete: onComplete,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Ref is the serializable part of a Task, used by queues that leave the process.
type Ref struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (t *Task) Ref() Ref {
	return Ref{ID: t.ID, URL: t.URL}
}
