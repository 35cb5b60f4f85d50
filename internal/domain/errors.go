package domain

import "fmt"

// UnexpectedStatusError aborts a run. It is raised for any status outside
// 200, 400, 404, 429 and 500.
type UnexpectedStatusError struct {
	URL        string
	StatusCode int
	Reason     string
	Body       []byte
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s for %s", e.StatusCode, e.Reason, e.URL)
}

// CallbackPanicError is returned when a task callback or hook panicked.
type CallbackPanicError struct {
	TaskID string
	URL    string
	Value  any
	Stack  []byte
}

func (e *CallbackPanicError) Error() string {
	return fmt.Sprintf("callback panic for task %s (%s): %v", e.TaskID, e.URL, e.Value)
}
