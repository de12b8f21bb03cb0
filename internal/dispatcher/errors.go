package dispatcher

import (
	"errors"
	"fmt"
)

var ErrDispatchFailed = errors.New("dispatch-failed")

// DispatchError records one output that could not be handed to the sink.
type DispatchError struct {
	Name     string
	Attempts int
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s: %s after %d attempt(s): %v", ErrDispatchFailed, e.Name, e.Attempts, e.Err)
}

func (e *DispatchError) Unwrap() []error { return []error{ErrDispatchFailed, e.Err} }

// HTTPError represents a non-2xx answer from an HTTP based sink
type HTTPError struct {
	StatusCode int
	Body       string
	Target     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.Target, e.Body)
}

func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

// ValidationError represents a fatal, non-retryable rejection
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}
