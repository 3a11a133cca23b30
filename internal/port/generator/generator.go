// Package generator defines the port for the external code generation backend.
package generator

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable indicates the backend refused the call without trying,
// for example because its circuit breaker is open.
var ErrUnavailable = errors.New("generation backend unavailable")

// Prompt is one generation call.
type Prompt struct {
	Model  string
	System string
	User   string
}

// Backend produces file content for a prompt. Implementations perform a
// single attempt per call; retry policy belongs to the caller.
type Backend interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// StatusError is a non-2xx backend response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("generation backend status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status indicates a transient condition.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// IsRetryable reports whether err is worth another attempt. Transport
// errors are retryable; client errors (4xx except 429) are not.
func IsRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return err != nil
}
