// Package broadcast defines the port for delivering job progress events to
// the caller that started the job.
package broadcast

import (
	"context"

	"github.com/lFer17/codebase-gen/internal/domain/generation"
)

// Sink delivers encoded progress events to one connection. A returned error
// means the connection is gone; no later Send will succeed.
type Sink interface {
	Send(ctx context.Context, ev generation.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev generation.Event) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, ev generation.Event) error {
	return f(ctx, ev)
}
