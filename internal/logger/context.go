package logger

import (
	"context"
	"log/slog"
)

type contextKey struct{}

var jobIDKey = contextKey{}

// WithJobID returns a new context carrying the generation job ID.
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// JobID extracts the job ID from the context.
// Returns an empty string if no job ID is set.
func JobID(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey).(string)
	return id
}

// FromContext returns the default logger, tagged with the job ID when ctx has one.
func FromContext(ctx context.Context) *slog.Logger {
	if id := JobID(ctx); id != "" {
		return slog.Default().With("job_id", id)
	}
	return slog.Default()
}
