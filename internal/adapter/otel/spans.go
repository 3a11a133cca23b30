package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "codebase-gen"

// StartJobSpan starts a span covering one generation job.
func StartJobSpan(ctx context.Context, jobID, template, language string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "job",
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.String("job.template", template),
			attribute.String("job.language", language),
		),
	)
}

// StartUnitSpan starts a span for one attempt at a work unit.
func StartUnitSpan(ctx context.Context, unitID string, attempt int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "unit",
		trace.WithAttributes(
			attribute.String("unit.id", unitID),
			attribute.Int("unit.attempt", attempt),
		),
	)
}

// StartArchiveSpan starts a span for building and storing a job's archive.
func StartArchiveSpan(ctx context.Context, jobID string, files int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "archive",
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.Int("archive.files", files),
		),
	)
}
