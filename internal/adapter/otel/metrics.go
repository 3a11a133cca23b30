package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "codebase-gen"

// Metrics holds all codebase-gen metric instruments. A nil *Metrics records
// nothing, so components can run without telemetry.
type Metrics struct {
	JobsStarted   metric.Int64Counter
	JobsFinished  metric.Int64Counter
	JobsRejected  metric.Int64Counter
	UnitsFinished metric.Int64Counter
	JobDuration   metric.Float64Histogram
	UnitDuration  metric.Float64Histogram
	ArchiveBytes  metric.Int64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsFrom(otel.GetMeterProvider())
}

// NewMetricsFrom creates all metric instruments on mp.
func NewMetricsFrom(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	m.JobsStarted, err = meter.Int64Counter("codebasegen.jobs.started",
		metric.WithDescription("Number of generation jobs admitted"))
	if err != nil {
		return nil, err
	}

	m.JobsFinished, err = meter.Int64Counter("codebasegen.jobs.finished",
		metric.WithDescription("Number of generation jobs settled, by final state"))
	if err != nil {
		return nil, err
	}

	m.JobsRejected, err = meter.Int64Counter("codebasegen.jobs.rejected",
		metric.WithDescription("Number of requests rejected before a job was created"))
	if err != nil {
		return nil, err
	}

	m.UnitsFinished, err = meter.Int64Counter("codebasegen.units.finished",
		metric.WithDescription("Number of work units settled, by outcome"))
	if err != nil {
		return nil, err
	}

	m.JobDuration, err = meter.Float64Histogram("codebasegen.job.duration_seconds",
		metric.WithDescription("Job duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.UnitDuration, err = meter.Float64Histogram("codebasegen.unit.duration_seconds",
		metric.WithDescription("Work unit duration in seconds, including retries"))
	if err != nil {
		return nil, err
	}

	m.ArchiveBytes, err = meter.Int64Histogram("codebasegen.archive.bytes",
		metric.WithDescription("Size of stored archives"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// JobStarted records an admitted job.
func (m *Metrics) JobStarted(ctx context.Context, template, language string) {
	if m == nil {
		return
	}
	m.JobsStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("template", template),
		attribute.String("language", language),
	))
}

// JobFinished records a settled job and its duration.
func (m *Metrics) JobFinished(ctx context.Context, state string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("state", state))
	m.JobsFinished.Add(ctx, 1, attrs)
	m.JobDuration.Record(ctx, d.Seconds(), attrs)
}

// JobRejected records a request refused before admission.
func (m *Metrics) JobRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.JobsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// UnitFinished records a settled unit. cause is empty on success.
func (m *Metrics) UnitFinished(ctx context.Context, cause string, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "succeeded"
	if cause != "" {
		outcome = "failed"
	}
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("cause", cause),
	)
	m.UnitsFinished.Add(ctx, 1, attrs)
	m.UnitDuration.Record(ctx, d.Seconds(), attrs)
}

// ArchiveStored records the size of a stored archive.
func (m *Metrics) ArchiveStored(ctx context.Context, size int64) {
	if m == nil {
		return
	}
	m.ArchiveBytes.Record(ctx, size)
}
