package otel_test

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	cfotel "github.com/lFer17/codebase-gen/internal/adapter/otel"
	"github.com/lFer17/codebase-gen/internal/config"
)

func TestMetricsRecord(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	m, err := cfotel.NewMetricsFrom(mp)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	m.JobStarted(ctx, "rest-api", "go")
	m.UnitFinished(ctx, "", time.Second)
	m.UnitFinished(ctx, "timeout", time.Second)
	m.JobFinished(ctx, "failed", 2*time.Second)
	m.ArchiveStored(ctx, 1024)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			names[md.Name] = true
		}
	}
	for _, want := range []string{
		"codebasegen.jobs.started",
		"codebasegen.jobs.finished",
		"codebasegen.units.finished",
		"codebasegen.unit.duration_seconds",
		"codebasegen.archive.bytes",
	} {
		if !names[want] {
			t.Errorf("metric %s not collected", want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *cfotel.Metrics
	ctx := context.Background()
	m.JobStarted(ctx, "a", "b")
	m.JobFinished(ctx, "completed", time.Second)
	m.JobRejected(ctx, "capacity")
	m.UnitFinished(ctx, "", time.Second)
	m.ArchiveStored(ctx, 1)
}

func TestSpansUseGlobalProvider(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	ctx, job := cfotel.StartJobSpan(context.Background(), "job-1", "rest-api", "go")
	_, unit := cfotel.StartUnitSpan(ctx, "main.go", 1)
	unit.End()
	job.End()

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	if spans[0].Name() != "unit" || spans[1].Name() != "job" {
		t.Errorf("span names = %s, %s", spans[0].Name(), spans[1].Name())
	}
	if spans[0].Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Error("unit span should be a child of the job span")
	}
}

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := cfotel.Setup(context.Background(), config.Telemetry{}, "test")
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}
