package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records orchestration runtime metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordStep records one machine.Step call's duration and error status.
	RecordStep(ctx context.Context, source string, duration time.Duration, err error)

	// RecordExecute records one orchestrator.Execute call's completion.
	RecordExecute(ctx context.Context, outcome string, duration time.Duration)

	// RecordEmit records the size of a persisted snapshot or emitted payload.
	RecordEmit(ctx context.Context, eventType string, sizeBytes int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	stepExecutions metric.Int64Counter
	stepLatency    metric.Float64Histogram
	stepErrors     metric.Int64Counter
	executeRuns    metric.Int64Counter
	executeLatency metric.Float64Histogram
	emitSize       metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance, lazily
// initialized on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("orco")

	stepExecutions, err := meter.Int64Counter("orco.step.executions",
		metric.WithDescription("Number of machine.Step invocations"),
	)
	if err != nil {
		return nil, err
	}

	stepLatency, err := meter.Float64Histogram("orco.step.latency_ms",
		metric.WithDescription("Step execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	stepErrors, err := meter.Int64Counter("orco.step.errors",
		metric.WithDescription("Number of step execution errors"),
	)
	if err != nil {
		return nil, err
	}

	executeRuns, err := meter.Int64Counter("orco.execute.runs",
		metric.WithDescription("Number of orchestrator.Execute calls"),
	)
	if err != nil {
		return nil, err
	}

	executeLatency, err := meter.Float64Histogram("orco.execute.latency_ms",
		metric.WithDescription("Execute call latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	emitSize, err := meter.Int64Histogram("orco.emit.size_bytes",
		metric.WithDescription("Size of an emitted event payload or snapshot in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		stepExecutions: stepExecutions,
		stepLatency:    stepLatency,
		stepErrors:     stepErrors,
		executeRuns:    executeRuns,
		executeLatency: executeLatency,
		emitSize:       emitSize,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordStep records one step execution.
func (m *otelMetrics) RecordStep(ctx context.Context, source string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("machine_source", source),
	}
	m.stepExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.stepLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		m.stepErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordExecute records one execute call.
func (m *otelMetrics) RecordExecute(ctx context.Context, outcome string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("outcome", outcome),
	}
	m.executeRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.executeLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordEmit records the size of an emitted payload or snapshot.
func (m *otelMetrics) RecordEmit(ctx context.Context, eventType string, sizeBytes int64) {
	attrs := []attribute.KeyValue{
		attribute.String("event_type", eventType),
	}
	m.emitSize.Record(ctx, sizeBytes, metric.WithAttributes(attrs...))
}
