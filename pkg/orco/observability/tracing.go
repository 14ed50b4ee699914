package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the orco tracer instance, using the global OTel tracer provider.
var tracer = otel.Tracer("orco")

// SpanManager handles trace span lifecycle for one orchestrator execute call.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartExecuteSpan starts a span for one orchestrator.Execute call.
	StartExecuteSpan(ctx context.Context, orchestrator, subject string) (context.Context, trace.Span)

	// StartStepSpan starts a span for a single machine.Step call, a child of
	// the execute span.
	StartStepSpan(ctx context.Context, source, version string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the
// provider before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartExecuteSpan starts a span for one orchestrator.Execute call.
func (m *otelSpanManager) StartExecuteSpan(ctx context.Context, orchestrator, subject string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "orco.execute",
		trace.WithAttributes(
			attribute.String("orchestrator", orchestrator),
			attribute.String("subject", subject),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartStepSpan starts a span for a single actor step.
func (m *otelSpanManager) StartStepSpan(ctx context.Context, source, version string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "orco.step."+source,
		trace.WithAttributes(
			attribute.String("machine.source", source),
			attribute.String("machine.version", version),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	endSpanWithError(span, err)
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	addSpanEvent(ctx, name, attrs...)
}

func endSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func addSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// HeadersFromSpan extracts the traceparent/tracestate pair for the span
// carried by ctx, for propagation onto an outgoing event.Event.
func HeadersFromSpan(ctx context.Context) (traceparent, tracestate string) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return "00-" + sc.TraceID().String() + "-" + sc.SpanID().String() + "-" + sc.TraceFlags().String(), sc.TraceState().String()
}

// InheritHeaders is HeadersFromSpan's inverse: it sets ctx's active span
// context to the one encoded by traceparent/tracestate, so a subsequent
// StartExecuteSpan/StartStepSpan parents its span on the triggering event's
// trace instead of whatever is already ambient on ctx. Used by the
// WithInheritFromEvent ExecuteOption.
func InheritHeaders(ctx context.Context, traceparent, tracestate string) context.Context {
	if traceparent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": traceparent}
	if tracestate != "" {
		carrier["tracestate"] = tracestate
	}
	return propagation.TraceContext{}.Extract(ctx, carrier)
}
