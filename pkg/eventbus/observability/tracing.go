package observability

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the event bus tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("eventbus")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartDispatchSpan starts a span for one dispatch pass.
	StartDispatchSpan(ctx context.Context, busID, eventType string) (context.Context, trace.Span)

	// StartDeliverySpan starts a span for one handler invocation.
	// Queued deliveries carry the dispatch span context across the queue,
	// so every delivery span is a child of its dispatch span.
	StartDeliverySpan(ctx context.Context, handler, delivery string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartDispatchSpan starts a span for a dispatch pass. Each span gets a
// fresh dispatch.id.
func (m *otelSpanManager) StartDispatchSpan(ctx context.Context, busID, eventType string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "eventbus.dispatch",
		trace.WithAttributes(
			attribute.String("bus.id", busID),
			attribute.String("dispatch.id", uuid.NewString()),
			attribute.String("event.type", eventType),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartDeliverySpan starts a span for a handler invocation.
func (m *otelSpanManager) StartDeliverySpan(ctx context.Context, handler, delivery string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "eventbus.deliver",
		trace.WithAttributes(
			attribute.String("handler", handler),
			attribute.String("delivery", delivery),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
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

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
