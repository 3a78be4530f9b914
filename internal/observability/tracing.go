package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps OpenTelemetry tracer with attendance-specific functionality.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer instance.
func NewTracer(name string) *Tracer {
	return &Tracer{
		tracer: otel.Tracer(name),
	}
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// StartStoreOperation starts a span for a replicated store operation.
func (t *Tracer) StartStoreOperation(ctx context.Context, operation, group, key string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "store."+operation,
		trace.WithAttributes(
			attribute.String("store.operation", operation),
			attribute.String("store.group", group),
			attribute.String("store.key", key),
		),
	)

	if correlationID := GetCorrelationID(ctx); correlationID != "" {
		span.SetAttributes(attribute.String("correlation_id", correlationID))
	}

	return ctx, span
}

// StartDatasetFetch starts a span for a tiered dataset fetch.
func (t *Tracer) StartDatasetFetch(ctx context.Context, dataset string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "dataset.fetch",
		trace.WithAttributes(
			attribute.String("dataset.name", dataset),
		),
	)

	if correlationID := GetCorrelationID(ctx); correlationID != "" {
		span.SetAttributes(attribute.String("correlation_id", correlationID))
	}

	return ctx, span
}

// RecordServedBy records the tier that served a dataset fetch on the span.
func RecordServedBy(span trace.Span, source string) {
	span.SetAttributes(attribute.String("dataset.source", source))
}

// RecordError records an error on the span.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSuccess marks the span as successful.
func SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
