package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// otelTracer adapts an OpenTelemetry tracer to the Tracer interface
type otelTracer struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer backed by the globally registered
// OpenTelemetry tracer provider. When no provider is configured the
// returned tracer produces non-recording spans, so it is safe to use
// unconditionally.
func NewTracer(name string) Tracer {
	return &otelTracer{tracer: otel.Tracer(name)}
}

// StartSpan starts a new span with the given name
func (t *otelTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, &otelSpanWrapper{span: span}
}

// otelSpanWrapper wraps an OpenTelemetry span to implement the Span interface
type otelSpanWrapper struct {
	span trace.Span
}

// End implements Span.End
func (o *otelSpanWrapper) End() {
	o.span.End()
}

// SetAttribute implements Span.SetAttribute
func (o *otelSpanWrapper) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		o.span.SetAttributes(attribute.String(key, v))
	case int:
		o.span.SetAttributes(attribute.Int(key, v))
	case int64:
		o.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		o.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		o.span.SetAttributes(attribute.Bool(key, v))
	default:
		o.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

// RecordError implements Span.RecordError
func (o *otelSpanWrapper) RecordError(err error) {
	o.span.RecordError(err)
}
