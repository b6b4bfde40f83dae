package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Run executes fn inside a span named name and records its outcome. The
// request id from ctx, if any, is attached as an attribute.
func Run(ctx context.Context, tracer trace.Tracer, name string, fn func(ctx context.Context, span trace.Span) error, attrs ...attribute.KeyValue) error {
	ctx, span := tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	if id := RequestIDFromContext(ctx); id != "" {
		attrs = append(attrs, attribute.String(AttrRequestID, id))
	}
	span.SetAttributes(attrs...)

	err := fn(ctx, span)
	End(span, err)
	return err
}

// End sets the span status from err without ending the span.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
