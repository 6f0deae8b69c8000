package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartAppSpan opens a span for an application-level lifecycle
// operation (start, stop).
func StartAppSpan(ctx context.Context, app, operation string) (context.Context, trace.Span) {
	return otel.Tracer(serviceName).Start(ctx, "app."+operation,
		trace.WithAttributes(attribute.String("app.name", app)))
}

// StartProcSpan opens a span for a single process operation within an
// application (launch, restart).
func StartProcSpan(ctx context.Context, app, proc, operation string) (context.Context, trace.Span) {
	return otel.Tracer(serviceName).Start(ctx, "proc."+operation,
		trace.WithAttributes(
			attribute.String("app.name", app),
			attribute.String("proc.name", proc),
		))
}

// RecordError marks span failed with err and a short description.
func RecordError(span trace.Span, err error, description string) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, description)
}

// RecordSuccess marks span completed cleanly.
func RecordSuccess(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}
