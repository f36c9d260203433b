package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "spacegate"

// StartResolveSpan starts a span for host-to-space resolution.
func StartResolveSpan(ctx context.Context, host string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "space.resolve",
		trace.WithAttributes(attribute.String("space.host", host)),
	)
}

// StartAdminEditSpan starts a span for an admin edit of a space.
func StartAdminEditSpan(ctx context.Context, spaceID, op string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "space.edit",
		trace.WithAttributes(
			attribute.String("space.id", spaceID),
			attribute.String("space.edit", op),
		),
	)
}
