package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "pricescout"

// StartAggregationSpan starts a span for the fan-out aggregation of a task.
func StartAggregationSpan(ctx context.Context, taskID, query, country string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "aggregation",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("task.query", query),
			attribute.String("task.country", country),
		),
	)
}

// StartSourceSpan starts a span for a single source pipeline run.
func StartSourceSpan(ctx context.Context, taskID, url string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "source",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("source.url", url),
		),
	)
}
