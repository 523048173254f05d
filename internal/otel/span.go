// Package otel provides OpenTelemetry instrumentation utilities shared by the
// search client and the mirror.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys used across spans.
const (
	AttrIndexName   = attribute.Key("search.index")
	AttrStrategy    = attribute.Key("search.strategy")
	AttrOrigin      = attribute.Key("search.origin")
	AttrQueryCount  = attribute.Key("search.query_count")
	AttrResultCount = attribute.Key("result.count")
	AttrHasCursor   = attribute.Key("pagination.has_cursor")
	AttrCacheHit    = attribute.Key("cache.hit")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns a no-op span.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records an error on a span and sets the span status to error.
// It safely handles nil spans and nil errors.
// The status description stays generic so API keys and query contents do not
// end up in the span status; details remain available in span events.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
