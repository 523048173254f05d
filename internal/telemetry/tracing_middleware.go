package telemetry

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	searchotel "github.com/stacklok/search-mirror/internal/otel"
)

const (
	// TracerName is the name used for the HTTP tracer
	TracerName = "github.com/stacklok/search-mirror/http"
)

// TracingMiddleware starts a server span per request, continuing the trace of
// the caller. The mirror spans of the request become its children. A nil
// provider disables tracing.
func TracingMiddleware(provider trace.TracerProvider) func(http.Handler) http.Handler {
	if provider == nil {
		return passThrough
	}
	ht := &httpTracer{
		tracer:     provider.Tracer(TracerName),
		propagator: otel.GetTextMapPropagator(),
	}
	return ht.middleware
}

type httpTracer struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

func (ht *httpTracer) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := ht.propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		// Renamed once chi knows the route pattern
		ctx, span := ht.tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.URLPath(r.URL.Path),
				semconv.UserAgentOriginal(r.UserAgent()),
			),
		)
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		finishSpan(span, describeRequest(r, ww))
	})
}

func finishSpan(span trace.Span, sr servedRequest) {
	span.SetName(sr.spanName())
	span.SetAttributes(
		semconv.HTTPRouteKey.String(sr.pattern),
		semconv.HTTPResponseStatusCode(sr.status),
	)
	if sr.index != "" {
		span.SetAttributes(searchotel.AttrIndexName.String(sr.index))
	}
	if sr.origin != "" {
		span.SetAttributes(searchotel.AttrOrigin.String(sr.origin))
	}

	// Client errors leave a server span unset
	switch {
	case sr.status >= http.StatusInternalServerError:
		span.SetStatus(codes.Error, http.StatusText(sr.status))
	case sr.status < http.StatusBadRequest:
		span.SetStatus(codes.Ok, "")
	}
}
