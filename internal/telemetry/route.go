package telemetry

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
)

// OriginHeader carries the origin of a search answer ("local" or "remote").
// The HTTP instruments and spans read it from the response.
const OriginHeader = "X-Search-Origin"

const unknownRoute = "unknown_route"

// servedRequest describes a request once chi has routed and answered it
type servedRequest struct {
	method  string
	pattern string
	index   string
	origin  string
	status  int
}

func describeRequest(r *http.Request, ww middleware.WrapResponseWriter) servedRequest {
	sr := servedRequest{
		method:  r.Method,
		pattern: getRoutePattern(r),
		origin:  ww.Header().Get(OriginHeader),
		status:  ww.Status(),
	}
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	// Names of unknown indices stay out of the labels
	if rctx := chi.RouteContext(r.Context()); rctx != nil && sr.status != http.StatusNotFound {
		sr.index = rctx.URLParam("index")
	}
	return sr
}

// getRoutePattern extracts the route pattern from a chi request context, e.g.
// "/v1/indexes/{index}/search" rather than the concrete path.
func getRoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unknownRoute
}

func (sr servedRequest) spanName() string {
	return sr.method + " " + sr.pattern
}

func (sr servedRequest) metricAttributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("method", sr.method),
		attribute.String("route", sr.pattern),
		attribute.String("status_code", strconv.Itoa(sr.status)),
	}
	if sr.index != "" {
		attrs = append(attrs, attribute.String("index", sr.index))
	}
	if sr.origin != "" {
		attrs = append(attrs, attribute.String("origin", sr.origin))
	}
	return attrs
}

func passThrough(next http.Handler) http.Handler {
	return next
}
