package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestHTTPMetrics_Middleware(t *testing.T) {
	t.Parallel()

	t.Run("passes through when metrics is nil", func(t *testing.T) {
		t.Parallel()

		var metrics *HTTPMetrics
		wrapped := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		}))

		rr := httptest.NewRecorder()
		wrapped.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusAccepted, rr.Code)
	})

	t.Run("records route, status, index and origin", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name       string
			target     string
			status     int
			origin     string
			wantIndex  string
			wantOrigin string
		}{
			{name: "local answer", target: "/v1/indexes/products/search", status: http.StatusOK,
				origin: "local", wantIndex: "products", wantOrigin: "local"},
			{name: "remote failure", target: "/v1/indexes/products/search", status: http.StatusBadGateway,
				wantIndex: "products"},
			{name: "unknown index", target: "/v1/indexes/typo/search", status: http.StatusNotFound},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				reader := sdkmetric.NewManualReader()
				mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
				t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

				metrics, err := NewHTTPMetrics(mp)
				require.NoError(t, err)

				r := chi.NewRouter()
				r.Use(metrics.Middleware)
				r.Get("/v1/indexes/{index}/search", func(w http.ResponseWriter, _ *http.Request) {
					if tt.origin != "" {
						w.Header().Set(OriginHeader, tt.origin)
					}
					w.WriteHeader(tt.status)
				})

				rr := httptest.NewRecorder()
				r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.target, nil))
				assert.Equal(t, tt.status, rr.Code)

				found := collect(t, reader, HTTPMetricsMeterName)
				requests, ok := found["search_mirror_http_requests_total"]
				require.True(t, ok)
				sum, ok := requests.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				require.Len(t, sum.DataPoints, 1)
				attrs := sum.DataPoints[0].Attributes

				route, _ := attrs.Value(attribute.Key("route"))
				assert.Equal(t, "/v1/indexes/{index}/search", route.AsString())
				status, _ := attrs.Value(attribute.Key("status_code"))
				assert.Equal(t, strconv.Itoa(tt.status), status.AsString())
				index, _ := attrs.Value(attribute.Key("index"))
				assert.Equal(t, tt.wantIndex, index.AsString())
				origin, _ := attrs.Value(attribute.Key("origin"))
				assert.Equal(t, tt.wantOrigin, origin.AsString())

				assert.Contains(t, found, "search_mirror_http_request_duration_seconds")
				assert.Contains(t, found, "search_mirror_http_active_requests")
			})
		}
	})
}

func TestMetricsMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		provider metric.MeterProvider
	}{
		{name: "nil provider"},
		{name: "noop provider", provider: noop.NewMeterProvider()},
		{name: "sdk provider", provider: sdkmetric.NewMeterProvider()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mw, err := MetricsMiddleware(tt.provider)
			require.NoError(t, err)

			rr := httptest.NewRecorder()
			mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusCreated)
			})).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/indexes/products/sync", nil))
			assert.Equal(t, http.StatusCreated, rr.Code)
		})
	}
}

func TestGetRoutePattern(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unknown_route", getRoutePattern(httptest.NewRequest(http.MethodGet, "/nowhere", nil)))

	r := chi.NewRouter()
	var pattern string
	r.Get("/v1/indexes/{index}/status", func(_ http.ResponseWriter, req *http.Request) {
		pattern = getRoutePattern(req)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/indexes/products/status", nil))
	assert.Equal(t, "/v1/indexes/{index}/status", pattern)
}
