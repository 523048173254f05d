package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/search-mirror/internal/config"
	"github.com/stacklok/search-mirror/pkg/mirror"
	"github.com/stacklok/search-mirror/pkg/mirror/mocks"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		AppID:   "APPID",
		APIKey:  "secret",
		DataDir: t.TempDir(),
		TempDir: t.TempDir(),
		Indices: []config.IndexConfig{
			{
				Name:            "products",
				Mirrored:        true,
				RequestStrategy: "fallback-on-failure",
				DataSelectionQueries: []config.DataSelectionQueryConfig{
					{Query: "filters=brand%3Aacme", MaxObjects: 10},
				},
			},
		},
	}
}

// fakeGateways replaces both gateways of every index with mocks
func fakeGateways(t *testing.T) (MirrorAppOptions, *mocks.MockRemoteGateway) {
	t.Helper()
	ctrl := gomock.NewController(t)
	remote := mocks.NewMockRemoteGateway(ctrl)
	local := mocks.NewMockLocalGateway(ctrl)
	local.EXPECT().Close().Return(nil).AnyTimes()
	local.EXPECT().HasOfflineData().Return(false).AnyTimes()

	return WithMirrorOptions(
		mirror.WithRemoteGateways(func(string) mirror.RemoteGateway { return remote }),
		mirror.WithLocalEngine(func(context.Context, string) (mirror.LocalGateway, error) { return local, nil }),
	), remote
}

func newTestApp(t *testing.T, opts ...MirrorAppOptions) *MirrorApp {
	t.Helper()
	gateways, _ := fakeGateways(t)
	app, err := NewMirrorApp(context.Background(),
		append([]MirrorAppOptions{WithConfig(testConfig(t)), gateways}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Stop(time.Second) })
	return app
}

func TestWithAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{name: "port only", addr: ":9090"},
		{name: "localhost", addr: "localhost:8080"},
		{name: "ipv4", addr: "127.0.0.1:8080"},
		{name: "ipv6", addr: "[::1]:8080"},
		{name: "empty", addr: "", wantErr: true},
		{name: "no port", addr: "localhost", wantErr: true},
		{name: "empty port", addr: "127.0.0.1:", wantErr: true},
		{name: "bad port", addr: ":http-alt", wantErr: true},
		{name: "hostname", addr: "example.com:80", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &mirrorAppConfig{}
			err := WithAddress(tt.addr)(cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.addr, cfg.address)
		})
	}
}

func TestWithRequestTimeout(t *testing.T) {
	t.Parallel()

	cfg, err := baseConfig(WithConfig(&config.Config{}), WithRequestTimeout(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.requestTimeout)
	assert.Greater(t, cfg.writeTimeout, time.Minute)

	_, err = baseConfig(WithConfig(&config.Config{}), WithRequestTimeout(0))
	assert.Error(t, err)
}

func TestNewMirrorApp_RequiresConfig(t *testing.T) {
	t.Parallel()

	_, err := NewMirrorApp(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config cannot be nil")
}

func TestNewMirrorApp_InvalidIndex(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Indices[0].DataSelectionQueries[0].MaxObjects = -1
	gateways, _ := fakeGateways(t)

	_, err := NewMirrorApp(context.Background(), WithConfig(cfg), gateways)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to build mirror service")
}

func TestNewMirrorApp_Components(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, WithAddress("127.0.0.1:18080"))

	assert.Equal(t, "127.0.0.1:18080", app.GetHTTPServer().Addr)
	assert.Equal(t, "APPID", app.GetConfig().AppID)

	components := app.Components()
	require.NotNil(t, components.SyncCoordinator)
	require.NotNil(t, components.MirrorClient)
	require.NotNil(t, components.MirrorService)

	idx := components.MirrorClient.Index("products")
	assert.True(t, idx.Mirrored())
	assert.Equal(t, mirror.FallbackOnFailure, idx.RequestStrategy())
	assert.Equal(t, filepath.Join(app.GetConfig().DataDir, "APPID"), components.MirrorClient.DataDir())
}

func TestNewMirrorApp_Routes(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	handler := app.GetHTTPServer().Handler

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/indexes/products/status", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var st map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	assert.Equal(t, true, st["mirrored"])

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/indexes/articles/status", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestNewMirrorApp_Telemetry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	require.NoError(t, err)
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	spans := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	app := newTestApp(t,
		WithMeterProvider(mp),
		WithTracerProvider(tp),
		WithPrometheusRegisterer(reg),
		WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	)
	handler := app.GetHTTPServer().Handler

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/indexes/products/status", nil))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "search_mirror_http_requests_total")

	var names []string
	for _, span := range spans.GetSpans() {
		names = append(names, span.Name)
	}
	assert.Contains(t, names, "GET /v1/indexes/{index}/status")
}

func TestNewMirrorApp_ReloadsIndices(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	write := func(indices string) {
		content := "appID: APPID\napiKey: secret\ndataDir: " + dir + "/data\ntempDir: " + dir + "/tmp\nindices:\n" + indices
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	}
	write("  - name: products\n    mirrored: true\n")

	manager, err := config.NewManager(path, config.WithLoadOptions(config.WithViper(viper.New())))
	require.NoError(t, err)

	gateways, _ := fakeGateways(t)
	app, err := NewMirrorApp(context.Background(), WithConfigManager(manager), gateways)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Stop(time.Second) })

	svc := app.Components().MirrorService
	_, err = svc.Status(context.Background(), "articles")
	require.Error(t, err)

	write("  - name: products\n    mirrored: true\n  - name: articles\n    requestStrategy: online-only\n")
	require.NoError(t, manager.ReloadConfig())

	st, err := svc.Status(context.Background(), "articles")
	require.NoError(t, err)
	assert.Equal(t, "online-only", st.RequestStrategy)
	assert.Len(t, app.GetConfig().Indices, 2)
}
