package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/search-mirror/internal/api"
	"github.com/stacklok/search-mirror/internal/config"
	"github.com/stacklok/search-mirror/internal/service"
	"github.com/stacklok/search-mirror/internal/telemetry"
	"github.com/stacklok/search-mirror/pkg/httpclient"
	"github.com/stacklok/search-mirror/pkg/mirror"
	"github.com/stacklok/search-mirror/pkg/sync/coordinator"
	"github.com/stacklok/search-mirror/pkg/versions"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 30 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 35 * time.Second
	defaultIdleTimeout    = 60 * time.Second

	// tracerName names the tracer of the mirror operations
	tracerName = "github.com/stacklok/search-mirror/pkg/mirror"
)

// MirrorAppOptions is a function that configures the mirror app builder
type MirrorAppOptions func(*mirrorAppConfig) error

// mirrorAppConfig builds a MirrorApp using the builder pattern
// It supports dependency injection for testing while providing sensible defaults for production
type mirrorAppConfig struct {
	config        *config.Config
	configManager config.Manager

	// Optional component overrides (primarily for testing)
	mirrorOptions []mirror.Option

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Telemetry components
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	registerer     prometheus.Registerer
	metricsHandler http.Handler
}

func baseConfig(opts ...MirrorAppOptions) (*mirrorAppConfig, error) {
	cfg := &mirrorAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil && cfg.configManager != nil {
		cfg.config = cfg.configManager.GetConfig()
	}
	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return cfg, nil
}

// NewMirrorApp creates the daemon from the given options
func NewMirrorApp(
	ctx context.Context,
	opts ...MirrorAppOptions,
) (*MirrorApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	syncCoordinator, client, err := buildMirrorComponents(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build mirror components: %w", err)
	}

	mirrorService, err := service.New(ctx, client, cfg.config.Indices)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to build mirror service: %w", err)
	}

	httpServer, err := buildHTTPServer(cfg, mirrorService)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	app := &MirrorApp{
		config:        cfg.config,
		configManager: cfg.configManager,
		components: &AppComponents{
			SyncCoordinator: syncCoordinator,
			MirrorClient:    client,
			MirrorService:   mirrorService,
		},
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}
	if cfg.configManager != nil {
		cfg.configManager.OnReload(app.Reload)
	}
	return app, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithConfigManager reloads the index settings whenever the manager does.
// Its configuration is used when WithConfig is not given.
func WithConfigManager(m config.Manager) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.configManager = m
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}
		if port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		switch host {
		case "localhost":
			host = "127.0.0.1"
		case "":
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(net.JoinHostPort(host, port)); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithRequestTimeout bounds the handling time of one request
func WithRequestTimeout(d time.Duration) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		if d <= 0 {
			return fmt.Errorf("request timeout must be positive")
		}
		cfg.requestTimeout = d
		if cfg.writeTimeout <= d {
			cfg.writeTimeout = d + 5*time.Second
		}
		return nil
	}
}

// WithMirrorOptions passes extra options to the mirror client (for testing)
func WithMirrorOptions(opts ...mirror.Option) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.mirrorOptions = append(cfg.mirrorOptions, opts...)
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for HTTP, request and sync metrics
func WithMeterProvider(mp metric.MeterProvider) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider
func WithTracerProvider(tp trace.TracerProvider) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}

// WithPrometheusRegisterer exposes the API client collectors on reg
func WithPrometheusRegisterer(reg prometheus.Registerer) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.registerer = reg
		return nil
	}
}

// WithMetricsHandler serves h on /metrics
func WithMetricsHandler(h http.Handler) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.metricsHandler = h
		return nil
	}
}

// buildMirrorComponents builds the API client, the sync coordinator and the
// mirror client
func buildMirrorComponents(b *mirrorAppConfig) (coordinator.Coordinator, *mirror.Client, error) {
	slog.Info("Initializing mirror components", "app_id", b.config.AppID)

	apiOpts := append(b.config.Client.HTTPClientOptions(),
		httpclient.WithUserAgent(mirror.AppName, versions.GetVersionInfo().Version))
	if b.registerer != nil {
		apiOpts = append(apiOpts, httpclient.WithMetricsRegisterer(b.registerer))
	}
	apiClient, err := httpclient.New(b.config.AppID, b.config.APIKey, apiOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create API client: %w", err)
	}

	var coordOpts []coordinator.Option
	if b.config.AutoSync.Enabled {
		coordOpts = append(coordOpts, coordinator.WithAutoSync(b.config.AutoSync.GetInterval()))
	}
	syncCoordinator := coordinator.New(coordOpts...)

	mirrorOpts := []mirror.Option{
		mirror.WithDataDir(b.config.GetDataDir()),
		mirror.WithTempDir(b.config.GetTempDir()),
		mirror.WithCoordinator(syncCoordinator),
		mirror.WithIndexOptions(b.config.Client.IndexOptions()...),
	}

	if b.meterProvider != nil {
		syncMetrics, err := telemetry.NewSyncMetrics(b.meterProvider)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create sync metrics: %w", err)
		}
		requestMetrics, err := telemetry.NewRequestMetrics(b.meterProvider)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create request metrics: %w", err)
		}
		mirrorOpts = append(mirrorOpts,
			mirror.WithSyncMetrics(syncMetrics),
			mirror.WithRequestMetrics(requestMetrics))
		slog.Info("Mirror metrics enabled")
	}
	if b.tracerProvider != nil {
		mirrorOpts = append(mirrorOpts, mirror.WithTracer(b.tracerProvider.Tracer(tracerName)))
	}

	client, err := mirror.NewClient(apiClient, append(mirrorOpts, b.mirrorOptions...)...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create mirror client: %w", err)
	}

	slog.Info("Mirror components initialized successfully", "data_dir", client.DataDir())
	return syncCoordinator, client, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(
	b *mirrorAppConfig,
	svc service.MirrorService,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Tracing and metrics wrap everything else to capture all requests
	var telemetryMiddlewares []func(http.Handler) http.Handler
	if b.tracerProvider != nil {
		telemetryMiddlewares = append(telemetryMiddlewares, telemetry.TracingMiddleware(b.tracerProvider))
	}
	if b.meterProvider != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		telemetryMiddlewares = append(telemetryMiddlewares, metricsMiddleware)
		slog.Info("HTTP metrics middleware enabled")
	}
	b.middlewares = append(telemetryMiddlewares, b.middlewares...)

	serverOpts := []api.ServerOption{api.WithMiddlewares(b.middlewares...)}
	if b.metricsHandler != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(b.metricsHandler))
	}
	router := api.NewServer(svc, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
