package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	mirrorapp "github.com/stacklok/search-mirror/internal/app"
	"github.com/stacklok/search-mirror/internal/config"
	"github.com/stacklok/search-mirror/internal/telemetry"
)

const (
	defaultGracefulTimeout = 30 * time.Second // Kubernetes-friendly shutdown time
	defaultAddress         = ":8080"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mirror daemon",
		Long: `Start the mirror daemon. It syncs the configured indices in the background
and serves searches, syncs and status over HTTP.

The daemon requires a configuration file (--config, SEARCH_MIRROR_CONFIG or
$XDG_CONFIG_HOME/search-mirror/config.yaml). Index settings are reloaded when
the file changes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	cmd.Flags().String("address", defaultAddress, "Address to listen on")
	cmd.Flags().Duration("graceful-timeout", defaultGracefulTimeout, "Time allowed for in-flight requests on shutdown")
	for _, name := range []string{"address", "graceful-timeout"} {
		if err := v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			slog.Error("Error binding flag", "flag", name, "error", err)
		}
	}
	return cmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	path := configPath(v)
	if path == "" {
		return fmt.Errorf("a configuration file is required")
	}

	configManager, err := config.NewManager(path, config.WithLoadOptions(config.WithViper(v)))
	if err != nil {
		return err
	}
	cfg := configManager.GetConfig()
	slog.Info("Loaded configuration", "path", path, "app_id", cfg.AppID, "indices", len(cfg.Indices))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tel, err := telemetry.New(ctx,
		telemetry.WithTelemetryConfig(cfg.Telemetry),
		telemetry.WithRegisterer(registry),
	)
	if err != nil {
		_ = configManager.Close()
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown telemetry", "error", err)
		}
	}()

	app, err := mirrorapp.NewMirrorApp(ctx,
		mirrorapp.WithConfigManager(configManager),
		mirrorapp.WithAddress(v.GetString("address")),
		mirrorapp.WithMeterProvider(tel.MeterProvider()),
		mirrorapp.WithTracerProvider(tel.TracerProvider()),
		mirrorapp.WithPrometheusRegisterer(registry),
		mirrorapp.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})),
	)
	if err != nil {
		_ = configManager.Close()
		return fmt.Errorf("failed to create mirror daemon: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	gracefulTimeout := v.GetDuration("graceful-timeout")
	if gracefulTimeout <= 0 {
		gracefulTimeout = defaultGracefulTimeout
	}

	select {
	case err := <-errCh:
		// The server stopped on its own
		if stopErr := app.Stop(gracefulTimeout); stopErr != nil {
			slog.Error("Failed to stop mirror daemon", "error", stopErr)
		}
		return err
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	}

	if err := app.Stop(gracefulTimeout); err != nil {
		return err
	}
	return <-errCh
}
