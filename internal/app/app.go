// Package app provides application lifecycle management for the search mirror daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/search-mirror/internal/config"
)

// MirrorApp encapsulates all components needed to run the daemon.
// It provides lifecycle management and graceful shutdown capabilities
type MirrorApp struct {
	mu            sync.RWMutex
	config        *config.Config
	configManager config.Manager
	components    *AppComponents
	httpServer    *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start runs the sync coordinator, the configuration watcher and the HTTP
// server. It blocks until the HTTP server stops or one of them fails.
func (app *MirrorApp) Start() error {
	g, ctx := errgroup.WithContext(app.ctx)

	g.Go(func() error {
		if err := app.components.SyncCoordinator.Start(ctx); err != nil {
			return fmt.Errorf("sync coordinator failed: %w", err)
		}
		return nil
	})

	if app.configManager != nil {
		g.Go(func() error {
			err := app.configManager.WatchConfig(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				// Reloading is best effort; the daemon keeps serving
				slog.Error("Configuration watcher stopped", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		slog.Info("Server listening", "address", app.httpServer.Addr)
		err := app.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		// The server is closed; release the other goroutines
		app.cancelFunc()
		return nil
	})

	return g.Wait()
}

// Stop gracefully stops the application with the given timeout.
// It stops the sync coordinator, shuts the HTTP server down and closes the
// mirror client.
func (app *MirrorApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	if err := app.components.SyncCoordinator.Stop(); err != nil {
		slog.Error("Failed to stop sync coordinator", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}
	if app.cancelFunc != nil {
		app.cancelFunc()
	}
	if app.configManager != nil {
		if err := app.configManager.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := app.components.MirrorClient.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close mirror client: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	slog.Info("Server shutdown complete")
	return nil
}

// Reload applies the index settings of cfg. Client and telemetry settings
// only change on restart.
func (app *MirrorApp) Reload(cfg *config.Config) {
	if err := app.components.MirrorService.Apply(app.ctx, cfg.Indices); err != nil {
		slog.Error("Failed to apply reloaded index configuration", "error", err)
		return
	}
	app.mu.Lock()
	app.config = cfg
	app.mu.Unlock()
}

// GetConfig returns the application configuration
func (app *MirrorApp) GetConfig() *config.Config {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *MirrorApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Components returns the application components
func (app *MirrorApp) Components() *AppComponents {
	return app.components
}
