package config

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Manager provides thread-safe, read-only configuration management.
// The configuration file is never written; updates come from editors,
// volume mounts or configuration management tools. An invalid update keeps
// the last valid configuration active.
type Manager interface {
	// GetConfig returns the current configuration
	GetConfig() *Config

	// ReloadConfig reads the file again and applies it when valid
	ReloadConfig() error

	// WatchConfig reloads the configuration whenever the file changes.
	// Blocks until ctx is cancelled.
	WatchConfig(ctx context.Context) error

	// OnReload registers a handler called after each successful reload
	OnReload(h ReloadHandler)

	// Close releases the file watcher
	Close() error
}

// ReloadHandler is called with every configuration applied by a reload
type ReloadHandler func(cfg *Config)

type manager struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	loadOpts []Option
	onReload []ReloadHandler

	watcherMu sync.Mutex
	watcher   *fsnotify.Watcher
}

// ManagerOption allows customizing Manager behavior
type ManagerOption func(*manager)

// WithReloadHandler registers a handler called after each successful reload
func WithReloadHandler(h ReloadHandler) ManagerOption {
	return func(m *manager) {
		m.onReload = append(m.onReload, h)
	}
}

// WithLoadOptions passes extra options to every LoadConfig call
func WithLoadOptions(opts ...Option) ManagerOption {
	return func(m *manager) {
		m.loadOpts = append(m.loadOpts, opts...)
	}
}

// NewManager loads and validates the configuration at path.
func NewManager(path string, opts ...ManagerOption) (Manager, error) {
	m := &manager{path: path}
	for _, opt := range opts {
		opt(m)
	}

	cfg, err := m.load()
	if err != nil {
		return nil, fmt.Errorf("failed to load initial configuration: %w", err)
	}
	m.config = cfg
	return m, nil
}

func (m *manager) load() (*Config, error) {
	return LoadConfig(append([]Option{WithConfigPath(m.path)}, m.loadOpts...)...)
}

// GetConfig returns a shallow copy; callers must not modify nested slices
func (m *manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	configCopy := *m.config
	return &configCopy
}

func (m *manager) ReloadConfig() error {
	cfg, err := m.load()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.config = cfg
	handlers := slices.Clone(m.onReload)
	m.mu.Unlock()

	slog.Info("Configuration reloaded", "path", m.path)
	for _, h := range handlers {
		h(cfg)
	}
	return nil
}

func (m *manager) OnReload(h ReloadHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReload = append(m.onReload, h)
}

func (m *manager) WatchConfig(ctx context.Context) error {
	m.watcherMu.Lock()
	if m.watcher != nil {
		m.watcherMu.Unlock()
		return fmt.Errorf("config watcher is already running")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.watcherMu.Unlock()
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	m.watcher = watcher
	m.watcherMu.Unlock()
	defer m.releaseWatcher(watcher)

	if err := watcher.Add(m.path); err != nil {
		return fmt.Errorf("failed to watch config file %s: %w", m.path, err)
	}
	slog.Info("Watching configuration file", "path", m.path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := m.ReloadConfig(); err != nil {
					slog.Error("Failed to reload configuration, keeping the previous one", "error", err)
				}
			}
			// Atomic replacements remove the watched file
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				_ = watcher.Add(m.path)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			slog.Error("File watcher error", "error", err)
		}
	}
}

// releaseWatcher closes w unless Close already did
func (m *manager) releaseWatcher(w *fsnotify.Watcher) {
	m.watcherMu.Lock()
	defer m.watcherMu.Unlock()
	if m.watcher == w {
		_ = w.Close()
		m.watcher = nil
	}
}

func (m *manager) Close() error {
	m.watcherMu.Lock()
	defer m.watcherMu.Unlock()

	if m.watcher == nil {
		return nil
	}
	if err := m.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close file watcher: %w", err)
	}
	m.watcher = nil
	return nil
}
