// Package config provides configuration loading and management for the search mirror.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/search-mirror/internal/telemetry"
	"github.com/stacklok/search-mirror/pkg/httpclient"
	"github.com/stacklok/search-mirror/pkg/index"
	"github.com/stacklok/search-mirror/pkg/mirror"
	"github.com/stacklok/search-mirror/pkg/query"
	"github.com/stacklok/search-mirror/pkg/status"
)

// EnvPrefix is the prefix of the environment variables overriding the file
const EnvPrefix = "SEARCH_MIRROR"

// Default values for optional settings
const (
	DefaultAutoSyncInterval = 10 * time.Minute
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

type loaderConfig struct {
	path  string
	viper *viper.Viper
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// WithViper reads environment overrides from v instead of a fresh instance
// bound to EnvPrefix. Flags bound on v override the file too.
func WithViper(v *viper.Viper) Option {
	return func(cfg *loaderConfig) error {
		cfg.viper = v
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// AppID identifies the application on the search service
	AppID string `yaml:"appID"`

	// APIKey is the search-only API key of the application
	APIKey string `yaml:"apiKey"`

	// DataDir holds the mirrors, one subdirectory per application.
	// Defaults to $XDG_DATA_HOME/search-mirror
	DataDir string `yaml:"dataDir,omitempty"`

	// TempDir holds the sync scratch directories.
	// Defaults to $XDG_CACHE_HOME/search-mirror/tmp
	TempDir string `yaml:"tempDir,omitempty"`

	Client    ClientConfig      `yaml:"client,omitempty"`
	AutoSync  AutoSyncConfig    `yaml:"autoSync,omitempty"`
	Indices   []IndexConfig     `yaml:"indices,omitempty"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// ClientConfig tunes the API client
type ClientConfig struct {
	ReadHosts      []string `yaml:"readHosts,omitempty"`
	WriteHosts     []string `yaml:"writeHosts,omitempty"`
	ConnectTimeout string   `yaml:"connectTimeout,omitempty"`
	ReadTimeout    string   `yaml:"readTimeout,omitempty"`
	SearchTimeout  string   `yaml:"searchTimeout,omitempty"`
	HostDownDelay  string   `yaml:"hostDownDelay,omitempty"`

	// Retries is the number of extra rounds over all hosts, with backoff
	Retries uint `yaml:"retries,omitempty"`

	SearchCache *SearchCacheConfig `yaml:"searchCache,omitempty"`
}

// SearchCacheConfig enables the expiring cache of online search responses
type SearchCacheConfig struct {
	Size int    `yaml:"size"`
	TTL  string `yaml:"ttl"`
}

// HTTPClientOptions converts the settings into API client options
func (c *ClientConfig) HTTPClientOptions() []httpclient.Option {
	var opts []httpclient.Option
	if len(c.ReadHosts) > 0 {
		opts = append(opts, httpclient.WithReadHosts(c.ReadHosts...))
	}
	if len(c.WriteHosts) > 0 {
		opts = append(opts, httpclient.WithWriteHosts(c.WriteHosts...))
	}
	if c.ConnectTimeout != "" {
		opts = append(opts, httpclient.WithConnectTimeout(durationOr(c.ConnectTimeout, httpclient.DefaultConnectTimeout)))
	}
	if c.ReadTimeout != "" {
		opts = append(opts, httpclient.WithReadTimeout(durationOr(c.ReadTimeout, httpclient.DefaultReadTimeout)))
	}
	if c.SearchTimeout != "" {
		opts = append(opts, httpclient.WithSearchTimeout(durationOr(c.SearchTimeout, httpclient.DefaultSearchTimeout)))
	}
	if c.HostDownDelay != "" {
		opts = append(opts, httpclient.WithHostDownDelay(durationOr(c.HostDownDelay, httpclient.DefaultHostDownDelay)))
	}
	if c.Retries > 0 {
		opts = append(opts, httpclient.WithRetry(c.Retries+1))
	}
	return opts
}

// IndexOptions converts the settings into online index options
func (c *ClientConfig) IndexOptions() []index.Option {
	if c.SearchCache == nil {
		return nil
	}
	return []index.Option{index.WithSearchCache(c.SearchCache.Size, durationOr(c.SearchCache.TTL, time.Minute))}
}

// AutoSyncConfig controls the periodic staleness check of the daemon
type AutoSyncConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Interval string `yaml:"interval,omitempty"`
}

// IndexConfig configures one mirrored index
type IndexConfig struct {
	Name              string `yaml:"name"`
	Mirrored          bool   `yaml:"mirrored"`
	RequestStrategy   string `yaml:"requestStrategy,omitempty"`
	FallbackTimeout   string `yaml:"fallbackTimeout,omitempty"`
	DelayBetweenSyncs string `yaml:"delayBetweenSyncs,omitempty"`

	DataSelectionQueries []DataSelectionQueryConfig `yaml:"dataSelectionQueries,omitempty"`
}

// DataSelectionQueryConfig selects mirrored objects. Query holds URL-encoded
// search parameters such as "filters=brand:acme".
type DataSelectionQueryConfig struct {
	Query      string `yaml:"query"`
	MaxObjects int    `yaml:"maxObjects"`
}

// LoadConfig reads the configuration file, when one is given, applies the
// environment overrides and validates the result.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	var config Config
	if loaderCfg.path != "" {
		data, err := os.ReadFile(loaderCfg.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	v := loaderCfg.viper
	if v == nil {
		v = NewViper()
	}
	config.applyOverrides(v)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// NewViper returns a viper instance reading SEARCH_MIRROR_* variables,
// e.g. SEARCH_MIRROR_APP_ID for "app-id".
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

func (c *Config) applyOverrides(v *viper.Viper) {
	if s := v.GetString("app-id"); s != "" {
		c.AppID = s
	}
	if s := v.GetString("api-key"); s != "" {
		c.APIKey = s
	}
	if s := v.GetString("data-dir"); s != "" {
		c.DataDir = s
	}
	if s := v.GetString("temp-dir"); s != "" {
		c.TempDir = s
	}
}

// GetDataDir returns the data directory, using the XDG default if not specified
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return filepath.Join(xdg.DataHome, mirror.AppName)
	}
	return c.DataDir
}

// GetTempDir returns the scratch directory, using the XDG default if not specified
func (c *Config) GetTempDir() string {
	if c.TempDir == "" {
		return filepath.Join(xdg.CacheHome, mirror.AppName, "tmp")
	}
	return c.TempDir
}

// Index returns the configuration of the named index
func (c *Config) Index(name string) (IndexConfig, bool) {
	for _, idx := range c.Indices {
		if idx.Name == name {
			return idx, true
		}
	}
	return IndexConfig{}, false
}

// GetInterval returns the auto-sync polling interval
func (a *AutoSyncConfig) GetInterval() time.Duration {
	return durationOr(a.Interval, DefaultAutoSyncInterval)
}

// Strategy returns the parsed request strategy, FallbackOnFailure when unset
func (i *IndexConfig) Strategy() mirror.Strategy {
	if i.RequestStrategy == "" {
		return mirror.FallbackOnFailure
	}
	s, _ := mirror.ParseStrategy(i.RequestStrategy)
	return s
}

// GetFallbackTimeout returns the FallbackOnTimeout delay
func (i *IndexConfig) GetFallbackTimeout() time.Duration {
	return durationOr(i.FallbackTimeout, mirror.DefaultFallbackTimeout)
}

// GetDelayBetweenSyncs returns the maximum age of the mirrored data
func (i *IndexConfig) GetDelayBetweenSyncs() time.Duration {
	return durationOr(i.DelayBetweenSyncs, mirror.DefaultDelayBetweenSyncs)
}

// Queries returns the parsed data selection queries
func (i *IndexConfig) Queries() ([]status.DataSelectionQuery, error) {
	out := make([]status.DataSelectionQuery, 0, len(i.DataSelectionQueries))
	for n, dq := range i.DataSelectionQueries {
		q, err := query.Parse(dq.Query)
		if err != nil {
			return nil, fmt.Errorf("dataSelectionQueries[%d]: %w", n, err)
		}
		selection, err := status.NewDataSelectionQuery(q, dq.MaxObjects)
		if err != nil {
			return nil, fmt.Errorf("dataSelectionQueries[%d]: %w", n, err)
		}
		out = append(out, selection)
	}
	return out, nil
}

// durationOr parses a validated duration, returning def when s is empty
func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error
	if c.AppID == "" {
		errs = append(errs, fmt.Errorf("appID is required"))
	}
	if c.APIKey == "" {
		errs = append(errs, fmt.Errorf("apiKey is required"))
	}
	if err := c.Client.validate(); err != nil {
		errs = append(errs, fmt.Errorf("client: %w", err))
	}
	if c.AutoSync.Enabled {
		if err := validatePositiveDuration(c.AutoSync.Interval); err != nil {
			errs = append(errs, fmt.Errorf("autoSync.interval: %w", err))
		}
	}

	names := make(map[string]bool)
	for n, idx := range c.Indices {
		if idx.Name == "" {
			errs = append(errs, fmt.Errorf("indices[%d]: name is required", n))
			continue
		}
		if names[idx.Name] {
			errs = append(errs, fmt.Errorf("indices[%d]: duplicate index name '%s'", n, idx.Name))
		}
		names[idx.Name] = true
		if err := idx.validate(); err != nil {
			errs = append(errs, fmt.Errorf("indices[%d] (%s): %w", n, idx.Name, err))
		}
	}

	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}
	return errors.Join(errs...)
}

func (c *ClientConfig) validate() error {
	for name, value := range map[string]string{
		"connectTimeout": c.ConnectTimeout,
		"readTimeout":    c.ReadTimeout,
		"searchTimeout":  c.SearchTimeout,
		"hostDownDelay":  c.HostDownDelay,
	} {
		if err := validatePositiveDuration(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.SearchCache != nil {
		if c.SearchCache.Size <= 0 {
			return fmt.Errorf("searchCache.size must be positive")
		}
		if err := validatePositiveDuration(c.SearchCache.TTL); err != nil {
			return fmt.Errorf("searchCache.ttl: %w", err)
		}
	}
	return nil
}

func (i *IndexConfig) validate() error {
	if i.RequestStrategy != "" {
		if _, err := mirror.ParseStrategy(i.RequestStrategy); err != nil {
			return fmt.Errorf("requestStrategy: %w", err)
		}
	}
	if err := validatePositiveDuration(i.FallbackTimeout); err != nil {
		return fmt.Errorf("fallbackTimeout: %w", err)
	}
	if err := validatePositiveDuration(i.DelayBetweenSyncs); err != nil {
		return fmt.Errorf("delayBetweenSyncs: %w", err)
	}
	if _, err := i.Queries(); err != nil {
		return err
	}
	return nil
}

// validatePositiveDuration accepts an empty value, which selects the default
func validatePositiveDuration(s string) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("must be a valid duration (e.g., '30s', '1h'): %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("must be positive, got %s", s)
	}
	return nil
}
