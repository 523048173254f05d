package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/search-mirror/internal/telemetry"
	"github.com/stacklok/search-mirror/pkg/mirror"
)

const fullConfigYAML = `appID: APPID
apiKey: secret
dataDir: /var/lib/search-mirror
tempDir: /tmp/search-mirror
client:
  readHosts: ["read-1.example.com", "read-2.example.com"]
  connectTimeout: 2s
  searchTimeout: 5s
  retries: 2
  searchCache:
    size: 128
    ttl: 30s
autoSync:
  enabled: true
  interval: 5m
indices:
  - name: products
    mirrored: true
    requestStrategy: fallback-on-timeout
    fallbackTimeout: 500ms
    delayBetweenSyncs: 1h
    dataSelectionQueries:
      - query: "filters=brand%3Aacme&query=shoe"
        maxObjects: 500
      - query: ""
        maxObjects: 100
  - name: articles
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, fullConfigYAML)
	cfg, err := LoadConfig(WithConfigPath(path), WithViper(viper.New()))
	require.NoError(t, err)

	assert.Equal(t, "APPID", cfg.AppID)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, "/var/lib/search-mirror", cfg.GetDataDir())
	assert.Equal(t, "/tmp/search-mirror", cfg.GetTempDir())
	assert.Equal(t, []string{"read-1.example.com", "read-2.example.com"}, cfg.Client.ReadHosts)
	assert.Equal(t, uint(2), cfg.Client.Retries)
	require.NotNil(t, cfg.Client.SearchCache)
	assert.Equal(t, 128, cfg.Client.SearchCache.Size)
	assert.True(t, cfg.AutoSync.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.AutoSync.GetInterval())
	require.Len(t, cfg.Indices, 2)

	products, ok := cfg.Index("products")
	require.True(t, ok)
	assert.True(t, products.Mirrored)
	assert.Equal(t, mirror.FallbackOnTimeout, products.Strategy())
	assert.Equal(t, 500*time.Millisecond, products.GetFallbackTimeout())
	assert.Equal(t, time.Hour, products.GetDelayBetweenSyncs())

	articles, ok := cfg.Index("articles")
	require.True(t, ok)
	assert.False(t, articles.Mirrored)
	assert.Equal(t, mirror.FallbackOnFailure, articles.Strategy())
	assert.Equal(t, mirror.DefaultFallbackTimeout, articles.GetFallbackTimeout())
	assert.Equal(t, mirror.DefaultDelayBetweenSyncs, articles.GetDelayBetweenSyncs())

	_, ok = cfg.Index("missing")
	assert.False(t, ok)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		opts    func(t *testing.T) []Option
		errMsg  string
	}{
		{
			name: "missing file",
			opts: func(t *testing.T) []Option {
				return []Option{WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml"))}
			},
			errMsg: "failed to evaluate symlinks",
		},
		{
			name: "empty path",
			opts: func(_ *testing.T) []Option {
				return []Option{WithConfigPath("")}
			},
			errMsg: "path is required",
		},
		{
			name:    "malformed yaml",
			content: "appID: [unterminated",
			errMsg:  "failed to parse YAML config",
		},
		{
			name:    "missing credentials",
			content: "dataDir: /tmp\n",
			errMsg:  "appID is required",
		},
		{
			name:    "unknown strategy",
			content: "appID: A\napiKey: K\nindices:\n  - name: products\n    requestStrategy: sometimes\n",
			errMsg:  "requestStrategy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var opts []Option
			if tt.opts != nil {
				opts = tt.opts(t)
			} else {
				opts = []Option{WithConfigPath(writeConfig(t, tt.content))}
			}
			opts = append(opts, WithViper(viper.New()))

			_, err := LoadConfig(opts...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Parallel()

	t.Run("viper values override the file", func(t *testing.T) {
		t.Parallel()

		v := viper.New()
		v.Set("app-id", "OTHER")
		v.Set("data-dir", "/srv/mirror")

		cfg, err := LoadConfig(WithConfigPath(writeConfig(t, fullConfigYAML)), WithViper(v))
		require.NoError(t, err)
		assert.Equal(t, "OTHER", cfg.AppID)
		assert.Equal(t, "secret", cfg.APIKey)
		assert.Equal(t, "/srv/mirror", cfg.DataDir)
		assert.Equal(t, "/tmp/search-mirror", cfg.TempDir)
	})

	t.Run("no file", func(t *testing.T) {
		t.Parallel()

		v := viper.New()
		v.Set("app-id", "APPID")
		v.Set("api-key", "secret")

		cfg, err := LoadConfig(WithViper(v))
		require.NoError(t, err)
		assert.Equal(t, "APPID", cfg.AppID)
		assert.Empty(t, cfg.Indices)
		assert.Equal(t, filepath.Join(xdg.DataHome, mirror.AppName), cfg.GetDataDir())
		assert.Equal(t, filepath.Join(xdg.CacheHome, mirror.AppName, "tmp"), cfg.GetTempDir())
		assert.Equal(t, DefaultAutoSyncInterval, cfg.AutoSync.GetInterval())
	})
}

//nolint:paralleltest // modifies process environment
func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("SEARCH_MIRROR_APP_ID", "ENVAPP")
	t.Setenv("SEARCH_MIRROR_API_KEY", "envkey")
	t.Setenv("SEARCH_MIRROR_TEMP_DIR", "/scratch")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "ENVAPP", cfg.AppID)
	assert.Equal(t, "envkey", cfg.APIKey)
	assert.Equal(t, "/scratch", cfg.GetTempDir())
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		return &Config{AppID: "APPID", APIKey: "secret"}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{name: "minimal", mutate: func(_ *Config) {}},
		{
			name:   "missing api key",
			mutate: func(c *Config) { c.APIKey = "" },
			errMsg: "apiKey is required",
		},
		{
			name:   "invalid client timeout",
			mutate: func(c *Config) { c.Client.ReadTimeout = "soon" },
			errMsg: "client: readTimeout: must be a valid duration",
		},
		{
			name:   "negative client timeout",
			mutate: func(c *Config) { c.Client.ConnectTimeout = "-1s" },
			errMsg: "must be positive",
		},
		{
			name:   "empty search cache",
			mutate: func(c *Config) { c.Client.SearchCache = &SearchCacheConfig{} },
			errMsg: "searchCache.size must be positive",
		},
		{
			name: "auto sync interval checked when enabled",
			mutate: func(c *Config) {
				c.AutoSync = AutoSyncConfig{Enabled: true, Interval: "0s"}
			},
			errMsg: "autoSync.interval",
		},
		{
			name: "auto sync interval ignored when disabled",
			mutate: func(c *Config) {
				c.AutoSync = AutoSyncConfig{Interval: "bogus"}
			},
		},
		{
			name:   "index without name",
			mutate: func(c *Config) { c.Indices = []IndexConfig{{Mirrored: true}} },
			errMsg: "indices[0]: name is required",
		},
		{
			name: "duplicate index",
			mutate: func(c *Config) {
				c.Indices = []IndexConfig{{Name: "products"}, {Name: "products"}}
			},
			errMsg: "duplicate index name 'products'",
		},
		{
			name: "invalid fallback timeout",
			mutate: func(c *Config) {
				c.Indices = []IndexConfig{{Name: "products", FallbackTimeout: "fast"}}
			},
			errMsg: "fallbackTimeout",
		},
		{
			name: "negative max objects",
			mutate: func(c *Config) {
				c.Indices = []IndexConfig{{
					Name:                 "products",
					DataSelectionQueries: []DataSelectionQueryConfig{{MaxObjects: -1}},
				}}
			},
			errMsg: "dataSelectionQueries[0]",
		},
		{
			name: "malformed query",
			mutate: func(c *Config) {
				c.Indices = []IndexConfig{{
					Name:                 "products",
					DataSelectionQueries: []DataSelectionQueryConfig{{Query: "filters=%zz", MaxObjects: 1}},
				}}
			},
			errMsg: "invalid query parameters",
		},
		{
			name: "invalid telemetry",
			mutate: func(c *Config) {
				c.Telemetry = &telemetry.Config{
					Enabled: true,
					Tracing: &telemetry.TracingConfig{Enabled: true, Sampling: 2},
				}
			},
			errMsg: "telemetry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("nil config", func(t *testing.T) {
		t.Parallel()
		var cfg *Config
		assert.Error(t, cfg.Validate())
	})
}

func TestIndexConfig_Queries(t *testing.T) {
	t.Parallel()

	idx := IndexConfig{
		Name: "products",
		DataSelectionQueries: []DataSelectionQueryConfig{
			{Query: "filters=brand%3Aacme&query=shoe", MaxObjects: 500},
			{Query: "", MaxObjects: 0},
		},
	}

	queries, err := idx.Queries()
	require.NoError(t, err)
	require.Len(t, queries, 2)

	assert.Equal(t, 500, queries[0].MaxObjects)
	assert.Equal(t, "brand:acme", queries[0].Query.Filters())
	assert.Equal(t, "shoe", queries[0].Query.QueryText())

	assert.Equal(t, 0, queries[1].MaxObjects)
	assert.Equal(t, "", queries[1].Query.Build())
}

func TestClientConfig_Options(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		c := ClientConfig{}
		assert.Empty(t, c.HTTPClientOptions())
		assert.Empty(t, c.IndexOptions())
	})

	t.Run("populated", func(t *testing.T) {
		t.Parallel()
		c := ClientConfig{
			ReadHosts:      []string{"read.example.com"},
			WriteHosts:     []string{"write.example.com"},
			ConnectTimeout: "1s",
			ReadTimeout:    "2s",
			SearchTimeout:  "3s",
			HostDownDelay:  "4m",
			Retries:        1,
			SearchCache:    &SearchCacheConfig{Size: 10},
		}
		assert.Len(t, c.HTTPClientOptions(), 7)
		assert.Len(t, c.IndexOptions(), 1)
	})
}
