package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func managerConfigYAML(strategy string) string {
	return `appID: APPID
apiKey: secret
indices:
  - name: products
    mirrored: true
    requestStrategy: ` + strategy + "\n"
}

func newTestManager(t *testing.T, opts ...ManagerOption) (Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(managerConfigYAML("online-only")), 0600))

	opts = append([]ManagerOption{WithLoadOptions(WithViper(viper.New()))}, opts...)
	m, err := NewManager(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, m.Close()) })
	return m, path
}

func strategyOf(m Manager) string {
	idx, _ := m.GetConfig().Index("products")
	return idx.RequestStrategy
}

func TestNewManager(t *testing.T) {
	t.Parallel()

	t.Run("valid file", func(t *testing.T) {
		t.Parallel()
		m, _ := newTestManager(t)
		assert.Equal(t, "online-only", strategyOf(m))
	})

	t.Run("invalid file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("indices: []\n"), 0600))

		_, err := NewManager(path, WithLoadOptions(WithViper(viper.New())))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load initial configuration")
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := NewManager(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestManager_GetConfigReturnsCopy(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	cfg := m.GetConfig()
	cfg.AppID = "changed"
	assert.Equal(t, "APPID", m.GetConfig().AppID)
}

func TestManager_ReloadConfig(t *testing.T) {
	t.Parallel()

	var reloaded atomic.Int32
	m, path := newTestManager(t, WithReloadHandler(func(cfg *Config) {
		reloaded.Add(1)
		assert.Equal(t, "APPID", cfg.AppID)
	}))

	require.NoError(t, os.WriteFile(path, []byte(managerConfigYAML("offline-only")), 0600))
	require.NoError(t, m.ReloadConfig())
	assert.Equal(t, "offline-only", strategyOf(m))
	assert.Equal(t, int32(1), reloaded.Load())

	// An invalid update keeps the previous configuration
	require.NoError(t, os.WriteFile(path, []byte(managerConfigYAML("whenever")), 0600))
	require.Error(t, m.ReloadConfig())
	assert.Equal(t, "offline-only", strategyOf(m))
	assert.Equal(t, int32(1), reloaded.Load())

	var late atomic.Int32
	m.OnReload(func(*Config) { late.Add(1) })
	require.NoError(t, os.WriteFile(path, []byte(managerConfigYAML("online-only")), 0600))
	require.NoError(t, m.ReloadConfig())
	assert.Equal(t, int32(2), reloaded.Load())
	assert.Equal(t, int32(1), late.Load())
}

func TestManager_ConcurrentReads(t *testing.T) {
	t.Parallel()

	m, path := newTestManager(t)
	require.NoError(t, os.WriteFile(path, []byte(managerConfigYAML("fallback-on-timeout")), 0600))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.NotNil(t, m.GetConfig())
			}
		}()
	}
	require.NoError(t, m.ReloadConfig())
	wg.Wait()
	assert.Equal(t, "fallback-on-timeout", strategyOf(m))
}

func TestManager_WatchConfig(t *testing.T) {
	t.Parallel()

	m, path := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- m.WatchConfig(ctx)
	}()

	// Rewrite until the watcher has been registered and picks the change up
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(managerConfigYAML("offline-only")), 0600)
		return strategyOf(m) == "offline-only"
	}, 5*time.Second, 50*time.Millisecond)

	// Invalid updates are ignored
	require.NoError(t, os.WriteFile(path, []byte(managerConfigYAML("whenever")), 0600))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, "offline-only", strategyOf(m))

	cancel()
	select {
	case err := <-watchErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("WatchConfig did not stop after context cancellation")
	}
}

func TestManager_WatchConfigAlreadyWatching(t *testing.T) {
	t.Parallel()

	m, path := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchErr := make(chan error, 1)
	go func() { watchErr <- m.WatchConfig(ctx) }()

	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(managerConfigYAML("offline-only")), 0600)
		return strategyOf(m) == "offline-only"
	}, 5*time.Second, 50*time.Millisecond)

	err := m.WatchConfig(ctx)
	require.Error(t, err)
	assert.Equal(t, "config watcher is already running", err.Error())

	// A stopped watcher can be started again
	cancel()
	assert.ErrorIs(t, <-watchErr, context.Canceled)

	again, stop := context.WithCancel(context.Background())
	stop()
	assert.ErrorIs(t, m.WatchConfig(again), context.Canceled)
}

func TestManager_Close(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}
