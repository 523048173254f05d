package mirror

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/search-mirror/pkg/httpclient"
	"github.com/stacklok/search-mirror/pkg/mirror/mocks"
	"github.com/stacklok/search-mirror/pkg/searcherr"
	"github.com/stacklok/search-mirror/pkg/sync/coordinator"
)

func TestNewClient_RequiresRemote(t *testing.T) {
	t.Parallel()

	_, err := NewClient(nil, WithDataDir(t.TempDir()))
	assert.ErrorIs(t, err, searcherr.ErrInvalidArgument)
}

func TestNewClient_InvalidOptions(t *testing.T) {
	t.Parallel()

	_, err := NewClient(nil, WithDataDir(""))
	assert.ErrorIs(t, err, searcherr.ErrInvalidArgument)

	_, err = NewClient(nil, WithTempDir(""))
	assert.ErrorIs(t, err, searcherr.ErrInvalidArgument)
}

func TestNewClient_DataDirPerApplication(t *testing.T) {
	t.Parallel()

	api, err := httpclient.New("APPID", "secret")
	require.NoError(t, err)

	dataDir := t.TempDir()
	client, err := NewClient(api, WithDataDir(dataDir), WithTempDir(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, filepath.Join(dataDir, "APPID"), client.DataDir())

	idx := client.Index("books & magazines")
	assert.Equal(t, filepath.Join(dataDir, "APPID", url.PathEscape("books & magazines")), idx.Dir())
	assert.Equal(t, "books & magazines", idx.Name())
	assert.NotNil(t, idx.Remote())
}

func TestClient_IndexIsCached(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	assert.Same(t, f.index, f.client.Index("products"))
	assert.NotSame(t, f.index, f.client.Index("articles"))
	assert.Len(t, f.client.Indices(), 2)
}

func TestClient_AutoSyncThroughCoordinator(t *testing.T) {
	t.Parallel()

	coord := coordinator.New(coordinator.WithAutoSync(20 * time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = coord.Start(ctx) }()
	t.Cleanup(func() { _ = coord.Stop() })

	manager := newFakeManager()
	f := newFixture(t, WithCoordinator(coord), WithSyncManager(manager))
	recorder := newSyncRecorder()
	f.index.AddSyncListener(recorder)
	f.index.SetMirrored(true)
	f.index.SetDataSelectionQueries(selectAll(t, 10))

	recorder.wait(t)
	assert.GreaterOrEqual(t, manager.performed.Load(), int32(1))

	// A client does not stop a coordinator it does not own
	require.NoError(t, f.client.Close())
	assert.True(t, coord.Submit(func(context.Context) {}))
}

func TestClient_Close(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	lg := mocks.NewMockLocalGateway(ctrl)
	lg.EXPECT().HasOfflineData().Return(false)
	lg.EXPECT().Close().Return(errors.New("disk gone")).Times(1)

	client, err := NewClient(nil,
		WithDataDir(t.TempDir()),
		WithTempDir(t.TempDir()),
		WithCompletionExecutor(inlineExecutor),
		WithRemoteGateways(func(string) RemoteGateway { return mocks.NewMockRemoteGateway(ctrl) }),
		WithLocalEngine(func(context.Context, string) (LocalGateway, error) { return lg, nil }),
	)
	require.NoError(t, err)

	idx := client.Index("products")
	idx.SetMirrored(true)
	assert.False(t, idx.HasOfflineData())

	err = client.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")

	assert.NoError(t, client.Close(), "closing twice is a no-op")
	assert.ErrorIs(t, client.submit(func(context.Context) {}), ErrClientClosed)
}

func TestClient_LocalOpenFailure(t *testing.T) {
	t.Parallel()

	openErr := errors.New("permission denied")
	f := newFixture(t, WithLocalEngine(func(context.Context, string) (LocalGateway, error) {
		return nil, openErr
	}))
	f.mirror(OfflineOnly)

	assert.False(t, f.index.HasOfflineData())
	_, err := f.index.SearchOffline(context.Background(), nil)
	assert.ErrorIs(t, err, openErr)
}
