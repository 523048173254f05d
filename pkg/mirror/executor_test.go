package mirror

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/search-mirror/pkg/query"
)

func TestSerialExecutor_Order(t *testing.T) {
	t.Parallel()

	e := NewSerialExecutor()
	var (
		mu  sync.Mutex
		got []int
	)
	for i := range 50 {
		e.Execute(func() {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, i)
		})
	}
	e.Close()

	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestSerialExecutor_AfterClose(t *testing.T) {
	t.Parallel()

	e := NewSerialExecutor()
	e.Close()
	e.Close()

	ran := false
	e.Execute(func() { ran = true })
	assert.True(t, ran, "functions run inline once the executor is closed")
}

func TestSerialExecutor_RecoversPanics(t *testing.T) {
	t.Parallel()

	e := NewSerialExecutor()
	ran := make(chan struct{})
	e.Execute(func() { panic("boom") })
	e.Execute(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("executor stopped after a panic")
	}
	e.Close()
}

func TestAsync_DeliversResult(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.remote.EXPECT().Search(gomock.Any(), gomock.Any()).Return(remoteHits, nil)

	var (
		result *Result
		err    error
	)
	req := f.index.SearchAsync(context.Background(), query.New("phone"), func(r *Result, e error) {
		result, err = r, e
	})
	waitDone(t, req)

	require.NoError(t, err)
	assert.JSONEq(t, string(remoteHits), string(result.Content))
	assert.False(t, req.Cancelled())
}

func TestAsync_DeliversError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.mirror(OnlineOnly)
	f.remote.EXPECT().GetObject(gomock.Any(), "42", gomock.Any()).Return(nil, errRemote)

	var err error
	req := f.index.GetObjectAsync(context.Background(), "42", nil, func(_ *Result, e error) { err = e })
	waitDone(t, req)
	assert.ErrorIs(t, err, errRemote)
}

func TestAsync_CancelSuppressesHandler(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	release := make(chan struct{})
	f.remote.EXPECT().Search(gomock.Any(), gomock.Any()).DoAndReturn(slowRemote(release, remoteHits, nil))

	called := false
	req := f.index.SearchAsync(context.Background(), query.New("phone"), func(*Result, error) { called = true })
	req.Cancel()
	close(release)
	waitDone(t, req)

	assert.True(t, req.Cancelled())
	assert.False(t, called)
}

func TestAsync_NilHandler(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.remote.EXPECT().Search(gomock.Any(), gomock.Any()).Return(remoteHits, nil)

	waitDone(t, f.index.SearchAsync(context.Background(), query.New("phone"), nil))
}

func TestAsync_SerialExecutorDelivery(t *testing.T) {
	t.Parallel()

	executor := NewSerialExecutor()
	f := newFixture(t, WithCompletionExecutor(executor))
	t.Cleanup(executor.Close)
	f.remote.EXPECT().Search(gomock.Any(), gomock.Any()).Return(remoteHits, nil).Times(3)

	var (
		mu    sync.Mutex
		count int
	)
	reqs := make([]*Request, 0, 3)
	for range 3 {
		reqs = append(reqs, f.index.SearchAsync(context.Background(), query.New("phone"), func(*Result, error) {
			mu.Lock()
			defer mu.Unlock()
			count++
		}))
	}
	for _, req := range reqs {
		waitDone(t, req)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, count)
}

func waitDone(t *testing.T, req *Request) {
	t.Helper()
	select {
	case <-req.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("request never completed")
	}
}
