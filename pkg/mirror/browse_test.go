package mirror

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/search-mirror/pkg/query"
	"github.com/stacklok/search-mirror/pkg/searcherr"
)

func TestBrowse_CursorMismatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.mirror(FallbackOnFailure)

	_, err := f.index.BrowseOnlineFrom(context.Background(), Cursor{Value: "abc", Origin: OriginLocal})
	assert.ErrorIs(t, err, searcherr.ErrCursorMismatch)

	_, err = f.index.BrowseMirrorFrom(context.Background(), Cursor{Value: "abc", Origin: OriginRemote})
	assert.ErrorIs(t, err, searcherr.ErrCursorMismatch)

	_, err = f.index.BrowseMirrorFrom(context.Background(), Cursor{Value: "abc"})
	assert.ErrorIs(t, err, searcherr.ErrCursorMismatch)
}

func TestBrowseOnline(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.mirror(OfflineOnly)
	q := query.New("").SetHitsPerPage(1)
	f.remote.EXPECT().Browse(gomock.Any(), q).
		Return(json.RawMessage(`{"hits":[{"objectID":"1"}],"cursor":"next"}`), nil)
	f.remote.EXPECT().BrowseFrom(gomock.Any(), "next").
		Return(json.RawMessage(`{"hits":[{"objectID":"2"}]}`), nil)

	first, err := f.index.BrowseOnline(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, OriginRemote, first.Origin, "browsing ignores the request strategy")
	cursor := first.Cursor()
	assert.Equal(t, Cursor{Value: "next", Origin: OriginRemote}, cursor)

	second, err := f.index.BrowseOnlineFrom(context.Background(), cursor)
	require.NoError(t, err)
	assert.True(t, second.Cursor().IsZero())
}

func TestBrowseMirror(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.mirror(OnlineOnly)
	f.local.EXPECT().HasOfflineData().Return(true).AnyTimes()
	f.local.EXPECT().Browse(gomock.Any(), "hitsPerPage=1").
		Return(ok(json.RawMessage(`{"hits":[{"objectID":"1"}],"cursor":"2"}`)))
	f.local.EXPECT().Browse(gomock.Any(), "cursor=2").
		Return(ok(json.RawMessage(`{"hits":[{"objectID":"2"}]}`)))

	first, err := f.index.BrowseMirror(context.Background(), query.New("").SetHitsPerPage(1))
	require.NoError(t, err)
	assert.Equal(t, OriginLocal, first.Origin)

	second, err := f.index.BrowseMirrorFrom(context.Background(), first.Cursor())
	require.NoError(t, err)
	assert.Equal(t, "2", second.Get("hits.0.objectID").String())
}

func TestBrowseMirror_Preconditions(t *testing.T) {
	t.Parallel()

	t.Run("not mirrored", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.index.BrowseMirror(context.Background(), query.New(""))
		assert.ErrorIs(t, err, searcherr.ErrMirrorNotActive)
	})

	t.Run("no data", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.index.SetMirrored(true)
		f.local.EXPECT().HasOfflineData().Return(false)
		_, err := f.index.BrowseMirror(context.Background(), query.New(""))
		assert.ErrorIs(t, err, searcherr.ErrMirrorDataUnavailable)
	})
}

func TestBrowseMirrorAsync(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.index.SetMirrored(true)
	f.local.EXPECT().HasOfflineData().Return(true).AnyTimes()
	f.local.EXPECT().Browse(gomock.Any(), gomock.Any()).Return(ok(json.RawMessage(`{"hits":[]}`)))

	var result *Result
	req := f.index.BrowseMirrorAsync(context.Background(), query.New(""), func(r *Result, err error) {
		assert.NoError(t, err)
		result = r
	})
	waitDone(t, req)
	require.NotNil(t, result)
	assert.Equal(t, OriginLocal, result.Origin)
}
