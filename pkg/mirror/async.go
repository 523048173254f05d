package mirror

import (
	"context"

	"github.com/stacklok/search-mirror/pkg/index"
	"github.com/stacklok/search-mirror/pkg/query"
)

// SearchAsync runs Search on its own goroutine and delivers the outcome to
// handler on the completion executor.
func (m *MirroredIndex) SearchAsync(ctx context.Context, q *query.Query, handler CompletionHandler) *Request {
	return runAsync(ctx, m.client.executor, func(ctx context.Context) (*Result, error) {
		return m.Search(ctx, q)
	}, handler)
}

// MultipleQueriesAsync is the asynchronous form of MultipleQueries.
func (m *MirroredIndex) MultipleQueriesAsync(
	ctx context.Context, queries []*query.Query, strategy index.MultipleQueriesStrategy, handler CompletionHandler,
) *Request {
	return runAsync(ctx, m.client.executor, func(ctx context.Context) (*Result, error) {
		return m.MultipleQueries(ctx, queries, strategy)
	}, handler)
}

// GetObjectAsync is the asynchronous form of GetObject.
func (m *MirroredIndex) GetObjectAsync(
	ctx context.Context, objectID string, attributesToRetrieve []string, handler CompletionHandler,
) *Request {
	return runAsync(ctx, m.client.executor, func(ctx context.Context) (*Result, error) {
		return m.GetObject(ctx, objectID, attributesToRetrieve)
	}, handler)
}

// GetObjectsAsync is the asynchronous form of GetObjects.
func (m *MirroredIndex) GetObjectsAsync(
	ctx context.Context, objectIDs []string, attributesToRetrieve []string, handler CompletionHandler,
) *Request {
	return runAsync(ctx, m.client.executor, func(ctx context.Context) (*Result, error) {
		return m.GetObjects(ctx, objectIDs, attributesToRetrieve)
	}, handler)
}

// BrowseMirrorAsync is the asynchronous form of BrowseMirror.
func (m *MirroredIndex) BrowseMirrorAsync(ctx context.Context, q *query.Query, handler CompletionHandler) *Request {
	return runAsync(ctx, m.client.executor, func(ctx context.Context) (*Result, error) {
		return m.BrowseMirror(ctx, q)
	}, handler)
}

// BrowseMirrorFromAsync is the asynchronous form of BrowseMirrorFrom.
func (m *MirroredIndex) BrowseMirrorFromAsync(ctx context.Context, cursor Cursor, handler CompletionHandler) *Request {
	return runAsync(ctx, m.client.executor, func(ctx context.Context) (*Result, error) {
		return m.BrowseMirrorFrom(ctx, cursor)
	}, handler)
}
