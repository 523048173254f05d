package mirror

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/search-mirror/internal/otel"
	"github.com/stacklok/search-mirror/pkg/local"
	"github.com/stacklok/search-mirror/pkg/query"
	"github.com/stacklok/search-mirror/pkg/searcherr"
)

// Browsing is never routed by the request strategy: the caller picks the
// gateway, and the cursor remembers it.

// BrowseOnline browses the remote index.
func (m *MirroredIndex) BrowseOnline(ctx context.Context, q *query.Query) (*Result, error) {
	ctx, span := m.browseSpan(ctx, "mirror.BrowseOnline", false)
	defer span.End()

	result, err := m.online(ctx, func(ctx context.Context) (json.RawMessage, error) {
		return m.remote.Browse(ctx, q)
	})
	otel.RecordError(span, err)
	return result, err
}

// BrowseOnlineFrom continues a browse of the remote index.
func (m *MirroredIndex) BrowseOnlineFrom(ctx context.Context, cursor Cursor) (*Result, error) {
	if cursor.Origin == OriginLocal {
		return nil, searcherr.ErrCursorMismatch
	}
	ctx, span := m.browseSpan(ctx, "mirror.BrowseOnlineFrom", true)
	defer span.End()

	result, err := m.online(ctx, func(ctx context.Context) (json.RawMessage, error) {
		return m.remote.BrowseFrom(ctx, cursor.Value)
	})
	otel.RecordError(span, err)
	return result, err
}

// BrowseMirror browses the mirror.
func (m *MirroredIndex) BrowseMirror(ctx context.Context, q *query.Query) (*Result, error) {
	ctx, span := m.browseSpan(ctx, "mirror.BrowseMirror", false)
	defer span.End()

	result, err := m.offline(ctx, func(ctx context.Context) (json.RawMessage, error) {
		return m.withLocal(ctx, func(ctx context.Context, lg LocalGateway) local.Response {
			return lg.Browse(ctx, q.Build())
		})
	})
	otel.RecordError(span, err)
	return result, err
}

// BrowseMirrorFrom continues a browse of the mirror.
func (m *MirroredIndex) BrowseMirrorFrom(ctx context.Context, cursor Cursor) (*Result, error) {
	if cursor.Origin != OriginLocal {
		return nil, searcherr.ErrCursorMismatch
	}
	ctx, span := m.browseSpan(ctx, "mirror.BrowseMirrorFrom", true)
	defer span.End()

	params := (&query.Query{}).SetCursor(cursor.Value).Build()
	result, err := m.offline(ctx, func(ctx context.Context) (json.RawMessage, error) {
		return m.withLocal(ctx, func(ctx context.Context, lg LocalGateway) local.Response {
			return lg.Browse(ctx, params)
		})
	})
	otel.RecordError(span, err)
	return result, err
}

func (m *MirroredIndex) browseSpan(ctx context.Context, name string, hasCursor bool) (context.Context, trace.Span) {
	return otel.StartSpan(ctx, m.client.tracer, name,
		trace.WithAttributes(
			otel.AttrIndexName.String(m.name),
			otel.AttrHasCursor.Bool(hasCursor),
		))
}
