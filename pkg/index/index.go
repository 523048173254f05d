// Package index implements the online operations of a remote search index on
// top of the API client: search, multi-queries, object retrieval, browsing and
// settings.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/search-mirror/internal/otel"
	"github.com/stacklok/search-mirror/pkg/httpclient"
	"github.com/stacklok/search-mirror/pkg/query"
	"github.com/stacklok/search-mirror/pkg/searcherr"
)

const (
	// DefaultCacheSize is the number of search responses kept by the cache.
	DefaultCacheSize = 64
	// DefaultCacheTTL is how long a cached search response stays valid.
	DefaultCacheTTL = 2 * time.Second
)

// MultipleQueriesStrategy controls how a batch of queries is executed.
type MultipleQueriesStrategy string

const (
	// StrategyNone executes every query of the batch.
	StrategyNone MultipleQueriesStrategy = "none"
	// StrategyStopIfEnoughMatches skips the remaining queries once one of
	// them returns at least hitsPerPage hits.
	StrategyStopIfEnoughMatches MultipleQueriesStrategy = "stopIfEnoughMatches"
)

// IndexQuery is one entry of a multi-index batch.
type IndexQuery struct {
	IndexName string
	Query     *query.Query
}

// Option configures an Index.
type Option func(*Index)

// WithSearchCache keeps up to size search responses for ttl.
func WithSearchCache(size int, ttl time.Duration) Option {
	return func(i *Index) {
		if size <= 0 || ttl <= 0 {
			return
		}
		i.cache = expirable.NewLRU[string, json.RawMessage](size, nil, ttl)
	}
}

// WithTracer traces every remote call with tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(i *Index) {
		i.tracer = tracer
	}
}

// Index is a remote index. It is safe for concurrent use.
type Index struct {
	client *httpclient.Client
	name   string
	path   string
	cache  *expirable.LRU[string, json.RawMessage]
	tracer trace.Tracer
}

// New returns the remote index called name.
func New(client *httpclient.Client, name string, opts ...Option) *Index {
	i := &Index{
		client: client,
		name:   name,
		path:   "/1/indexes/" + url.PathEscape(name),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Name returns the index name.
func (i *Index) Name() string {
	return i.name
}

// Client returns the API client the index talks through.
func (i *Index) Client() *httpclient.Client {
	return i.client
}

// Search runs q against the index.
func (i *Index) Search(ctx context.Context, q *query.Query) (json.RawMessage, error) {
	ctx, span := otel.StartSpan(ctx, i.tracer, "index.Search",
		trace.WithAttributes(otel.AttrIndexName.String(i.name)))
	defer span.End()

	params := q.Build()
	if i.cache != nil {
		if cached, ok := i.cache.Get(params); ok {
			span.SetAttributes(otel.AttrCacheHit.Bool(true))
			return cached, nil
		}
	}

	path := i.path
	if params != "" {
		path += "?" + params
	}
	data, err := i.get(ctx, path, true)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}
	if i.cache != nil {
		i.cache.Add(params, data)
	}
	return data, nil
}

// ClearCache drops every cached search response.
func (i *Index) ClearCache() {
	if i.cache != nil {
		i.cache.Purge()
	}
}

// MultipleQueries runs several queries against this index in one round trip.
func (i *Index) MultipleQueries(
	ctx context.Context, queries []*query.Query, strategy MultipleQueriesStrategy,
) (json.RawMessage, error) {
	batch := make([]IndexQuery, 0, len(queries))
	for _, q := range queries {
		batch = append(batch, IndexQuery{IndexName: i.name, Query: q})
	}
	return MultipleQueries(ctx, i.client, batch, strategy)
}

// GetObject fetches one object. attributesToRetrieve may be nil to get every
// attribute.
func (i *Index) GetObject(ctx context.Context, objectID string, attributesToRetrieve []string) (json.RawMessage, error) {
	ctx, span := otel.StartSpan(ctx, i.tracer, "index.GetObject",
		trace.WithAttributes(otel.AttrIndexName.String(i.name)))
	defer span.End()

	path := i.path + "/" + url.PathEscape(objectID)
	if len(attributesToRetrieve) > 0 {
		path += "?attributes=" + url.QueryEscape(strings.Join(attributesToRetrieve, ","))
	}
	data, err := i.get(ctx, path, false)
	otel.RecordError(span, err)
	return data, err
}

// GetObjects fetches several objects in one round trip.
func (i *Index) GetObjects(ctx context.Context, objectIDs []string, attributesToRetrieve []string) (json.RawMessage, error) {
	ctx, span := otel.StartSpan(ctx, i.tracer, "index.GetObjects",
		trace.WithAttributes(otel.AttrIndexName.String(i.name), otel.AttrQueryCount.Int(len(objectIDs))))
	defer span.End()

	type objectRequest struct {
		IndexName            string `json:"indexName"`
		ObjectID             string `json:"objectID"`
		AttributesToRetrieve string `json:"attributesToRetrieve,omitempty"`
	}
	requests := make([]objectRequest, 0, len(objectIDs))
	for _, id := range objectIDs {
		requests = append(requests, objectRequest{
			IndexName:            i.name,
			ObjectID:             id,
			AttributesToRetrieve: strings.Join(attributesToRetrieve, ","),
		})
	}

	data, err := i.post(ctx, "/1/indexes/*/objects", map[string]any{"requests": requests})
	otel.RecordError(span, err)
	return data, err
}

// Browse starts browsing the index with q. The response carries a cursor when
// more pages are available.
func (i *Index) Browse(ctx context.Context, q *query.Query) (json.RawMessage, error) {
	ctx, span := otel.StartSpan(ctx, i.tracer, "index.Browse",
		trace.WithAttributes(otel.AttrIndexName.String(i.name), otel.AttrHasCursor.Bool(false)))
	defer span.End()

	path := i.path + "/browse"
	if params := q.Build(); params != "" {
		path += "?" + params
	}
	data, err := i.get(ctx, path, false)
	otel.RecordError(span, err)
	return data, err
}

// BrowseFrom continues browsing from a cursor returned by a previous page.
func (i *Index) BrowseFrom(ctx context.Context, cursor string) (json.RawMessage, error) {
	ctx, span := otel.StartSpan(ctx, i.tracer, "index.BrowseFrom",
		trace.WithAttributes(otel.AttrIndexName.String(i.name), otel.AttrHasCursor.Bool(true)))
	defer span.End()

	if cursor == "" {
		return nil, fmt.Errorf("cursor cannot be empty: %w", searcherr.ErrInvalidArgument)
	}
	data, err := i.get(ctx, i.path+"/browse?cursor="+url.QueryEscape(cursor), false)
	otel.RecordError(span, err)
	return data, err
}

// GetSettings fetches the index settings.
func (i *Index) GetSettings(ctx context.Context) (json.RawMessage, error) {
	ctx, span := otel.StartSpan(ctx, i.tracer, "index.GetSettings",
		trace.WithAttributes(otel.AttrIndexName.String(i.name)))
	defer span.End()

	data, err := i.get(ctx, i.path+"/settings?getVersion=2", false)
	otel.RecordError(span, err)
	return data, err
}

func (i *Index) get(ctx context.Context, path string, search bool) (json.RawMessage, error) {
	data, err := i.client.Get(ctx, path, search)
	if err != nil {
		return nil, err
	}
	return decodeObject(data)
}

func (i *Index) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	data, err := i.client.Post(ctx, path, body, true)
	if err != nil {
		return nil, err
	}
	return decodeObject(data)
}

// MultipleQueries runs a batch of queries that may target different indices.
func MultipleQueries(
	ctx context.Context, client *httpclient.Client, queries []IndexQuery, strategy MultipleQueriesStrategy,
) (json.RawMessage, error) {
	type request struct {
		IndexName string `json:"indexName"`
		Params    string `json:"params"`
	}
	requests := make([]request, 0, len(queries))
	for _, q := range queries {
		requests = append(requests, request{IndexName: q.IndexName, Params: q.Query.Build()})
	}
	if strategy == "" {
		strategy = StrategyNone
	}

	data, err := client.Post(ctx, "/1/indexes/*/queries", map[string]any{
		"requests": requests,
		"strategy": strategy,
	}, true)
	if err != nil {
		return nil, err
	}
	return decodeObject(data)
}

// decodeObject checks that data is a JSON object.
func decodeObject(data []byte) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "{") || !json.Valid(data) {
		return nil, &searcherr.MalformedResponseError{Field: "body", Err: fmt.Errorf("response is not a JSON object")}
	}
	return json.RawMessage(data), nil
}
