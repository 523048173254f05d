package mirror

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/search-mirror/internal/otel"
	"github.com/stacklok/search-mirror/pkg/index"
	"github.com/stacklok/search-mirror/pkg/local"
	"github.com/stacklok/search-mirror/pkg/query"
	"github.com/stacklok/search-mirror/pkg/searcherr"
)

// fetch is one read operation against one gateway.
type fetch func(ctx context.Context) (json.RawMessage, error)

type outcome struct {
	data json.RawMessage
	err  error
}

// Search runs q according to the request strategy.
func (m *MirroredIndex) Search(ctx context.Context, q *query.Query) (*Result, error) {
	return m.route(ctx, "search",
		func(ctx context.Context) (json.RawMessage, error) { return m.remote.Search(ctx, q) },
		func(ctx context.Context) (json.RawMessage, error) { return m.searchLocal(ctx, q) },
	)
}

// SearchOnline runs q against the remote index.
func (m *MirroredIndex) SearchOnline(ctx context.Context, q *query.Query) (*Result, error) {
	return m.online(ctx, func(ctx context.Context) (json.RawMessage, error) { return m.remote.Search(ctx, q) })
}

// SearchOffline runs q against the mirror.
func (m *MirroredIndex) SearchOffline(ctx context.Context, q *query.Query) (*Result, error) {
	return m.offline(ctx, func(ctx context.Context) (json.RawMessage, error) { return m.searchLocal(ctx, q) })
}

// MultipleQueries runs a batch of queries on this index according to the
// request strategy. The mirror executes the batch one query at a time.
func (m *MirroredIndex) MultipleQueries(
	ctx context.Context, queries []*query.Query, strategy index.MultipleQueriesStrategy,
) (*Result, error) {
	return m.route(ctx, "multiple-queries",
		func(ctx context.Context) (json.RawMessage, error) {
			return m.remote.MultipleQueries(ctx, queries, strategy)
		},
		func(ctx context.Context) (json.RawMessage, error) {
			return m.multipleQueriesLocal(ctx, queries, strategy)
		},
	)
}

// MultipleQueriesOnline runs a batch of queries against the remote index.
func (m *MirroredIndex) MultipleQueriesOnline(
	ctx context.Context, queries []*query.Query, strategy index.MultipleQueriesStrategy,
) (*Result, error) {
	return m.online(ctx, func(ctx context.Context) (json.RawMessage, error) {
		return m.remote.MultipleQueries(ctx, queries, strategy)
	})
}

// MultipleQueriesOffline runs a batch of queries against the mirror.
func (m *MirroredIndex) MultipleQueriesOffline(
	ctx context.Context, queries []*query.Query, strategy index.MultipleQueriesStrategy,
) (*Result, error) {
	return m.offline(ctx, func(ctx context.Context) (json.RawMessage, error) {
		return m.multipleQueriesLocal(ctx, queries, strategy)
	})
}

// GetObject retrieves one object according to the request strategy.
func (m *MirroredIndex) GetObject(ctx context.Context, objectID string, attributesToRetrieve []string) (*Result, error) {
	return m.route(ctx, "get-object",
		func(ctx context.Context) (json.RawMessage, error) {
			return m.remote.GetObject(ctx, objectID, attributesToRetrieve)
		},
		func(ctx context.Context) (json.RawMessage, error) {
			return m.getObjectLocal(ctx, objectID, attributesToRetrieve)
		},
	)
}

// GetObjects retrieves several objects according to the request strategy.
func (m *MirroredIndex) GetObjects(ctx context.Context, objectIDs []string, attributesToRetrieve []string) (*Result, error) {
	return m.route(ctx, "get-objects",
		func(ctx context.Context) (json.RawMessage, error) {
			return m.remote.GetObjects(ctx, objectIDs, attributesToRetrieve)
		},
		func(ctx context.Context) (json.RawMessage, error) {
			return m.getObjectsLocal(ctx, objectIDs, attributesToRetrieve)
		},
	)
}

// GetObjectsOnline retrieves several objects from the remote index.
func (m *MirroredIndex) GetObjectsOnline(ctx context.Context, objectIDs []string, attributesToRetrieve []string) (*Result, error) {
	return m.online(ctx, func(ctx context.Context) (json.RawMessage, error) {
		return m.remote.GetObjects(ctx, objectIDs, attributesToRetrieve)
	})
}

// GetObjectsOffline retrieves several objects from the mirror.
func (m *MirroredIndex) GetObjectsOffline(ctx context.Context, objectIDs []string, attributesToRetrieve []string) (*Result, error) {
	return m.offline(ctx, func(ctx context.Context) (json.RawMessage, error) {
		return m.getObjectsLocal(ctx, objectIDs, attributesToRetrieve)
	})
}

// route dispatches one read operation according to the request strategy.
func (m *MirroredIndex) route(ctx context.Context, operation string, remoteFetch, localFetch fetch) (*Result, error) {
	m.mu.Lock()
	mirrored, strategy, timeout := m.mirrored, m.strategy, m.fallbackTimeout
	m.mu.Unlock()

	ctx, span := otel.StartSpan(ctx, m.client.tracer, "mirror."+operation,
		trace.WithAttributes(
			otel.AttrIndexName.String(m.name),
			otel.AttrStrategy.String(strategy.String()),
		))
	defer span.End()

	var (
		result *Result
		err    error
	)
	switch {
	case strategy == OfflineOnly:
		// fails with ErrMirrorNotActive when mirroring is off
		result, err = run(ctx, localFetch, OriginLocal)
	case !mirrored, strategy == OnlineOnly:
		result, err = run(ctx, remoteFetch, OriginNone)
	case strategy == FallbackOnTimeout:
		result, err = m.raceWithTimeout(ctx, timeout, remoteFetch, localFetch)
	default:
		result, err = m.fallbackOnFailure(ctx, remoteFetch, localFetch)
	}

	origin := ""
	if err != nil {
		otel.RecordError(span, err)
	} else {
		origin = string(result.Origin)
		span.SetAttributes(otel.AttrOrigin.String(origin))
	}
	m.client.requestMetrics.RecordRequest(ctx, m.name, operation, strategy.String(), origin, err == nil)
	return result, err
}

// fallbackOnFailure answers from the mirror when the remote index fails and
// the mirror holds data.
func (m *MirroredIndex) fallbackOnFailure(ctx context.Context, remoteFetch, localFetch fetch) (*Result, error) {
	data, err := remoteFetch(ctx)
	if err == nil {
		return &Result{Content: data, Origin: OriginRemote}, nil
	}
	if ctx.Err() != nil || !m.canFallback() {
		return nil, err
	}
	m.logFallback(ctx, err)
	return run(ctx, localFetch, OriginLocal)
}

// raceWithTimeout queries the remote index and, once timeout elapses or the
// remote index fails, the mirror too. The first success wins. When both fail
// the mirror error is returned. The remote request is never cancelled; a
// late remote outcome is dropped.
func (m *MirroredIndex) raceWithTimeout(
	ctx context.Context, timeout time.Duration, remoteFetch, localFetch fetch,
) (*Result, error) {
	remoteCh := make(chan outcome, 1)
	go func(ch chan<- outcome) {
		data, err := remoteFetch(context.WithoutCancel(ctx))
		ch <- outcome{data: data, err: err}
	}(remoteCh)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var (
		localCh   chan outcome
		remoteErr error
		localErr  error
	)
	startLocal := func() {
		if localCh != nil || localErr != nil || !m.canFallback() {
			return
		}
		localCh = make(chan outcome, 1)
		go func(ch chan<- outcome) {
			data, err := localFetch(ctx)
			ch <- outcome{data: data, err: err}
		}(localCh)
	}

	for {
		select {
		case r := <-remoteCh:
			if r.err == nil {
				return &Result{Content: r.data, Origin: OriginRemote}, nil
			}
			remoteErr = r.err
			remoteCh = nil
			startLocal()
			if localCh == nil {
				if localErr != nil {
					return nil, localErr
				}
				return nil, remoteErr
			}
		case <-timer.C:
			startLocal()
		case l := <-localCh:
			localCh = nil
			if l.err == nil {
				if remoteErr != nil {
					m.logFallback(ctx, remoteErr)
				}
				return &Result{Content: l.data, Origin: OriginLocal}, nil
			}
			localErr = l.err
			if remoteCh == nil {
				return nil, localErr
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// canFallback reports whether the mirror can answer.
func (m *MirroredIndex) canFallback() bool {
	return m.HasOfflineData()
}

func (m *MirroredIndex) logFallback(ctx context.Context, err error) {
	slog.DebugContext(ctx, "Remote request failed, answering from the mirror",
		"index", m.name,
		"transient", searcherr.IsTransient(err),
		"error", err)
}

// online runs one operation against the remote index. Results of a mirrored
// index are tagged remote.
func (m *MirroredIndex) online(ctx context.Context, remoteFetch fetch) (*Result, error) {
	origin := OriginNone
	if m.Mirrored() {
		origin = OriginRemote
	}
	return run(ctx, remoteFetch, origin)
}

// offline runs one operation against the mirror.
func (m *MirroredIndex) offline(ctx context.Context, localFetch fetch) (*Result, error) {
	return run(ctx, localFetch, OriginLocal)
}

// run calls f and tags its content with origin.
func run(ctx context.Context, f fetch, origin Origin) (*Result, error) {
	data, err := f(ctx)
	if err != nil {
		return nil, err
	}
	return &Result{Content: data, Origin: origin}, nil
}

// withLocalData checks the mirror preconditions and runs call on the local
// gateway.
func (m *MirroredIndex) withLocalData(
	ctx context.Context, call func(ctx context.Context, lg LocalGateway) (json.RawMessage, error),
) (json.RawMessage, error) {
	if !m.Mirrored() {
		return nil, searcherr.ErrMirrorNotActive
	}
	lg, err := m.localGateway(ctx)
	if err != nil {
		return nil, err
	}
	if !lg.HasOfflineData() {
		return nil, searcherr.ErrMirrorDataUnavailable
	}
	return call(ctx, lg)
}

// withLocal runs one local engine call. A non-200 response becomes a
// ServiceError.
func (m *MirroredIndex) withLocal(
	ctx context.Context, call func(ctx context.Context, lg LocalGateway) local.Response,
) (json.RawMessage, error) {
	return m.withLocalData(ctx, func(ctx context.Context, lg LocalGateway) (json.RawMessage, error) {
		return fromResponse(call(ctx, lg))
	})
}

func fromResponse(resp local.Response) (json.RawMessage, error) {
	if !resp.OK() {
		return nil, searcherr.NewServiceError(resp.StatusCode, resp.ErrorMessage)
	}
	return resp.Data, nil
}

func (m *MirroredIndex) searchLocal(ctx context.Context, q *query.Query) (json.RawMessage, error) {
	return m.withLocal(ctx, func(ctx context.Context, lg LocalGateway) local.Response {
		return lg.Search(ctx, q.Build())
	})
}

func (m *MirroredIndex) getObjectsLocal(ctx context.Context, objectIDs []string, attrs []string) (json.RawMessage, error) {
	return m.withLocal(ctx, func(ctx context.Context, lg LocalGateway) local.Response {
		return lg.GetObjects(ctx, objectIDs, attrs)
	})
}

func (m *MirroredIndex) getObjectLocal(ctx context.Context, objectID string, attrs []string) (json.RawMessage, error) {
	data, err := m.getObjectsLocal(ctx, []string{objectID}, attrs)
	if err != nil {
		return nil, err
	}
	object := gjson.GetBytes(data, "results.0")
	if !object.IsObject() {
		return nil, searcherr.NewServiceError(http.StatusNotFound, "ObjectID does not exist")
	}
	return json.RawMessage(object.Raw), nil
}
