package mirror

import (
	"context"
	"encoding/json"

	"github.com/stacklok/search-mirror/pkg/index"
	"github.com/stacklok/search-mirror/pkg/local"
	"github.com/stacklok/search-mirror/pkg/query"
)

// RemoteGateway is the online side of a mirrored index. *index.Index
// implements it.
//
//go:generate mockgen -destination=mocks/mock_gateway.go -package=mocks -source=gateway.go RemoteGateway,LocalGateway
type RemoteGateway interface {
	Search(ctx context.Context, q *query.Query) (json.RawMessage, error)
	MultipleQueries(ctx context.Context, queries []*query.Query, strategy index.MultipleQueriesStrategy) (json.RawMessage, error)
	GetObject(ctx context.Context, objectID string, attributesToRetrieve []string) (json.RawMessage, error)
	GetObjects(ctx context.Context, objectIDs []string, attributesToRetrieve []string) (json.RawMessage, error)
	Browse(ctx context.Context, q *query.Query) (json.RawMessage, error)
	BrowseFrom(ctx context.Context, cursor string) (json.RawMessage, error)
	GetSettings(ctx context.Context) (json.RawMessage, error)
}

// LocalGateway is the offline side of a mirrored index. *local.Engine
// implements it.
type LocalGateway interface {
	Build(ctx context.Context, settingsPath string, objectPaths []string, clear bool, deletedIDs []string) int
	Search(ctx context.Context, params string) local.Response
	Browse(ctx context.Context, params string) local.Response
	GetObjects(ctx context.Context, objectIDs []string, attributesToRetrieve []string) local.Response
	HasOfflineData() bool
	Close() error
}

// LocalOpener opens the local gateway stored in dir.
type LocalOpener func(ctx context.Context, dir string) (LocalGateway, error)

// RemoteFactory returns the remote gateway of the named index.
type RemoteFactory func(name string) RemoteGateway

func openEngine(ctx context.Context, dir string) (LocalGateway, error) {
	engine, err := local.Open(ctx, dir)
	if err != nil {
		return nil, err
	}
	return engine, nil
}

var (
	_ RemoteGateway = (*index.Index)(nil)
	_ LocalGateway  = (*local.Engine)(nil)
)
