// Package service provides the business logic behind the search mirror daemon
package service

import (
	"context"
	"errors"
	"time"

	"github.com/stacklok/search-mirror/pkg/mirror"
	"github.com/stacklok/search-mirror/pkg/query"
	"github.com/stacklok/search-mirror/pkg/status"
)

var (
	// ErrIndexNotFound is returned for an index missing from the configuration
	ErrIndexNotFound = errors.New("index not found")
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go MirrorService

// MirrorService defines the operations exposed by the daemon
type MirrorService interface {
	// CheckReadiness checks if the service is ready to serve requests
	CheckReadiness(ctx context.Context) error

	// ListIndexes returns the status of every configured index
	ListIndexes(ctx context.Context) ([]IndexStatus, error)

	// Search runs q on the index with its request strategy
	Search(ctx context.Context, index string, q *query.Query) (*mirror.Result, error)

	// Sync queues a sync of the index
	Sync(ctx context.Context, index string) error

	// Status returns the mirror status of the index
	Status(ctx context.Context, index string) (*IndexStatus, error)
}

// IndexStatus describes the mirror of one index
type IndexStatus struct {
	Name              string           `json:"name"`
	Mirrored          bool             `json:"mirrored"`
	RequestStrategy   string           `json:"request_strategy"`
	FallbackTimeout   string           `json:"fallback_timeout"`
	DelayBetweenSyncs string           `json:"delay_between_syncs"`
	Syncing           bool             `json:"syncing"`
	HasOfflineData    bool             `json:"has_offline_data"`
	Phase             status.SyncPhase `json:"phase,omitempty"`
	Message           string           `json:"message,omitempty"`
	LastSyncDate      *time.Time       `json:"last_sync_date,omitempty"`
	LastAttempt       *time.Time       `json:"last_attempt,omitempty"`
	ObjectCount       int              `json:"object_count"`
	Queries           []QueryStatus    `json:"data_selection_queries"`
}

// QueryStatus describes one data selection query
type QueryStatus struct {
	Query      string `json:"query"`
	MaxObjects int    `json:"max_objects"`
}

// NewIndexStatus captures the current status of idx
func NewIndexStatus(idx *mirror.MirroredIndex) IndexStatus {
	state := idx.SyncState()
	st := IndexStatus{
		Name:              idx.Name(),
		Mirrored:          idx.Mirrored(),
		RequestStrategy:   idx.RequestStrategy().String(),
		FallbackTimeout:   idx.OfflineFallbackTimeout().String(),
		DelayBetweenSyncs: idx.DelayBetweenSyncs().String(),
		Syncing:           idx.IsSyncing(),
		HasOfflineData:    idx.HasOfflineData(),
		Phase:             state.Phase,
		Message:           state.Message,
		LastSyncDate:      timePtr(state.LastSyncDate),
		LastAttempt:       timePtr(state.LastAttempt),
		ObjectCount:       state.ObjectCount,
		Queries:           make([]QueryStatus, 0, len(state.Queries)),
	}
	for _, q := range state.Queries {
		st.Queries = append(st.Queries, QueryStatus{Query: q.Query.Build(), MaxObjects: q.MaxObjects})
	}
	return st
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
