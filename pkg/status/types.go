package status

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/stacklok/search-mirror/pkg/query"
	"github.com/stacklok/search-mirror/pkg/searcherr"
)

// SyncPhase represents the current phase of a synchronization operation
type SyncPhase string

const (
	// SyncPhaseSyncing means sync is currently in progress
	SyncPhaseSyncing SyncPhase = "Syncing"

	// SyncPhaseComplete means sync completed successfully
	SyncPhaseComplete SyncPhase = "Complete"

	// SyncPhaseFailed means sync failed
	SyncPhaseFailed SyncPhase = "Failed"
)

// DataSelectionQuery selects the subset of a remote index that is mirrored:
// every object matching Query, up to MaxObjects.
type DataSelectionQuery struct {
	Query      *query.Query
	MaxObjects int
}

// NewDataSelectionQuery validates and returns a data selection query. A nil
// query selects every object.
func NewDataSelectionQuery(q *query.Query, maxObjects int) (DataSelectionQuery, error) {
	if maxObjects < 0 {
		return DataSelectionQuery{}, fmt.Errorf("maxObjects must not be negative: %w", searcherr.ErrInvalidArgument)
	}
	if q == nil {
		q = &query.Query{}
	}
	return DataSelectionQuery{Query: q, MaxObjects: maxObjects}, nil
}

// Equal reports whether both queries select the same objects.
func (d DataSelectionQuery) Equal(other DataSelectionQuery) bool {
	return d.MaxObjects == other.MaxObjects && d.Query.Equal(other.Query)
}

// EqualQueries reports whether two query lists are identical, order included.
func EqualQueries(a, b []DataSelectionQuery) bool {
	return slices.EqualFunc(a, b, DataSelectionQuery.Equal)
}

// SyncState is the persisted state of one mirrored index.
type SyncState struct {
	// LastSyncDate is the completion time of the last successful sync
	LastSyncDate time.Time

	// QueriesModificationDate is the last time the data selection queries changed
	QueriesModificationDate time.Time

	// Queries are the data selection queries, in sync order
	Queries []DataSelectionQuery

	// Phase is the outcome of the last sync attempt
	Phase SyncPhase

	// Message carries the error of the last failed sync
	Message string

	// LastAttempt is the start time of the last sync attempt
	LastAttempt time.Time

	// ObjectCount is the number of objects fetched by the last successful sync
	ObjectCount int
}

// NeverSynced reports whether no sync ever completed.
func (s *SyncState) NeverSynced() bool {
	return s.LastSyncDate.IsZero()
}

type persistedQuery struct {
	Query      string `json:"query"`
	MaxObjects int    `json:"maxObjects"`
}

type persistedState struct {
	LastSyncDate            int64            `json:"lastSyncDate"`
	QueriesModificationDate int64            `json:"queriesModificationDate"`
	Queries                 []persistedQuery `json:"queries"`
	Phase                   SyncPhase        `json:"phase,omitempty"`
	Message                 string           `json:"message,omitempty"`
	LastAttempt             int64            `json:"lastAttempt,omitempty"`
	ObjectCount             int              `json:"objectCount,omitempty"`
}

// MarshalJSON encodes dates as epoch milliseconds and queries as their
// URL-encoded parameters.
func (s *SyncState) MarshalJSON() ([]byte, error) {
	p := persistedState{
		LastSyncDate:            toMillis(s.LastSyncDate),
		QueriesModificationDate: toMillis(s.QueriesModificationDate),
		Queries:                 make([]persistedQuery, 0, len(s.Queries)),
		Phase:                   s.Phase,
		Message:                 s.Message,
		LastAttempt:             toMillis(s.LastAttempt),
		ObjectCount:             s.ObjectCount,
	}
	for _, q := range s.Queries {
		p.Queries = append(p.Queries, persistedQuery{Query: q.Query.Build(), MaxObjects: q.MaxObjects})
	}
	return json.Marshal(p)
}

// UnmarshalJSON decodes the format written by MarshalJSON. Unknown fields are
// ignored and missing ones are left at their zero value.
func (s *SyncState) UnmarshalJSON(data []byte) error {
	var p persistedState
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	queries := make([]DataSelectionQuery, 0, len(p.Queries))
	for _, pq := range p.Queries {
		q, err := query.Parse(pq.Query)
		if err != nil {
			return fmt.Errorf("invalid data selection query %q: %w", pq.Query, err)
		}
		queries = append(queries, DataSelectionQuery{Query: q, MaxObjects: max(pq.MaxObjects, 0)})
	}

	*s = SyncState{
		LastSyncDate:            fromMillis(p.LastSyncDate),
		QueriesModificationDate: fromMillis(p.QueriesModificationDate),
		Queries:                 queries,
		Phase:                   p.Phase,
		Message:                 p.Message,
		LastAttempt:             fromMillis(p.LastAttempt),
		ObjectCount:             p.ObjectCount,
	}
	return nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
