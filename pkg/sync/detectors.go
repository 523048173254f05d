package sync

import (
	"time"

	"github.com/stacklok/search-mirror/pkg/status"
)

// DefaultQueryChangeDetector implements QueryChangeDetector
type DefaultQueryChangeDetector struct{}

// IsQueriesChanged reports whether the queries were modified after the last
// successful sync
func (*DefaultQueryChangeDetector) IsQueriesChanged(state *status.SyncState) bool {
	if state == nil {
		return true
	}
	return state.QueriesModificationDate.After(state.LastSyncDate)
}

// DefaultAutomaticSyncChecker implements AutomaticSyncChecker
type DefaultAutomaticSyncChecker struct{}

// IsIntervalSyncNeeded checks if sync is needed based on the delay between syncs.
// Returns: (syncNeeded, nextSyncTime)
// nextSyncTime is the time the local data becomes stale, or now when it already is
func (*DefaultAutomaticSyncChecker) IsIntervalSyncNeeded(
	state *status.SyncState, policy Policy, now time.Time,
) (bool, time.Time) {
	// If we don't have a last sync time, sync is needed
	if state == nil || state.LastSyncDate.IsZero() {
		return true, now
	}

	nextSyncTime := state.LastSyncDate.Add(policy.DelayBetweenSyncs)
	if now.Sub(state.LastSyncDate) > policy.DelayBetweenSyncs {
		return true, now
	}

	// Sync not needed yet
	return false, nextSyncTime
}
