// Package sync decides when a mirrored index needs refreshing and runs the
// pull-then-build pipeline that refreshes it.
//
// # Core Interfaces
//
//   - Manager: staleness decision and sync pipeline
//   - QueryChangeDetector: detects data selection query changes
//   - AutomaticSyncChecker: time-based staleness
//   - RemoteSource and LocalBuilder: the two ends of the pipeline
//
// # Sync Decision Making
//
// A sync is needed when the last successful sync is older than the delay
// between syncs, or when the data selection queries were modified after it.
// An index that is already syncing never needs another sync.
//
// # Pipeline
//
// PerformSync runs sequentially in a scratch directory:
//
//  1. fetch the index settings into settings.json
//  2. browse every data selection query in order, writing each page of hits
//     to 0.json, 1.json, ... until the cursor ends or MaxObjects is reached
//  3. rebuild the local index from those files, clearing previous data
//
// The scratch directory is removed whatever the outcome. A page without a
// hits array ends its query only; any other failure fails the sync with an
// Error naming the Stage it happened in.
//
// Scheduling, deduplication and listener notification belong to the caller;
// see the coordinator subpackage for the single worker queue.
package sync
