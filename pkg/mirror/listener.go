package mirror

import (
	"slices"

	syncer "github.com/stacklok/search-mirror/pkg/sync"
)

// SyncListener observes the syncs of a mirrored index. Every sync that starts
// delivers exactly one SyncDidStart followed by exactly one SyncDidFinish, on
// the completion executor of the client. Listeners are compared with ==, so
// register pointers.
type SyncListener interface {
	SyncDidStart(index *MirroredIndex)

	// SyncDidFinish carries the failure of the sync, or nil and the sync
	// statistics.
	SyncDidFinish(index *MirroredIndex, err error, stats *syncer.Stats)
}

// BuildListener observes manual builds of the mirror from local files.
type BuildListener interface {
	BuildDidStart(index *MirroredIndex)
	BuildDidFinish(index *MirroredIndex, err error)
}

// SyncListenerFuncs adapts functions to SyncListener. Nil fields are skipped.
type SyncListenerFuncs struct {
	OnStart  func(index *MirroredIndex)
	OnFinish func(index *MirroredIndex, err error, stats *syncer.Stats)
}

// SyncDidStart implements SyncListener.
func (f *SyncListenerFuncs) SyncDidStart(index *MirroredIndex) {
	if f.OnStart != nil {
		f.OnStart(index)
	}
}

// SyncDidFinish implements SyncListener.
func (f *SyncListenerFuncs) SyncDidFinish(index *MirroredIndex, err error, stats *syncer.Stats) {
	if f.OnFinish != nil {
		f.OnFinish(index, err, stats)
	}
}

// BuildListenerFuncs adapts functions to BuildListener. Nil fields are skipped.
type BuildListenerFuncs struct {
	OnStart  func(index *MirroredIndex)
	OnFinish func(index *MirroredIndex, err error)
}

// BuildDidStart implements BuildListener.
func (f *BuildListenerFuncs) BuildDidStart(index *MirroredIndex) {
	if f.OnStart != nil {
		f.OnStart(index)
	}
}

// BuildDidFinish implements BuildListener.
func (f *BuildListenerFuncs) BuildDidFinish(index *MirroredIndex, err error) {
	if f.OnFinish != nil {
		f.OnFinish(index, err)
	}
}

// AddSyncListener registers l for sync notifications.
func (m *MirroredIndex) AddSyncListener(l SyncListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncListeners = append(m.syncListeners, l)
}

// RemoveSyncListener unregisters l.
func (m *MirroredIndex) RemoveSyncListener(l SyncListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncListeners = slices.DeleteFunc(m.syncListeners, func(other SyncListener) bool {
		return other == l
	})
}

// AddBuildListener registers l for build notifications.
func (m *MirroredIndex) AddBuildListener(l BuildListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buildListeners = append(m.buildListeners, l)
}

// RemoveBuildListener unregisters l.
func (m *MirroredIndex) RemoveBuildListener(l BuildListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buildListeners = slices.DeleteFunc(m.buildListeners, func(other BuildListener) bool {
		return other == l
	})
}

// notifySync delivers fn to a snapshot of the sync listeners on the executor.
func (m *MirroredIndex) notifySync(fn func(SyncListener)) {
	m.mu.Lock()
	listeners := slices.Clone(m.syncListeners)
	m.mu.Unlock()

	m.client.executor.Execute(func() {
		for _, l := range listeners {
			fn(l)
		}
	})
}

func (m *MirroredIndex) notifyBuild(fn func(BuildListener)) {
	m.mu.Lock()
	listeners := slices.Clone(m.buildListeners)
	m.mu.Unlock()

	m.client.executor.Execute(func() {
		for _, l := range listeners {
			fn(l)
		}
	})
}
