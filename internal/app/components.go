package app

import (
	"github.com/stacklok/search-mirror/internal/service"
	"github.com/stacklok/search-mirror/pkg/mirror"
	"github.com/stacklok/search-mirror/pkg/sync/coordinator"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// SyncCoordinator runs syncs and the auto-sync checks
	SyncCoordinator coordinator.Coordinator

	// MirrorClient hands out the mirrored indices
	MirrorClient *mirror.Client

	// MirrorService provides the daemon business logic
	MirrorService service.Service
}
