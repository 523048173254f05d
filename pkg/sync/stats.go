package sync

import (
	"fmt"
	"time"
)

// Stats describes one completed sync
type Stats struct {
	// ObjectCount is the number of objects fetched
	ObjectCount int
	// FileCount is the number of object files handed to the build
	FileCount int
	// FetchDuration covers settings and object retrieval
	FetchDuration time.Duration
	// BuildDuration covers the local index build
	BuildDuration time.Duration
	// TotalDuration covers the whole pipeline
	TotalDuration time.Duration
}

func (s *Stats) String() string {
	if s == nil {
		return "<nil>"
	}
	return fmt.Sprintf("objects=%d files=%d fetch=%s build=%s total=%s",
		s.ObjectCount, s.FileCount, s.FetchDuration, s.BuildDuration, s.TotalDuration)
}
