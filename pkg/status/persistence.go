// Package status provides sync state tracking and persistence for mirrored
// indices.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=persistence.go Store

const (
	// StateFileName is the name of the per-index state file
	StateFileName = "mirror.json"
)

// Store defines the interface for sync state persistence
type Store interface {
	// Save saves the sync state of an index to persistent storage
	Save(ctx context.Context, indexName string, state *SyncState) error

	// Load loads the sync state of an index.
	// Returns an empty SyncState if nothing was saved yet (first run)
	Load(ctx context.Context, indexName string) (*SyncState, error)

	// LoadAll loads the sync state of every index with a saved state
	LoadAll(ctx context.Context) (map[string]*SyncState, error)
}

// fileStore implements Store using the local filesystem
type fileStore struct {
	basePath string
}

// NewFileStore creates a new file-based store. basePath is the directory
// holding one subdirectory per index, usually <dataDir>/<appID>.
func NewFileStore(basePath string) Store {
	return &fileStore{
		basePath: basePath,
	}
}

// IndexDir returns the directory holding the files of an index under basePath.
// The name is path-escaped; names made only of dots have every dot escaped so
// they never resolve to basePath or its parent.
func IndexDir(basePath, indexName string) string {
	escaped := url.PathEscape(indexName)
	if indexName != "" && strings.Trim(indexName, ".") == "" {
		escaped = strings.Repeat("%2E", len(indexName))
	}
	return filepath.Join(basePath, escaped)
}

// Save writes the state to a JSON file in the index directory
func (f *fileStore) Save(_ context.Context, indexName string, state *SyncState) error {
	indexDir := IndexDir(f.basePath, indexName)
	if err := os.MkdirAll(indexDir, 0750); err != nil {
		return fmt.Errorf("failed to create state directory for index '%s': %w", indexName, err)
	}

	filePath := filepath.Join(indexDir, StateFileName)

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state for index '%s': %w", indexName, err)
	}

	// Write to temporary file first for atomic operation
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary state file for index '%s': %w", indexName, err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename state file for index '%s': %w", indexName, err)
	}

	return nil
}

// Load reads the state file of an index.
// Returns an empty SyncState if the file doesn't exist
func (f *fileStore) Load(_ context.Context, indexName string) (*SyncState, error) {
	filePath := filepath.Join(IndexDir(f.basePath, indexName), StateFileName)

	// #nosec G304 -- filePath is built from basePath and an escaped index name
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &SyncState{}, nil
		}
		return nil, fmt.Errorf("failed to read state file for index '%s': %w", indexName, err)
	}

	var state SyncState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state for index '%s': %w", indexName, err)
	}

	return &state, nil
}

// LoadAll loads the state of every index directory holding a state file
func (f *fileStore) LoadAll(ctx context.Context) (map[string]*SyncState, error) {
	result := make(map[string]*SyncState)

	entries, err := os.ReadDir(f.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(f.basePath, entry.Name(), StateFileName)); err != nil {
			continue
		}

		indexName, err := url.PathUnescape(entry.Name())
		if err != nil {
			continue
		}
		state, err := f.Load(ctx, indexName)
		if err != nil {
			// Partial results are fine, a broken file resets that index only
			continue
		}

		result[indexName] = state
	}

	return result, nil
}
