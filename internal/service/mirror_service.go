package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/stacklok/search-mirror/internal/config"
	"github.com/stacklok/search-mirror/pkg/mirror"
	"github.com/stacklok/search-mirror/pkg/query"
)

// mirrorService implements MirrorService on top of a mirror client. Only the
// indices of the last applied configuration are served.
type mirrorService struct {
	client *mirror.Client

	mu      sync.RWMutex
	indices map[string]*mirror.MirroredIndex
}

// Service is the MirrorService used by the daemon
type Service interface {
	MirrorService

	// Apply configures the indices of cfg. Indices dropped from the
	// configuration stop being served and mirrored.
	Apply(ctx context.Context, indices []config.IndexConfig) error
}

// New creates a service serving the configured indices of client
func New(ctx context.Context, client *mirror.Client, indices []config.IndexConfig) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("mirror client is required")
	}
	s := &mirrorService{
		client:  client,
		indices: make(map[string]*mirror.MirroredIndex),
	}
	if err := s.Apply(ctx, indices); err != nil {
		return nil, err
	}
	return s, nil
}

// Apply configures every index and switches the served set at once
func (s *mirrorService) Apply(ctx context.Context, indices []config.IndexConfig) error {
	next := make(map[string]*mirror.MirroredIndex, len(indices))
	var errs []error
	for _, cfg := range indices {
		idx, err := ConfigureIndex(s.client, cfg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		next[cfg.Name] = idx
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	s.mu.Lock()
	previous := s.indices
	s.indices = next
	s.mu.Unlock()

	for name, idx := range previous {
		if _, kept := next[name]; !kept {
			slog.InfoContext(ctx, "Index removed from configuration, mirroring disabled", "index", name)
			idx.SetMirrored(false)
		}
	}
	slog.InfoContext(ctx, "Index configuration applied", "indices", len(next))
	return nil
}

// ConfigureIndex applies cfg to the index of the same name. Queries are set
// before mirroring is enabled so that they take precedence over the
// persisted ones.
func ConfigureIndex(client *mirror.Client, cfg config.IndexConfig) (*mirror.MirroredIndex, error) {
	queries, err := cfg.Queries()
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", cfg.Name, err)
	}

	idx := client.Index(cfg.Name)
	idx.SetRequestStrategy(cfg.Strategy())
	if err := idx.SetOfflineFallbackTimeout(cfg.GetFallbackTimeout()); err != nil {
		return nil, fmt.Errorf("index %s: %w", cfg.Name, err)
	}
	if err := idx.SetDelayBetweenSyncs(cfg.GetDelayBetweenSyncs()); err != nil {
		return nil, fmt.Errorf("index %s: %w", cfg.Name, err)
	}
	if len(queries) > 0 {
		idx.SetDataSelectionQueries(queries...)
	}
	idx.SetMirrored(cfg.Mirrored)
	return idx, nil
}

func (s *mirrorService) lookup(name string) (*mirror.MirroredIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indices[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}
	return idx, nil
}

// CheckReadiness reports whether at least one index is served
func (s *mirrorService) CheckReadiness(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.indices) == 0 {
		return fmt.Errorf("no index configured")
	}
	return nil
}

func (s *mirrorService) ListIndexes(_ context.Context) ([]IndexStatus, error) {
	s.mu.RLock()
	names := make([]string, 0, len(s.indices))
	for name := range s.indices {
		names = append(names, name)
	}
	s.mu.RUnlock()
	slices.Sort(names)

	out := make([]IndexStatus, 0, len(names))
	for _, name := range names {
		idx, err := s.lookup(name)
		if err != nil {
			// Removed by a concurrent reload
			continue
		}
		out = append(out, NewIndexStatus(idx))
	}
	return out, nil
}

func (s *mirrorService) Search(ctx context.Context, index string, q *query.Query) (*mirror.Result, error) {
	idx, err := s.lookup(index)
	if err != nil {
		return nil, err
	}
	return idx.Search(ctx, q)
}

func (s *mirrorService) Sync(ctx context.Context, index string) error {
	idx, err := s.lookup(index)
	if err != nil {
		return err
	}
	return idx.Sync(ctx)
}

func (s *mirrorService) Status(_ context.Context, index string) (*IndexStatus, error) {
	idx, err := s.lookup(index)
	if err != nil {
		return nil, err
	}
	st := NewIndexStatus(idx)
	return &st, nil
}
