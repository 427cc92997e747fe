package store

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
)

// DefaultMemoryRuns is the number of runs a MemoryRunStore keeps when size is unset.
const DefaultMemoryRuns = 500

// Compile-time check: *MemoryRunStore implements mirror.RunStore.
var _ mirror.RunStore = (*MemoryRunStore)(nil)

// MemoryRunStore keeps the most recently saved runs in process memory.
// The oldest run is evicted once size runs are held.
type MemoryRunStore struct {
	cache *lru.Cache[string, mirror.Run]
}

// NewMemoryRunStore creates a MemoryRunStore holding up to size runs.
func NewMemoryRunStore(size int) (*MemoryRunStore, error) {
	if size <= 0 {
		size = DefaultMemoryRuns
	}
	cache, err := lru.New[string, mirror.Run](size)
	if err != nil {
		return nil, fmt.Errorf("run cache: %w", err)
	}
	return &MemoryRunStore{cache: cache}, nil
}

// SaveRun stores run, replacing any run with the same ID.
func (s *MemoryRunStore) SaveRun(_ context.Context, run mirror.Run) error {
	s.cache.Add(run.ID, run)
	return nil
}

// GetRun returns the run with the given ID.
func (s *MemoryRunStore) GetRun(_ context.Context, id string) (*mirror.Run, error) {
	run, ok := s.cache.Peek(id)
	if !ok {
		return nil, mirror.RunNotFoundError{ID: id}
	}
	return &run, nil
}

// ListRuns returns up to limit runs, most recently saved first. limit is
// clamped with mirror.ClampRunLimit.
func (s *MemoryRunStore) ListRuns(_ context.Context, limit int) ([]mirror.Run, error) {
	limit = mirror.ClampRunLimit(limit)
	keys := s.cache.Keys()
	runs := make([]mirror.Run, 0, min(limit, len(keys)))
	for i := len(keys) - 1; i >= 0 && len(runs) < limit; i-- {
		if run, ok := s.cache.Peek(keys[i]); ok {
			runs = append(runs, run)
		}
	}
	return runs, nil
}
