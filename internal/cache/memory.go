package cache

import (
	"context"
	"sync"

	"github.com/risksharing/replication/internal/frame"
)

// MemoryStore keeps artifacts in memory. Useful for tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	tables  map[string]*frame.Table
	failure error
	fetches []string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]*frame.Table)}
}

// Name implements Store.
func (s *MemoryStore) Name() string { return "memory" }

// Fetch implements Store.
func (s *MemoryStore) Fetch(ctx context.Context, ds Dataset) Result {
	s.mu.Lock()
	s.fetches = append(s.fetches, ds.LogicalPath)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Failed(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failure != nil {
		return Failed(s.failure)
	}
	t, ok := s.tables[ds.LogicalPath]
	if !ok {
		return Miss()
	}
	return Hit(t)
}

// Put implements Writer.
func (s *MemoryStore) Put(ctx context.Context, ds Dataset, t *frame.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return s.failure
	}
	s.tables[ds.LogicalPath] = t
	return nil
}

// SetFailure makes every subsequent Fetch and Put fail with err. Nil clears it.
func (s *MemoryStore) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

// Fetches returns the logical paths fetched so far, in order.
func (s *MemoryStore) Fetches() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.fetches...)
}
