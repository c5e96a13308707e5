package storage

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/risksharing/replication/internal/errors"
)

// MockRepository is an in-memory ArtifactRepository for tests.
// It is thread-safe and respects context cancellation.
type MockRepository struct {
	mu      sync.RWMutex
	records []Artifact

	connectivityFailure bool
	persistenceFailure  bool
}

// NewMockRepository creates a new mock repository.
func NewMockRepository() *MockRepository {
	return &MockRepository{}
}

// checkContext verifies the context is not cancelled or timed out.
func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Record appends one record.
func (r *MockRepository) Record(ctx context.Context, a Artifact) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.persistenceFailure {
		return errors.NewDatabaseUnavailable("persistence failure (simulated)")
	}

	a.Columns = slices.Clone(a.Columns)
	r.records = append(r.records, a)
	return nil
}

// Latest returns the newest record for logicalPath.
func (r *MockRepository) Latest(ctx context.Context, logicalPath string) (*Artifact, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *Artifact
	for i := range r.records {
		rec := r.records[i]
		if rec.LogicalPath != logicalPath {
			continue
		}
		if latest == nil || !rec.RecordedAt.Before(latest.RecordedAt) {
			latest = &rec
		}
	}
	if latest == nil {
		return nil, errors.NewArtifactNotFound(logicalPath)
	}
	return latest, nil
}

// List returns all records, newest first.
func (r *MockRepository) List(ctx context.Context) ([]*Artifact, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Artifact, 0, len(r.records))
	for i := range r.records {
		rec := r.records[i]
		out = append(out, &rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	return out, nil
}

// SetConnectivityFailure configures the mock to simulate connectivity failures.
func (r *MockRepository) SetConnectivityFailure(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectivityFailure = fail
}

// SetPersistenceFailure configures the mock to simulate persistence failures.
func (r *MockRepository) SetPersistenceFailure(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.persistenceFailure = fail
}

// CheckConnectivity fails only when configured to.
func (r *MockRepository) CheckConnectivity(ctx context.Context) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.connectivityFailure {
		return errors.NewDatabaseUnavailable("connectivity failure (simulated)")
	}
	return nil
}
