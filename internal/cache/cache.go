// Package cache implements the cache-or-build pattern for derived datasets:
// read a cheap cached artifact, and only when the artifact is absent fall
// through to the expensive build. Any other failure stops the load.
package cache

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"time"

	cerrors "github.com/risksharing/replication/internal/errors"
	"github.com/risksharing/replication/internal/frame"
	"github.com/risksharing/replication/internal/observability"
	"github.com/risksharing/replication/internal/storage"
)

// Status tags the outcome of a cache fetch.
type Status int

const (
	StatusHit Status = iota
	StatusMiss
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusMiss:
		return "miss"
	default:
		return "error"
	}
}

// Result is the tagged outcome of Store.Fetch. Table is set only for a hit,
// Err only for an error.
type Result struct {
	Status Status
	Table  *frame.Table
	Err    error
}

// Hit wraps a fetched table.
func Hit(t *frame.Table) Result { return Result{Status: StatusHit, Table: t} }

// Miss reports that no artifact exists.
func Miss() Result { return Result{Status: StatusMiss} }

// Failed reports any failure other than absence.
func Failed(err error) Result { return Result{Status: StatusError, Err: err} }

// Dataset describes a cached dataset and the schema every copy must satisfy.
type Dataset struct {
	Name        string
	LogicalPath string
	Levels      []string
	Required    []string
}

// Check reports the index levels and columns t is missing.
func (d Dataset) Check(t *frame.Table) error {
	var missing []string
	names := t.Index().Names()
	for _, l := range d.Levels {
		if !slices.Contains(names, l) {
			missing = append(missing, "index:"+l)
		}
	}
	for _, c := range d.Required {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return cerrors.NewSchemaMismatch(d.Name, missing)
	}
	return nil
}

// Store fetches cached artifacts by logical path.
type Store interface {
	// Name identifies the driver in logs and the manifest.
	Name() string

	// Fetch never returns StatusMiss for anything but a missing artifact.
	Fetch(ctx context.Context, ds Dataset) Result
}

// Writer is implemented by stores that accept write-back.
type Writer interface {
	Put(ctx context.Context, ds Dataset, t *frame.Table) error
}

// StoreFunc adapts a get_dataframe style function to a Store. An error for
// which errors.Is(err, errors.ErrNotFound) holds is a miss.
type StoreFunc func(ctx context.Context, logicalPath string) (*frame.Table, error)

// Name implements Store.
func (f StoreFunc) Name() string { return "func" }

// Fetch implements Store.
func (f StoreFunc) Fetch(ctx context.Context, ds Dataset) Result {
	t, err := f(ctx, ds.LogicalPath)
	switch {
	case err == nil:
		return Hit(t)
	case stderrors.Is(err, cerrors.ErrNotFound):
		return Miss()
	default:
		return Failed(err)
	}
}

// BuildFunc computes a dataset from scratch. The second value is auxiliary
// output of the build (a summary, diagnostics) and is not served.
type BuildFunc func(ctx context.Context) (*frame.Table, any, error)

// Loader serves datasets from a store, building them on a miss.
type Loader struct {
	store     Store
	build     BuildFunc
	writeBack bool
	events    observability.EventLogger
	metrics   *observability.Metrics
	manifest  storage.ArtifactRepository
	now       func() time.Time
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithWriteBack persists freshly built datasets when the store is a Writer.
func WithWriteBack(enabled bool) LoaderOption {
	return func(l *Loader) { l.writeBack = enabled }
}

// WithEventLogger sets the load event logger.
func WithEventLogger(e observability.EventLogger) LoaderOption {
	return func(l *Loader) { l.events = e }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) LoaderOption {
	return func(l *Loader) { l.metrics = m }
}

// WithManifest records every served artifact in repo.
func WithManifest(repo storage.ArtifactRepository) LoaderOption {
	return func(l *Loader) { l.manifest = repo }
}

// NewLoader creates a Loader.
func NewLoader(store Store, build BuildFunc, opts ...LoaderOption) *Loader {
	l := &Loader{
		store:  store,
		build:  build,
		events: observability.NoopEventLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the cached dataset unchanged on a hit, the built table on a
// miss, and the store's error otherwise. Only the built table is checked
// against the descriptor. The build's auxiliary value is dropped.
func (l *Loader) Load(ctx context.Context, ds Dataset) (*frame.Table, error) {
	t, _, err := l.LoadWithProvenance(ctx, ds)
	return t, err
}

// LoadWithProvenance is Load that also reports where the table came from.
func (l *Loader) LoadWithProvenance(ctx context.Context, ds Dataset) (*frame.Table, observability.Provenance, error) {
	start := l.now()
	entry := observability.LoadLogEntry{
		Dataset:     ds.Name,
		LogicalPath: ds.LogicalPath,
		Store:       l.store.Name(),
	}

	res := l.store.Fetch(ctx, ds)
	l.metrics.CacheLookup(ds.Name, res.Status.String())
	entry.Outcome = res.Status.String()

	switch res.Status {
	case StatusHit:
		// A hit is served as stored; a schema mismatch is only reported.
		entry.Provenance = observability.ProvenanceCache
		if res.Table != nil {
			entry.Rows = res.Table.Len()
			if err := ds.Check(res.Table); err != nil {
				entry.Error = err.Error()
			}
			l.record(ctx, ds, res.Table, storage.ArtifactHit)
		}
		l.emit(ctx, entry, start)
		return res.Table, observability.ProvenanceCache, nil

	case StatusMiss:
		t, err := l.Build(ctx, ds)
		if err != nil {
			return nil, "", l.fail(ctx, entry, start, err)
		}
		entry.Provenance = observability.ProvenanceBuilt
		entry.Rows = t.Len()
		if err := l.persist(ctx, ds, t); err != nil {
			entry.Outcome = "write_back_failed"
			entry.Error = err.Error()
		}
		l.emit(ctx, entry, start)
		return t, observability.ProvenanceBuilt, nil

	default:
		err := res.Err
		if err == nil {
			err = fmt.Errorf("cache: store %s failed without an error", l.store.Name())
		}
		return nil, "", l.fail(ctx, entry, start, err)
	}
}

// Build runs the fallback build and checks its schema, bypassing the store.
func (l *Loader) Build(ctx context.Context, ds Dataset) (*frame.Table, error) {
	if l.build == nil {
		return nil, fmt.Errorf("cache: no build configured for %s", ds.Name)
	}
	start := l.now()
	t, _, err := l.build(ctx)
	l.metrics.ObserveBuild(ds.Name, l.now().Sub(start))
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("cache: build for %s returned no table", ds.Name)
	}
	if err := ds.Check(t); err != nil {
		return nil, err
	}
	l.record(ctx, ds, t, storage.ArtifactBuilt)
	return t, nil
}

// Write persists t through the store regardless of the write-back setting.
func (l *Loader) Write(ctx context.Context, ds Dataset, t *frame.Table) error {
	w, ok := l.store.(Writer)
	if !ok {
		return fmt.Errorf("cache: store %s is read-only", l.store.Name())
	}
	if err := w.Put(ctx, ds, t); err != nil {
		return err
	}
	l.record(ctx, ds, t, storage.ArtifactWritten)
	return nil
}

func (l *Loader) persist(ctx context.Context, ds Dataset, t *frame.Table) error {
	if !l.writeBack {
		return nil
	}
	if err := l.Write(ctx, ds, t); err != nil {
		l.metrics.WriteBackFailed(ds.Name)
		return err
	}
	return nil
}

func (l *Loader) record(ctx context.Context, ds Dataset, t *frame.Table, kind storage.ArtifactKind) {
	if l.manifest == nil {
		return
	}
	// Record errors are ignored; the manifest never fails a load.
	_ = l.manifest.Record(ctx, storage.Artifact{
		Dataset:     ds.Name,
		LogicalPath: ds.LogicalPath,
		Store:       l.store.Name(),
		Kind:        kind,
		Rows:        t.Len(),
		Columns:     t.Columns(),
		RecordedAt:  l.now().UTC(),
	})
}

func (l *Loader) fail(ctx context.Context, entry observability.LoadLogEntry, start time.Time, err error) error {
	entry.Outcome = StatusError.String()
	entry.Error = err.Error()
	l.emit(ctx, entry, start)
	return err
}

func (l *Loader) emit(ctx context.Context, entry observability.LoadLogEntry, start time.Time) {
	entry.Duration = l.now().Sub(start)
	_ = l.events.LogLoad(ctx, entry)
}
