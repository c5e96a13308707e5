// Package shocks loads the household shock dataset, preferring the cached
// artifact and constructing it from the survey library when none exists.
package shocks

import (
	"context"

	"github.com/risksharing/replication/internal/cache"
	"github.com/risksharing/replication/internal/frame"
	"github.com/risksharing/replication/internal/observability"
)

// Schema of the shock dataset.
const (
	LogicalPath    = "var/shocks.parquet"
	LevelHousehold = "i"
	LevelPeriod    = "t"
	ColumnShock    = "Shock"
	ColumnYear     = "Year"
)

// Dataset describes the shock dataset. Cached and constructed copies are
// both checked against it.
var Dataset = cache.Dataset{
	Name:        "shocks",
	LogicalPath: LogicalPath,
	Levels:      []string{LevelHousehold, LevelPeriod},
	Required:    []string{ColumnShock, ColumnYear},
}

// Loader serves the shock dataset of one country.
type Loader struct {
	loader *cache.Loader
}

// NewLoader wires a cache store to the construction routine for src.
func NewLoader(store cache.Store, src Source, tax *Taxonomy, opts ...cache.LoaderOption) *Loader {
	build := func(ctx context.Context) (*frame.Table, any, error) {
		return Construct(ctx, src, tax)
	}
	return &Loader{loader: cache.NewLoader(store, build, opts...)}
}

// NewLoaderWithBuild is NewLoader with an arbitrary construction routine.
func NewLoaderWithBuild(store cache.Store, build cache.BuildFunc, opts ...cache.LoaderOption) *Loader {
	return &Loader{loader: cache.NewLoader(store, build, opts...)}
}

// Load returns the cached dataset when present and the constructed one when
// the cache has no artifact. Any other cache failure is returned unchanged.
func (l *Loader) Load(ctx context.Context) (*frame.Table, error) {
	return l.loader.Load(ctx, Dataset)
}

// LoadWithProvenance is Load that also reports where the table came from.
func (l *Loader) LoadWithProvenance(ctx context.Context) (*frame.Table, observability.Provenance, error) {
	return l.loader.LoadWithProvenance(ctx, Dataset)
}

// Build constructs the dataset without consulting the cache.
func (l *Loader) Build(ctx context.Context) (*frame.Table, error) {
	return l.loader.Build(ctx, Dataset)
}

// Write persists t to the cache store.
func (l *Loader) Write(ctx context.Context, t *frame.Table) error {
	return l.loader.Write(ctx, Dataset, t)
}
