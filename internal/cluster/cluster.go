// Package cluster prepares the covariate table used for cluster-robust
// standard errors. The cluster label and any other required column are taken
// from an ordered list of candidate tables: the feature table first, then
// the locality table.
package cluster

import (
	stderrors "errors"
	"fmt"

	cerrors "github.com/risksharing/replication/internal/errors"
	"github.com/risksharing/replication/internal/frame"
)

// ClusterColumn is the column that labels clusters (a locality name).
const ClusterColumn = "v"

// Source is a named candidate table.
type Source struct {
	Name  string
	Table *frame.Table
}

// FirstAvailable returns column from the first source that has it, aligned to
// target. It reports the name of the source used. Nil tables are skipped.
func FirstAvailable(column string, target *frame.Index, sources ...Source) (*frame.Series, string, error) {
	for _, src := range sources {
		if src.Table == nil {
			continue
		}
		s, ok := src.Table.Series(column)
		if !ok {
			continue
		}
		aligned, err := s.AlignTo(target)
		if err != nil {
			var le *frame.LevelError
			if stderrors.As(err, &le) {
				return nil, "", cerrors.NewIndexMismatch(le.Want, le.Got)
			}
			return nil, "", err
		}
		return aligned, src.Name, nil
	}
	return nil, "", cerrors.ErrNotFound
}

type options struct {
	required      []string
	missingReason error
}

// Option configures PrepareClusterFrame.
type Option func(*options)

// WithRequired replaces the set of columns that must be resolved.
func WithRequired(columns ...string) Option {
	return func(o *options) { o.required = columns }
}

// WithMissingReason attaches the caller's own failure reason, typically the
// error hit while loading the locality table, to a missing-column failure.
func WithMissingReason(err error) Option {
	return func(o *options) { o.missingReason = err }
}

// PrepareClusterFrame builds the cluster covariate table. Every column of
// primary is kept as is; each required column primary lacks is taken from
// secondary, left-joined on primary's index. secondary may be nil.
func PrepareClusterFrame(primary, secondary *frame.Table, opts ...Option) (*frame.Table, error) {
	if primary == nil {
		return nil, fmt.Errorf("cluster: primary table is required")
	}
	o := options{required: []string{ClusterColumn}}
	for _, opt := range opts {
		opt(&o)
	}

	sources := []Source{{Name: "primary", Table: primary}}
	if secondary != nil {
		sources = append(sources, Source{Name: "secondary", Table: secondary})
	}

	out := primary
	for _, col := range o.required {
		if primary.Has(col) {
			continue
		}
		s, _, err := FirstAvailable(col, primary.Index(), sources...)
		if stderrors.Is(err, cerrors.ErrNotFound) {
			return nil, cerrors.NewMissingClusterColumn(col, sourceNames(sources), o.missingReason)
		}
		if err != nil {
			return nil, err
		}
		if out, err = out.WithColumn(s); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func sourceNames(sources []Source) []string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name
	}
	return names
}
