// Package panel generates small synthetic household panels for exercising
// the cluster normaliser and downstream tooling end to end.
package panel

import (
	"fmt"
	"math/rand/v2"

	"github.com/risksharing/replication/internal/cluster"
	"github.com/risksharing/replication/internal/frame"
)

// Column names of the generated tables.
const (
	ColumnRural      = "Rural"
	ColumnShockShare = "Shock Share"
	ColumnOutcome    = "Outcome"
)

// Options controls the generated panel.
type Options struct {
	Entities   int
	Periods    int
	Localities int
	Beta       float64
	Seed       int64
}

// DefaultOptions returns the panel dimensions used for quick comparisons.
func DefaultOptions() Options {
	return Options{Entities: 40, Periods: 6, Localities: 5, Beta: 0.15, Seed: 42}
}

// Simulate draws a balanced (i, t) panel. The features table holds Rural,
// Shock Share and Outcome, where
//
//	Outcome = Beta*Shock Share + entity effect + period effect + noise.
//
// The locality table maps every row to its locality label in column v. The
// same options always produce the same tables.
func Simulate(opts Options) (features, locality *frame.Table, err error) {
	if opts.Entities <= 0 || opts.Periods <= 0 {
		return nil, nil, fmt.Errorf("panel: entities and periods must be positive, got %d x %d", opts.Entities, opts.Periods)
	}
	if opts.Localities <= 0 {
		opts.Localities = 1
	}

	rng := rand.New(rand.NewPCG(uint64(opts.Seed), 0x9e3779b97f4a7c15))

	entityFE := make([]float64, opts.Entities)
	rural := make([]int64, opts.Entities)
	for i := range entityFE {
		entityFE[i] = 0.5 * rng.NormFloat64()
		if rng.IntN(2) == 1 {
			rural[i] = 1
		}
	}
	timeFE := make([]float64, opts.Periods)
	for t := range timeFE {
		timeFE[t] = 0.2 * rng.NormFloat64()
	}

	n := opts.Entities * opts.Periods
	keys := make([][]any, 0, n)
	ruralCol := make([]any, 0, n)
	shockCol := make([]any, 0, n)
	outcomeCol := make([]any, 0, n)
	labels := make([]any, 0, n)
	for i := 0; i < opts.Entities; i++ {
		for t := 0; t < opts.Periods; t++ {
			shock := rng.NormFloat64()
			noise := 0.3 * rng.NormFloat64()
			keys = append(keys, []any{int64(i), int64(t)})
			ruralCol = append(ruralCol, rural[i])
			shockCol = append(shockCol, shock)
			outcomeCol = append(outcomeCol, opts.Beta*shock+entityFE[i]+timeFE[t]+noise)
			labels = append(labels, fmt.Sprintf("L%02d", i%opts.Localities))
		}
	}

	idx, err := frame.NewIndex([]string{"i", "t"}, keys)
	if err != nil {
		return nil, nil, err
	}
	features, err = frame.New(idx,
		frame.Column{Name: ColumnRural, Values: ruralCol},
		frame.Column{Name: ColumnShockShare, Values: shockCol},
		frame.Column{Name: ColumnOutcome, Values: outcomeCol},
	)
	if err != nil {
		return nil, nil, err
	}
	locality, err = frame.New(idx, frame.Column{Name: cluster.ClusterColumn, Values: labels})
	if err != nil {
		return nil, nil, err
	}
	return features, locality, nil
}
