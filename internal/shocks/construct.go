package shocks

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/risksharing/replication/internal/frame"
)

// Source provides the raw shock module of one country.
type Source interface {
	Shocks(ctx context.Context) (*frame.Table, error)
}

// Summary describes a constructed shock dataset.
type Summary struct {
	Rows    int            `json:"rows"`
	Dropped int            `json:"dropped"`
	Counts  map[string]int `json:"counts"`
	Classes map[string]int `json:"classes"`
	Pooled  []string       `json:"pooled,omitempty"`
}

// Construct builds the shock dataset from the raw survey module.
//
// Rows without a shock label are dropped and labels are canonicalised
// through the taxonomy. Shocks the taxonomy lists as infrequent are pooled.
// The result is indexed by (i, t) and carries Shock and Year followed by any
// other raw columns.
func Construct(ctx context.Context, src Source, tax *Taxonomy) (*frame.Table, *Summary, error) {
	if tax == nil {
		tax = DefaultTaxonomy()
	}
	raw, err := src.Shocks(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !raw.Has(ColumnShock) {
		return nil, nil, fmt.Errorf("shocks: raw module has no %s column", ColumnShock)
	}
	tpos := slices.Index(raw.Index().Names(), LevelPeriod)
	if tpos < 0 || !slices.Contains(raw.Index().Names(), LevelHousehold) {
		return nil, nil, fmt.Errorf("shocks: raw module must be indexed by %s and %s, got %v",
			LevelHousehold, LevelPeriod, raw.Index().Names())
	}

	labels, _ := raw.Column(ColumnShock)
	kept := raw.Filter(func(row int) bool {
		s, ok := labels[row].(string)
		return ok && strings.TrimSpace(s) != ""
	})
	summary := &Summary{
		Rows:    kept.Len(),
		Dropped: raw.Len() - kept.Len(),
		Counts:  make(map[string]int),
		Classes: make(map[string]int),
	}

	keptLabels, _ := kept.Column(ColumnShock)
	canonical := make([]any, len(keptLabels))
	for i, v := range keptLabels {
		c := tax.Canonical(v.(string))
		canonical[i] = c
		summary.Counts[c]++
	}

	for name := range summary.Counts {
		if name != tax.Other && tax.IsInfrequent(name) {
			summary.Pooled = append(summary.Pooled, name)
		}
	}
	slices.Sort(summary.Pooled)
	for i, v := range canonical {
		if tax.IsInfrequent(v.(string)) {
			canonical[i] = tax.Other
		}
	}
	for _, name := range summary.Pooled {
		summary.Counts[tax.Other] += summary.Counts[name]
		delete(summary.Counts, name)
	}
	for name, n := range summary.Counts {
		summary.Classes[tax.Class(name)] += n
	}

	year, ok := kept.Column(ColumnYear)
	if !ok {
		year = make([]any, kept.Len())
		for i := range year {
			year[i] = yearOf(kept.Index().Key(i)[tpos])
		}
	}

	keys := make([][]any, kept.Len())
	hpos := slices.Index(kept.Index().Names(), LevelHousehold)
	for i := range keys {
		k := kept.Index().Key(i)
		keys[i] = []any{k[hpos], k[tpos]}
	}
	idx, err := frame.NewIndex([]string{LevelHousehold, LevelPeriod}, keys)
	if err != nil {
		return nil, nil, err
	}

	cols := []frame.Column{
		{Name: ColumnShock, Values: canonical},
		{Name: ColumnYear, Values: year},
	}
	for _, name := range kept.Columns() {
		if name == ColumnShock || name == ColumnYear {
			continue
		}
		v, _ := kept.Column(name)
		cols = append(cols, frame.Column{Name: name, Values: v})
	}
	out, err := frame.New(idx, cols...)
	if err != nil {
		return nil, nil, err
	}
	return out, summary, nil
}

// yearOf extracts the first calendar year of a period label such as
// "2005-06" or 2009. It returns nil when the period carries no year.
func yearOf(period any) any {
	switch p := period.(type) {
	case int64:
		return p
	case int:
		return int64(p)
	case string:
		digits := strings.TrimSpace(p)
		if len(digits) >= 4 {
			if y, err := strconv.ParseInt(digits[:4], 10, 64); err == nil {
				return y
			}
		}
	}
	return nil
}
