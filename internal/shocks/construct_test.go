package shocks

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/risksharing/replication/internal/frame"
)

type rawSource struct {
	table *frame.Table
	err   error
}

func (s rawSource) Shocks(context.Context) (*frame.Table, error) { return s.table, s.err }

// rawShocks mimics the survey module: one row per reported shock, with a
// shock-type level and some unlabelled rows.
func rawShocks() *frame.Table {
	return frame.MustNew(
		frame.MustIndex([]string{"i", "t", "j"},
			[]any{"hh1", "2005-06", int64(1)},
			[]any{"hh1", "2005-06", int64(2)},
			[]any{"hh2", "2009-10", int64(1)},
			[]any{"hh3", "2009-10", int64(1)},
		),
		frame.Column{Name: "Shock", Values: []any{"Drought/Irregular rains", nil, " fire ", "Death of income earner(s)"}},
		frame.Column{Name: "Cope", Values: []any{"Sold livestock", nil, "Savings", "Help"}},
	)
}

// TestConstruct_CanonicalisesAndDerivesYear verifies labels, years and index.
// Green-Flag: raw labels map to canonical names and Year comes from t.
func TestConstruct_CanonicalisesAndDerivesYear(t *testing.T) {
	got, summary, err := Construct(context.Background(), rawSource{table: rawShocks()}, DefaultTaxonomy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := frame.MustNew(
		frame.MustIndex([]string{"i", "t"},
			[]any{"hh1", "2005-06"},
			[]any{"hh2", "2009-10"},
			[]any{"hh3", "2009-10"},
		),
		frame.Column{Name: "Shock", Values: []any{"Drought", "Fire", "Death"}},
		frame.Column{Name: "Year", Values: []any{int64(2005), int64(2009), int64(2009)}},
		frame.Column{Name: "Cope", Values: []any{"Sold livestock", "Savings", "Help"}},
	)
	if !got.Equal(want) {
		shock, _ := got.Column("Shock")
		year, _ := got.Column("Year")
		t.Errorf("unexpected table: shock=%v year=%v", shock, year)
	}

	wantSummary := &Summary{
		Rows:    3,
		Dropped: 1,
		Counts:  map[string]int{"Drought": 1, "Fire": 1, "Death": 1},
		Classes: map[string]int{ClassCovariate: 1, ClassIdiosyncratic: 2},
	}
	if diff := cmp.Diff(wantSummary, summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

// TestConstruct_PoolsListedShocks verifies only listed labels fold into Other.
// Green-Flag: rare classified shocks such as a single Drought keep their label.
func TestConstruct_PoolsListedShocks(t *testing.T) {
	tax, err := ParseTaxonomy([]byte(`
infrequent: [Fire outbreak, Locusts]
covariate: [Drought, Floods]
idiosyncratic: [Death]
aliases:
  Drought/Irregular rains: Drought
  Fire: Fire outbreak
`))
	if err != nil {
		t.Fatalf("failed to parse taxonomy: %v", err)
	}
	raw := frame.MustNew(
		frame.MustIndex([]string{"i", "t"},
			[]any{"hh1", "2005-06"},
			[]any{"hh2", "2005-06"},
			[]any{"hh3", "2009-10"},
			[]any{"hh4", "2009-10"},
		),
		frame.Column{Name: "Shock", Values: []any{"Drought/Irregular rains", "Drought", "Floods", "fire"}},
	)

	got, summary, err := Construct(context.Background(), rawSource{table: raw}, tax)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	shock, _ := got.Column("Shock")
	if diff := cmp.Diff([]any{"Drought", "Drought", "Floods", "Other"}, shock); diff != "" {
		t.Errorf("shock mismatch (-want +got):\n%s", diff)
	}
	want := &Summary{
		Rows:    4,
		Counts:  map[string]int{"Drought": 2, "Floods": 1, "Other": 1},
		Classes: map[string]int{ClassCovariate: 3, ClassUnclassified: 1},
		Pooled:  []string{"Fire outbreak"},
	}
	if diff := cmp.Diff(want, summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestConstruct_KeepsRawYear(t *testing.T) {
	raw := frame.MustNew(
		frame.MustIndex([]string{"i", "t"}, []any{"hh1", "2005-06"}),
		frame.Column{Name: "Shock", Values: []any{"Floods"}},
		frame.Column{Name: "Year", Values: []any{int64(2006)}},
	)
	got, _, err := Construct(context.Background(), rawSource{table: raw}, &Taxonomy{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	year, _ := got.Column("Year")
	if diff := cmp.Diff([]any{int64(2006)}, year); diff != "" {
		t.Errorf("year mismatch (-want +got):\n%s", diff)
	}
}

// TestConstruct_RejectsMalformedRaw verifies structural problems are reported.
// Red-Flag: a raw module without labels or levels cannot be constructed.
func TestConstruct_RejectsMalformedRaw(t *testing.T) {
	noShock := frame.MustNew(frame.MustIndex([]string{"i", "t"}, []any{"hh1", "2005-06"}),
		frame.Column{Name: "Cope", Values: []any{"Savings"}},
	)
	noPeriod := frame.MustNew(frame.MustIndex([]string{"i"}, []any{"hh1"}),
		frame.Column{Name: "Shock", Values: []any{"Floods"}},
	)
	for name, raw := range map[string]*frame.Table{"no shock": noShock, "no period": noPeriod} {
		t.Run(name, func(t *testing.T) {
			if _, _, err := Construct(context.Background(), rawSource{table: raw}, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestYearOf(t *testing.T) {
	cases := map[any]any{
		"2005-06":   int64(2005),
		int64(2009): int64(2009),
		3:           int64(3),
		"wave 1":    nil,
		2.5:         nil,
	}
	for in, want := range cases {
		if got := yearOf(in); got != want {
			t.Errorf("yearOf(%v) = %v, want %v", in, got, want)
		}
	}
}
