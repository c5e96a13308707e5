package shocks

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultTaxonomy(t *testing.T) {
	tax := DefaultTaxonomy()
	if len(tax.Infrequent) != 0 || tax.Other != "Other" {
		t.Errorf("unexpected defaults: infrequent=%v other=%q", tax.Infrequent, tax.Other)
	}
	for raw, want := range map[string]string{
		"Drought/Irregular rains":   "Drought",
		"  floods/LANDSLIDES ":      "Floods",
		"Death of income earner(s)": "Death",
		"Drought":                   "Drought",
		" Something new ":           "Something new",
	} {
		if got := tax.Canonical(raw); got != want {
			t.Errorf("Canonical(%q) = %q, want %q", raw, got, want)
		}
	}
	if tax.Class("Drought") != ClassCovariate || tax.Class("Illness") != ClassIdiosyncratic || tax.Class("Other") != ClassUnclassified {
		t.Error("unexpected classification")
	}
}

// TestParseTaxonomy_RejectsUnknownFields verifies typos fail loudly.
// Red-Flag: a misspelled section must not be ignored.
func TestParseTaxonomy_RejectsUnknownFields(t *testing.T) {
	if _, err := ParseTaxonomy([]byte("infrequnt: 5\n")); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestParseTaxonomy_RejectsOverlappingClasses(t *testing.T) {
	doc := "covariate: [Drought]\nidiosyncratic: [Drought]\n"
	if _, err := ParseTaxonomy([]byte(doc)); err == nil {
		t.Error("expected error for overlapping classes")
	}
}

// TestParseTaxonomy_RejectsPoolingClassifiedShocks verifies classified shocks keep their label.
// Red-Flag: listing Drought, directly or through an alias, as infrequent fails.
func TestParseTaxonomy_RejectsPoolingClassifiedShocks(t *testing.T) {
	for _, doc := range []string{
		"covariate: [Drought]\ninfrequent: [Drought]\n",
		"covariate: [Drought]\naliases:\n  Irregular rains: Drought\ninfrequent: [Irregular rains]\n",
		"idiosyncratic: [Death]\ninfrequent: [death]\n",
		"infrequent: 10\n",
	} {
		if _, err := ParseTaxonomy([]byte(doc)); err == nil {
			t.Errorf("expected error for %q", doc)
		}
	}
}

func TestLoadTaxonomy(t *testing.T) {
	tax, err := LoadTaxonomy("")
	if err != nil || len(tax.Infrequent) != 0 {
		t.Fatalf("expected default taxonomy, got %+v, %v", tax, err)
	}

	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	if err := os.WriteFile(path, []byte("infrequent: [Locusts]\nother: Misc\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tax, err = LoadTaxonomy(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tax.IsInfrequent("Locusts") || tax.Other != "Misc" {
		t.Errorf("unexpected taxonomy: %+v", tax)
	}

	if _, err := LoadTaxonomy(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
