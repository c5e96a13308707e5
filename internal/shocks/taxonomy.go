package shocks

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed taxonomy.yaml
var defaultTaxonomy []byte

// Shock classes.
const (
	ClassCovariate     = "covariate"
	ClassIdiosyncratic = "idiosyncratic"
	ClassUnclassified  = "unclassified"
)

// Taxonomy canonicalises raw shock labels and classifies them.
type Taxonomy struct {
	// Infrequent lists shocks too rare to keep their own label. They are
	// pooled into Other. Classified shocks cannot be listed.
	Infrequent []string `yaml:"infrequent"`

	// Other is the label pooled shocks are given.
	Other string `yaml:"other"`

	Covariate     []string          `yaml:"covariate"`
	Idiosyncratic []string          `yaml:"idiosyncratic"`
	Aliases       map[string]string `yaml:"aliases"`

	aliases    map[string]string
	infrequent map[string]bool
}

// DefaultTaxonomy returns the taxonomy shipped with the toolkit.
func DefaultTaxonomy() *Taxonomy {
	t, err := ParseTaxonomy(defaultTaxonomy)
	if err != nil {
		panic(fmt.Sprintf("shocks: embedded taxonomy is invalid: %v", err))
	}
	return t
}

// LoadTaxonomy reads a taxonomy file. An empty path returns the default.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	if path == "" {
		return DefaultTaxonomy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read taxonomy file: %w", err)
	}
	return ParseTaxonomy(data)
}

// ParseTaxonomy decodes a taxonomy document. Unknown fields fail.
func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var t Taxonomy
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy YAML: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks the taxonomy and builds its lookup table.
func (t *Taxonomy) Validate() error {
	if t.Other == "" {
		t.Other = "Other"
	}
	for _, s := range t.Covariate {
		if slices.Contains(t.Idiosyncratic, s) {
			return fmt.Errorf("taxonomy: shock %q is both covariate and idiosyncratic", s)
		}
	}

	t.aliases = make(map[string]string, len(t.Aliases)+len(t.Covariate)+len(t.Idiosyncratic))
	for _, s := range slices.Concat(t.Covariate, t.Idiosyncratic) {
		t.aliases[normalize(s)] = s
	}
	for raw, canonical := range t.Aliases {
		if strings.TrimSpace(canonical) == "" {
			return fmt.Errorf("taxonomy: alias %q has an empty target", raw)
		}
		t.aliases[normalize(raw)] = canonical
	}

	t.infrequent = make(map[string]bool, len(t.Infrequent))
	for _, s := range t.Infrequent {
		c := t.Canonical(s)
		if t.Class(c) != ClassUnclassified {
			return fmt.Errorf("taxonomy: %s shock %q cannot be pooled as infrequent", t.Class(c), c)
		}
		t.infrequent[c] = true
	}
	return nil
}

// Canonical returns the canonical name of a raw label. Unknown labels are
// returned trimmed but otherwise unchanged.
func (t *Taxonomy) Canonical(raw string) string {
	if c, ok := t.aliases[normalize(raw)]; ok {
		return c
	}
	return strings.TrimSpace(raw)
}

// IsInfrequent reports whether a canonical shock name is pooled into Other.
func (t *Taxonomy) IsInfrequent(shock string) bool {
	return t.infrequent[shock]
}

// Class returns the class of a canonical shock name.
func (t *Taxonomy) Class(shock string) string {
	switch {
	case slices.Contains(t.Covariate, shock):
		return ClassCovariate
	case slices.Contains(t.Idiosyncratic, shock):
		return ClassIdiosyncratic
	default:
		return ClassUnclassified
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
