// Package survey provides country-keyed access to the household survey
// library. Assets are parquet files laid out as <root>/<Country>/var/<name>.parquet
// and are resolved through an Opener, which is where decryption happens.
package survey

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	cerrors "github.com/risksharing/replication/internal/errors"
	"github.com/risksharing/replication/internal/frame"
)

// Asset names understood by Country.
const (
	AssetShocks           = "shocks"
	AssetFoodExpenditures = "food_expenditures"
	AssetOtherFeatures    = "other_features"
	AssetLocality         = "locality"
)

// decryptionMarker is the message fragment the library emits when its
// passphrase is missing or wrong.
const decryptionMarker = "Decryption failed"

// Reader decodes a local parquet file into a table.
type Reader interface {
	ReadFile(ctx context.Context, path string, levels ...string) (*frame.Table, error)
}

// Opener makes an asset available as a local file and returns its path.
// rel is relative to the library root, e.g. "Uganda/var/shocks.parquet".
type Opener func(ctx context.Context, root, rel string) (string, error)

// PlainOpener serves assets that are already decrypted on disk.
func PlainOpener(_ context.Context, root, rel string) (string, error) {
	path := filepath.Join(root, filepath.FromSlash(rel))
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}

// Library is the root of a survey data checkout.
type Library struct {
	Root   string
	Reader Reader
	Opener Opener
}

// Option configures a Library.
type Option func(*Library)

// WithOpener replaces the default PlainOpener.
func WithOpener(o Opener) Option {
	return func(l *Library) { l.Opener = o }
}

// NewLibrary creates a Library rooted at root.
func NewLibrary(root string, r Reader, opts ...Option) *Library {
	l := &Library{Root: root, Reader: r, Opener: PlainOpener}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check reports whether the library root exists and is a directory.
func (l *Library) Check() error {
	info, err := os.Stat(l.Root)
	if err != nil {
		return cerrors.NewPathMissing(l.Root, err)
	}
	if !info.IsDir() {
		return cerrors.NewPathMissing(l.Root, fmt.Errorf("%s is not a directory", l.Root))
	}
	return nil
}

// Country returns the accessor for one country. The country is not checked
// until an asset is read.
func (l *Library) Country(name string) *Country {
	return &Country{Name: name, lib: l}
}

// Countries lists the country directories in the library.
func (l *Library) Countries() ([]string, error) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		return nil, cerrors.NewPathMissing(l.Root, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Country reads the assets of a single country.
type Country struct {
	Name string
	lib  *Library
}

// AssetPath returns the library-relative path of an asset.
func (c *Country) AssetPath(name string) string {
	return c.Name + "/var/" + name + ".parquet"
}

// Table reads the named asset with the given index levels.
func (c *Country) Table(ctx context.Context, name string, levels ...string) (*frame.Table, error) {
	rel := c.AssetPath(name)
	path, err := c.lib.Opener(ctx, c.lib.Root, rel)
	if err != nil {
		return nil, c.wrap(rel, err)
	}
	t, err := c.lib.Reader.ReadFile(ctx, path, levels...)
	if err != nil {
		return nil, c.wrap(rel, err)
	}
	return t, nil
}

// Shocks reads the raw shock module, indexed by household and period.
func (c *Country) Shocks(ctx context.Context) (*frame.Table, error) {
	return c.Table(ctx, AssetShocks, "i", "t")
}

// FoodExpenditures reads household food expenditures.
func (c *Country) FoodExpenditures(ctx context.Context) (*frame.Table, error) {
	return c.Table(ctx, AssetFoodExpenditures, "i", "t", "m")
}

// OtherFeatures reads household covariates such as Rural.
func (c *Country) OtherFeatures(ctx context.Context) (*frame.Table, error) {
	return c.Table(ctx, AssetOtherFeatures, "i", "t", "m")
}

// Locality reads the household to locality mapping (column v).
func (c *Country) Locality(ctx context.Context) (*frame.Table, error) {
	return c.Table(ctx, AssetLocality, "i", "t", "m")
}

func (c *Country) wrap(rel string, err error) error {
	if stderrors.Is(err, fs.ErrNotExist) {
		return cerrors.NewPathMissing(rel, err)
	}
	if strings.Contains(err.Error(), decryptionMarker) {
		return cerrors.NewUpstreamDecryption(c.Name, err)
	}
	return err
}
