package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/risksharing/replication/internal/cache"
	"github.com/risksharing/replication/internal/columnar"
	"github.com/risksharing/replication/internal/observability"
	"github.com/risksharing/replication/internal/shocks"
	"github.com/risksharing/replication/internal/storage"
	"github.com/risksharing/replication/internal/survey"
)

// session holds the resources a data command needs.
type session struct {
	codec    *columnar.Codec
	store    cache.Store
	manifest storage.ArtifactRepository
	closers  []func() error
}

func (s *session) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openSession opens the parquet codec, the cache store and the manifest.
func (c *CLI) openSession(ctx context.Context) (*session, error) {
	codec, err := columnar.Open()
	if err != nil {
		return nil, err
	}
	s := &session{codec: codec, closers: []func() error{codec.Close}}

	s.store, err = c.openStore(ctx, codec)
	if err != nil {
		s.Close()
		return nil, err
	}

	repo, err := c.openManifest(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	if repo != nil {
		s.manifest = repo
		s.closers = append(s.closers, repo.Close)
	}
	return s, nil
}

func (c *CLI) openStore(ctx context.Context, codec cache.Codec) (cache.Store, error) {
	switch c.cfg.Cache.Driver {
	case "s3":
		s3cfg := c.cfg.Cache.S3
		return cache.NewS3Store(ctx, cache.S3Config{
			Bucket:    s3cfg.Bucket,
			Region:    s3cfg.Region,
			Endpoint:  s3cfg.Endpoint,
			Prefix:    s3cfg.Prefix,
			PathStyle: s3cfg.PathStyle,
		}, codec)
	default:
		return cache.NewFileStore(c.cfg.CachePath(), codec), nil
	}
}

// openManifest returns nil when the manifest is disabled.
func (c *CLI) openManifest(ctx context.Context) (*storage.SQLRepository, error) {
	if c.cfg.Manifest.Driver == "none" {
		return nil, nil
	}
	dialect, err := storage.ParseDialect(c.cfg.Manifest.Driver)
	if err != nil {
		return nil, err
	}
	dsn := c.cfg.Manifest.DSN
	if dialect == storage.DialectSQLite {
		if !filepath.IsAbs(dsn) {
			dsn = filepath.Join(c.cfg.Data.Root, dsn)
		}
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create manifest directory: %w", err)
		}
	}
	return storage.Open(ctx, dialect, dsn)
}

func (c *CLI) library(codec survey.Reader) *survey.Library {
	return survey.NewLibrary(c.cfg.LibraryPath(), codec)
}

func (c *CLI) shockLoader(s *session) (*shocks.Loader, error) {
	tax, err := shocks.LoadTaxonomy(c.cfg.Taxonomy)
	if err != nil {
		return nil, err
	}
	opts := []cache.LoaderOption{
		cache.WithWriteBack(c.cfg.Cache.WriteBack),
		cache.WithEventLogger(observability.NewZapEventLogger(c.logger)),
		cache.WithMetrics(c.metrics),
	}
	if s.manifest != nil {
		opts = append(opts, cache.WithManifest(s.manifest))
	}
	country := c.library(s.codec).Country(c.cfg.Country)
	return shocks.NewLoader(s.store, country, tax, opts...), nil
}
