package cache

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

// Codec decodes and encodes parquet artifacts.
type Codec interface {
	ReadFile(ctx context.Context, path string, levels ...string) (*frame.Table, error)
	WriteFile(ctx context.Context, path string, t *frame.Table) error
}

// FileStore serves artifacts from a directory; a logical path is resolved
// relative to Root.
type FileStore struct {
	Root  string
	Codec Codec
}

// NewFileStore creates a FileStore.
func NewFileStore(root string, codec Codec) *FileStore {
	return &FileStore{Root: root, Codec: codec}
}

// Name implements Store.
func (s *FileStore) Name() string { return "fs" }

// Path resolves a logical path inside Root. Paths escaping Root are rejected.
func (s *FileStore) Path(logicalPath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(logicalPath))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("cache: logical path %q escapes the cache root", logicalPath)
	}
	return filepath.Join(s.Root, clean), nil
}

// Fetch implements Store. Only a missing file is a miss.
func (s *FileStore) Fetch(ctx context.Context, ds Dataset) Result {
	path, err := s.Path(ds.LogicalPath)
	if err != nil {
		return Failed(cerrors.NewCacheRead(ds.LogicalPath, err))
	}

	info, err := os.Stat(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return Miss()
	}
	if err != nil {
		return Failed(cerrors.NewCacheRead(ds.LogicalPath, err))
	}
	if info.IsDir() {
		return Failed(cerrors.NewCacheRead(ds.LogicalPath, fmt.Errorf("%s is a directory", path)))
	}

	// Open once so permission problems surface as read failures, not misses.
	f, err := os.Open(path)
	if err != nil {
		return Failed(cerrors.NewCacheRead(ds.LogicalPath, err))
	}
	f.Close()

	t, err := s.Codec.ReadFile(ctx, path, ds.Levels...)
	if err != nil {
		return Failed(cerrors.NewCacheRead(ds.LogicalPath, err))
	}
	return Hit(t)
}

// Put implements Writer.
func (s *FileStore) Put(ctx context.Context, ds Dataset, t *frame.Table) error {
	path, err := s.Path(ds.LogicalPath)
	if err != nil {
		return err
	}
	return s.Codec.WriteFile(ctx, path, t)
}
