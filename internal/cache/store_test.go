package cache

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/risksharing/replication/internal/columnar"
	cerrors "github.com/risksharing/replication/internal/errors"
	"github.com/risksharing/replication/internal/frame"
)

// stubCodec stores tables in memory keyed by the marker it writes to disk.
type stubCodec struct {
	mu     sync.Mutex
	tables map[string]*frame.Table
}

func newStubCodec() *stubCodec { return &stubCodec{tables: make(map[string]*frame.Table)} }

func (c *stubCodec) WriteFile(_ context.Context, path string, t *frame.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	marker := fmt.Sprintf("PAR1-%d", len(c.tables))
	c.tables[marker] = t
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(marker), 0o644)
}

func (c *stubCodec) ReadFile(_ context.Context, path string, _ ...string) (*frame.Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[string(b)]
	if !ok {
		return nil, fmt.Errorf("not a parquet file")
	}
	return t, nil
}

func TestFileStore_MissingFileIsMiss(t *testing.T) {
	store := NewFileStore(t.TempDir(), newStubCodec())
	if res := store.Fetch(context.Background(), shocksDataset); res.Status != StatusMiss {
		t.Fatalf("expected miss, got %v (%v)", res.Status, res.Err)
	}
}

// TestFileStore_CorruptFileIsError verifies an unreadable artifact is never a miss.
// Red-Flag: a corrupt cache must not trigger a silent rebuild.
func TestFileStore_CorruptFileIsError(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "var", "shocks.parquet")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := NewFileStore(root, newStubCodec()).Fetch(context.Background(), shocksDataset)
	if res.Status != StatusError {
		t.Fatalf("expected error, got %v", res.Status)
	}
	var readErr *cerrors.ErrCacheRead
	if !stderrors.As(res.Err, &readErr) {
		t.Errorf("expected ErrCacheRead, got %v", res.Err)
	}
	if stderrors.Is(res.Err, cerrors.ErrNotFound) {
		t.Error("read failure must not be classified as not found")
	}
}

func TestFileStore_DirectoryIsError(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "var", "shocks.parquet"), 0o755); err != nil {
		t.Fatal(err)
	}
	if res := NewFileStore(root, newStubCodec()).Fetch(context.Background(), shocksDataset); res.Status != StatusError {
		t.Fatalf("expected error, got %v", res.Status)
	}
}

func TestFileStore_RejectsEscapingPaths(t *testing.T) {
	store := NewFileStore(t.TempDir(), newStubCodec())
	for _, p := range []string{"../shocks.parquet", "/etc/passwd", "var/../../x"} {
		if _, err := store.Path(p); err == nil {
			t.Errorf("expected %q to be rejected", p)
		}
	}
	if _, err := store.Path("var/shocks.parquet"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFileStore_PutThenFetch(t *testing.T) {
	store := NewFileStore(t.TempDir(), newStubCodec())
	want := shocks("Drought", 2005)
	if err := store.Put(context.Background(), shocksDataset, want); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	res := store.Fetch(context.Background(), shocksDataset)
	if res.Status != StatusHit || res.Table != want {
		t.Fatalf("expected hit with the stored table, got %v", res.Status)
	}
}

// TestFileStore_ParquetRoundTrip exercises the store with the DuckDB codec.
func TestFileStore_ParquetRoundTrip(t *testing.T) {
	codec, err := columnar.Open()
	if err != nil {
		t.Fatalf("failed to open codec: %v", err)
	}
	defer codec.Close()

	store := NewFileStore(t.TempDir(), codec)
	want := shocks("Drought", 2005)
	if err := store.Put(context.Background(), shocksDataset, want); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, err := NewLoader(store, failingBuild(t)).Load(context.Background(), shocksDataset)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("round trip mismatch: got %v rows, columns %v", got.Len(), got.Columns())
	}
}

// fakeS3 is an in-memory S3 endpoint handling GET and PUT on path-style URLs.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	deny    bool
}

func xmlError(status int, code string) *http.Response {
	body := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message></Error>`, code, code)
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": {"application/xml"}},
	}
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deny {
		return xmlError(http.StatusForbidden, "AccessDenied"), nil
	}
	key := strings.TrimPrefix(req.URL.Path, "/")
	switch req.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		f.objects[key] = body
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{"ETag": {`"etag"`}}}, nil
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			return xmlError(http.StatusNotFound, "NoSuchKey"), nil
		}
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(body)), Header: http.Header{
			"Content-Length": {fmt.Sprintf("%d", len(body))},
		}}, nil
	}
	return &http.Response{StatusCode: http.StatusNotImplemented, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
}

func newTestS3Store(t *testing.T, codec Codec) (*S3Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string][]byte)}
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	if err != nil {
		t.Fatalf("failed to load aws config: %v", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: fake}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		o.RetryMaxAttempts = 1
	})
	return NewS3StoreWithClient(client, "lsms-cache", "replication", codec), fake
}

func TestS3Store_Key(t *testing.T) {
	store, _ := newTestS3Store(t, newStubCodec())
	if got := store.Key("var/shocks.parquet"); got != "replication/var/shocks.parquet" {
		t.Errorf("Key = %q", got)
	}
	if got := store.Key("../x.parquet"); got != "replication/x.parquet" {
		t.Errorf("Key did not clean escaping path: %q", got)
	}
}

func TestS3Store_NoSuchKeyIsMiss(t *testing.T) {
	store, _ := newTestS3Store(t, newStubCodec())
	res := store.Fetch(context.Background(), shocksDataset)
	if res.Status != StatusMiss {
		t.Fatalf("expected miss, got %v (%v)", res.Status, res.Err)
	}
}

// TestS3Store_AccessDeniedIsError verifies authorization failures propagate.
// Red-Flag: a forbidden artifact is not an absent artifact.
func TestS3Store_AccessDeniedIsError(t *testing.T) {
	store, fake := newTestS3Store(t, newStubCodec())
	fake.deny = true
	res := store.Fetch(context.Background(), shocksDataset)
	if res.Status != StatusError {
		t.Fatalf("expected error, got %v", res.Status)
	}
	var readErr *cerrors.ErrCacheRead
	if !stderrors.As(res.Err, &readErr) {
		t.Errorf("expected ErrCacheRead, got %v", res.Err)
	}
}

func TestS3Store_PutThenFetch(t *testing.T) {
	store, fake := newTestS3Store(t, newStubCodec())
	want := shocks("Drought", 2005)
	if err := store.Put(context.Background(), shocksDataset, want); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if _, ok := fake.objects["lsms-cache/replication/var/shocks.parquet"]; !ok {
		t.Fatalf("expected object under bucket key, have %d objects", len(fake.objects))
	}

	res := store.Fetch(context.Background(), shocksDataset)
	if res.Status != StatusHit || res.Table != want {
		t.Fatalf("expected hit with the stored table, got %v (%v)", res.Status, res.Err)
	}
}

func TestS3Store_CorruptObjectIsError(t *testing.T) {
	store, fake := newTestS3Store(t, newStubCodec())
	fake.objects["lsms-cache/replication/var/shocks.parquet"] = []byte("garbage")
	if res := store.Fetch(context.Background(), shocksDataset); res.Status != StatusError {
		t.Fatalf("expected error, got %v", res.Status)
	}
}
