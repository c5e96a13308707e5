package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestZapEventLogger_WritesRequiredFields verifies every load line carries the required fields.
func TestZapEventLogger_WritesRequiredFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(LoggingConfig{Level: "info", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = NewZapEventLogger(log).LogLoad(context.Background(), LoadLogEntry{
		Dataset:     "shocks",
		LogicalPath: "var/shocks.parquet",
		Store:       "fs",
		Provenance:  ProvenanceCache,
		Rows:        12,
		Duration:    1500 * time.Millisecond,
		Outcome:     "hit",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, buf.String())
	}
	for _, key := range []string{"timestamp", "level", "dataset", "logical_path", "store", "provenance", "rows", "duration_ms", "outcome"} {
		if _, ok := line[key]; !ok {
			t.Errorf("missing field %q in %s", key, buf.String())
		}
	}
	if line["level"] != "info" {
		t.Errorf("expected info level, got %v", line["level"])
	}
	if line["duration_ms"] != float64(1500) {
		t.Errorf("expected duration_ms 1500, got %v", line["duration_ms"])
	}
}

func TestZapEventLogger_FailedLoadIsError(t *testing.T) {
	var buf bytes.Buffer
	log, _ := NewLogger(LoggingConfig{}, &buf)

	_ = NewZapEventLogger(log).LogLoad(context.Background(), LoadLogEntry{
		Dataset:     "shocks",
		LogicalPath: "var/shocks.parquet",
		Outcome:     "error",
		Error:       "permission denied",
	})

	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Errorf("expected error level, got %s", buf.String())
	}
}

// TestLoadLogEntry_Validate verifies incomplete entries are rejected.
// Red-Flag: a load without dataset or path cannot be attributed.
func TestLoadLogEntry_Validate(t *testing.T) {
	cases := []LoadLogEntry{
		{LogicalPath: "var/shocks.parquet"},
		{Dataset: "shocks"},
		{Dataset: "shocks", LogicalPath: "p", Duration: -time.Second},
	}
	for _, e := range cases {
		if err := e.Validate(); err == nil {
			t.Errorf("expected validation error for %+v", e)
		}
	}
}

func TestZapEventLogger_RespectsContext(t *testing.T) {
	log, _ := NewLogger(LoggingConfig{}, &bytes.Buffer{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewZapEventLogger(log).LogLoad(ctx, LoadLogEntry{Dataset: "shocks", LogicalPath: "p"})
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestNewLogger_RejectsUnknownSettings(t *testing.T) {
	if _, err := NewLogger(LoggingConfig{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := NewLogger(LoggingConfig{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestMetrics_CountsAndExports(t *testing.T) {
	m := NewMetrics()
	m.CacheLookup("shocks", "hit")
	m.CacheLookup("shocks", "hit")
	m.CacheLookup("shocks", "miss")
	m.ObserveBuild("shocks", 2*time.Second)
	m.WriteBackFailed("shocks")

	if got := testutil.ToFloat64(m.cacheLookups.WithLabelValues("shocks", "hit")); got != 2 {
		t.Errorf("expected 2 hits, got %v", got)
	}
	if got := testutil.ToFloat64(m.writeBackFailures.WithLabelValues("shocks")); got != 1 {
		t.Errorf("expected 1 write-back failure, got %v", got)
	}

	path := filepath.Join(t.TempDir(), "risksharing.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(data), `risksharing_cache_lookups_total{dataset="shocks",outcome="miss"} 1`) {
		t.Errorf("textfile missing miss counter:\n%s", data)
	}
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.CacheLookup("shocks", "hit")
	m.ObserveBuild("shocks", time.Second)
	m.WriteBackFailed("shocks")
}
