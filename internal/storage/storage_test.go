package storage

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	cerrors "github.com/risksharing/replication/internal/errors"
)

func openSQLite(t *testing.T) *SQLRepository {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "manifest.db")
	repo, err := Open(context.Background(), DialectSQLite, dsn)
	if err != nil {
		t.Fatalf("failed to open manifest: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func artifact(kind ArtifactKind, at time.Time) Artifact {
	return Artifact{
		Dataset:     "shocks",
		LogicalPath: "var/shocks.parquet",
		Store:       "fs",
		Kind:        kind,
		Rows:        42,
		Columns:     []string{"Shock", "Year"},
		RecordedAt:  at,
	}
}

// repositories runs the same assertions against every implementation.
func repositories(t *testing.T) map[string]ArtifactRepository {
	return map[string]ArtifactRepository{
		"sqlite": openSQLite(t),
		"mock":   NewMockRepository(),
	}
}

// TestRepository_RecordAndLatest verifies the newest record for a path is returned.
// Green-Flag: recorded artifacts can be read back.
func TestRepository_RecordAndLatest(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := repo.Record(ctx, artifact(ArtifactBuilt, base)); err != nil {
				t.Fatalf("record failed: %v", err)
			}
			if err := repo.Record(ctx, artifact(ArtifactHit, base.Add(time.Minute))); err != nil {
				t.Fatalf("record failed: %v", err)
			}

			got, err := repo.Latest(ctx, "var/shocks.parquet")
			if err != nil {
				t.Fatalf("latest failed: %v", err)
			}
			want := artifact(ArtifactHit, base.Add(time.Minute))
			if diff := cmp.Diff(&want, got); diff != "" {
				t.Errorf("latest mismatch (-want +got):\n%s", diff)
			}

			all, err := repo.List(ctx)
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			if len(all) != 2 || all[0].Kind != ArtifactHit {
				t.Errorf("expected 2 records newest first, got %+v", all)
			}
		})
	}
}

// TestRepository_LatestMissing verifies an unknown path is a not-found error.
// Red-Flag: absence must be distinguishable from failure.
func TestRepository_LatestMissing(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			_, err := repo.Latest(context.Background(), "var/none.parquet")
			if !stderrors.Is(err, cerrors.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestRepository_EmptyListIsNotNil(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			all, err := repo.List(context.Background())
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			if all == nil {
				t.Error("expected empty slice, got nil")
			}
		})
	}
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "manifest.db")
	for i := 0; i < 2; i++ {
		repo, err := Open(context.Background(), DialectSQLite, dsn)
		if err != nil {
			t.Fatalf("open %d failed: %v", i, err)
		}
		if err := repo.CheckConnectivity(context.Background()); err != nil {
			t.Errorf("connectivity check failed: %v", err)
		}
		repo.Close()
	}
}

func TestMockRepository_SimulatedFailures(t *testing.T) {
	repo := NewMockRepository()
	repo.SetPersistenceFailure(true)
	if err := repo.Record(context.Background(), artifact(ArtifactHit, time.Now())); err == nil {
		t.Error("expected persistence failure")
	}
	repo.SetConnectivityFailure(true)
	if err := repo.CheckConnectivity(context.Background()); err == nil {
		t.Error("expected connectivity failure")
	}
}

func TestMockRepository_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewMockRepository().Record(ctx, artifact(ArtifactHit, time.Now())); err == nil {
		t.Error("expected context error")
	}
}

func TestDialect_Rebind(t *testing.T) {
	q := "SELECT * FROM artifacts WHERE dataset = ? AND kind = ?"
	if got := DialectSQLite.Rebind(q); got != q {
		t.Errorf("sqlite rebind changed query: %s", got)
	}
	want := "SELECT * FROM artifacts WHERE dataset = $1 AND kind = $2"
	if got := DialectPostgres.Rebind(q); got != want {
		t.Errorf("postgres rebind = %s, want %s", got, want)
	}
}

func TestParseDialect(t *testing.T) {
	if d, err := ParseDialect("Postgres"); err != nil || d != DialectPostgres {
		t.Errorf("ParseDialect(Postgres) = %v, %v", d, err)
	}
	if _, err := ParseDialect("mysql"); err == nil {
		t.Error("expected error for unknown driver")
	}
}
