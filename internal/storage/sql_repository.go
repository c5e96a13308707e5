package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	cerrors "github.com/risksharing/replication/internal/errors"

	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver
)

// Dialect is the SQL flavour of the manifest database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect validates a manifest driver name.
func ParseDialect(s string) (Dialect, error) {
	switch Dialect(strings.ToLower(s)) {
	case DialectSQLite:
		return DialectSQLite, nil
	case DialectPostgres:
		return DialectPostgres, nil
	}
	return "", fmt.Errorf("storage: unknown manifest driver %q", s)
}

// Rebind rewrites ? placeholders to $n for PostgreSQL.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLRepository implements ArtifactRepository over database/sql.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLRepository wraps an open database. The schema must already exist.
func NewSQLRepository(db *sql.DB, dialect Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect}
}

// Open connects to the manifest database and applies pending migrations.
func Open(ctx context.Context, dialect Dialect, dsn string) (*SQLRepository, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, cerrors.NewDatabaseUnavailable(err.Error())
	}
	if dialect == DialectSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, cerrors.NewDatabaseUnavailable(err.Error())
	}
	if err := NewMigrationRunner(db, dialect).Run(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return NewSQLRepository(db, dialect), nil
}

// Record appends one manifest record.
func (r *SQLRepository) Record(ctx context.Context, a Artifact) error {
	cols, err := json.Marshal(a.Columns)
	if err != nil {
		return fmt.Errorf("failed to encode columns: %w", err)
	}
	_, err = r.db.ExecContext(ctx, r.dialect.Rebind(
		`INSERT INTO artifacts (dataset, logical_path, store, kind, row_count, columns_json, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		a.Dataset, a.LogicalPath, a.Store, string(a.Kind), a.Rows, string(cols), formatTime(a.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}
	return nil
}

// Latest returns the newest record for logicalPath.
func (r *SQLRepository) Latest(ctx context.Context, logicalPath string) (*Artifact, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(
		`SELECT dataset, logical_path, store, kind, row_count, columns_json, recorded_at
		 FROM artifacts WHERE logical_path = ?
		 ORDER BY recorded_at DESC LIMIT 1`),
		logicalPath,
	)
	a, err := scanArtifact(row)
	if err == sql.ErrNoRows {
		return nil, cerrors.NewArtifactNotFound(logicalPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query artifact: %w", err)
	}
	return a, nil
}

// List returns every record, newest first.
func (r *SQLRepository) List(ctx context.Context) ([]*Artifact, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT dataset, logical_path, store, kind, row_count, columns_json, recorded_at
		 FROM artifacts ORDER BY recorded_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	out := make([]*Artifact, 0)
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CheckConnectivity pings the database.
func (r *SQLRepository) CheckConnectivity(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return cerrors.NewDatabaseUnavailable(err.Error())
	}
	return nil
}

// Close closes the database.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArtifact(s scanner) (*Artifact, error) {
	var (
		a        Artifact
		kind     string
		colsJSON string
		recorded string
	)
	if err := s.Scan(&a.Dataset, &a.LogicalPath, &a.Store, &kind, &a.Rows, &colsJSON, &recorded); err != nil {
		return nil, err
	}
	a.Kind = ArtifactKind(kind)
	if err := json.Unmarshal([]byte(colsJSON), &a.Columns); err != nil {
		return nil, fmt.Errorf("invalid columns_json: %w", err)
	}
	t, err := parseTime(recorded)
	if err != nil {
		return nil, fmt.Errorf("invalid recorded_at: %w", err)
	}
	a.RecordedAt = t
	return &a, nil
}
