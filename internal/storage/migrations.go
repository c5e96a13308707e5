package storage

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	cerrors "github.com/risksharing/replication/internal/errors"
	"github.com/risksharing/replication/migrations"
)

// MigrationRunner applies the embedded manifest schema.
type MigrationRunner struct {
	db      *sql.DB
	dialect Dialect
}

// NewMigrationRunner creates a new migration runner.
func NewMigrationRunner(db *sql.DB, dialect Dialect) *MigrationRunner {
	return &MigrationRunner{db: db, dialect: dialect}
}

// Run executes all pending migrations in version order.
func (r *MigrationRunner) Run(ctx context.Context) error {
	if err := r.ensureMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := r.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	pending, err := r.getMigrationFiles()
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, m := range pending {
		if applied[m.version] {
			continue
		}
		if err := r.applyMigration(ctx, m); err != nil {
			return cerrors.NewMigrationFailed(m.name, err)
		}
	}

	return nil
}

type migration struct {
	version string
	name    string
	content []byte
}

func (r *MigrationRunner) ensureMigrationsTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at VARCHAR(64) NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) getAppliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// getMigrationFiles lists NNNNNN_name.up.sql files from the embedded FS.
func (r *MigrationRunner) getMigrationFiles() ([]migration, error) {
	var list []migration

	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		parts := strings.SplitN(name, "_", 2)
		if len(parts) < 2 {
			continue
		}
		content, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		list = append(list, migration{
			version: parts[0],
			name:    strings.TrimSuffix(name, ".up.sql"),
			content: content,
		})
	}

	sort.Slice(list, func(i, j int) bool { return list[i].version < list[j].version })
	return list, nil
}

func (r *MigrationRunner) applyMigration(ctx context.Context, m migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(string(m.content)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		r.dialect.Rebind(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`),
		m.version, formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// splitStatements splits a migration on semicolons. Migrations hold plain DDL
// without string literals or procedural blocks.
func splitStatements(script string) []string {
	var out []string
	for _, s := range strings.Split(script, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
