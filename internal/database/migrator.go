package database

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrator runs SQL schema migrations from an embedded filesystem so the
// binary is self-contained.
type Migrator struct {
	pool *pgxpool.Pool
	fsys fs.FS
	dir  string
}

func NewMigrator(pool *pgxpool.Pool, fsys fs.FS, dir string) *Migrator {
	return &Migrator{pool: pool, fsys: fsys, dir: dir}
}

// RunMigrations executes all pending migrations in filename order. Applied
// migrations are tracked in a schema_migrations table and skipped on
// subsequent runs.
func (m *Migrator) RunMigrations(ctx context.Context) error {
	if err := m.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	entries, err := fs.ReadDir(m.fsys, m.dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	run := 0
	for _, filename := range files {
		if applied[filename] {
			continue
		}

		path := filename
		if m.dir != "." {
			path = m.dir + "/" + filename
		}
		sql, err := fs.ReadFile(m.fsys, path)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		log.Printf("[Migrator] Applying %s", filename)
		if _, err := m.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("migration %s failed: %w", filename, err)
		}

		if _, err := m.pool.Exec(ctx,
			"INSERT INTO schema_migrations (filename) VALUES ($1)", filename); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", filename, err)
		}
		run++
	}

	if run > 0 {
		log.Printf("[Migrator] %d migration(s) applied", run)
	} else {
		log.Println("[Migrator] Schema up to date")
	}
	return nil
}

func (m *Migrator) createMigrationsTable(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

func (m *Migrator) getAppliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := m.pool.Query(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}
