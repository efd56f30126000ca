package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Migrator applies SQL files from a directory in lexical order. File
// naming follows golang-migrate: {version}_{name}.up.sql / .down.sql.
type Migrator struct {
	db            *sql.DB
	migrationsDir string
}

func NewMigrator(db *sql.DB, migrationsDir string) *Migrator {
	return &Migrator{db: db, migrationsDir: migrationsDir}
}

// Up applies every pending up-migration, one transaction per file.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.ensureVersionTable(ctx); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("load applied versions: %w", err)
	}

	names, err := m.migrationFiles(".up.sql")
	if err != nil {
		return fmt.Errorf("scan %s: %w", m.migrationsDir, err)
	}

	pending := 0
	for _, name := range names {
		version := versionOf(name)
		if applied[version] {
			continue
		}
		if err := m.applyUp(ctx, version, name); err != nil {
			return err
		}
		pending++
	}

	if pending == 0 {
		log.Println("INFO: schema up to date")
	}
	return nil
}

func (m *Migrator) applyUp(ctx context.Context, version, name string) error {
	log.Printf("INFO: applying migration %s", name)

	sqlText, err := os.ReadFile(filepath.Join(m.migrationsDir, name))
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	return m.inTx(ctx, name, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, string(sqlText)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO public.schema_migrations (version, filename) VALUES ($1, $2)`,
			version, name)
		return err
	})
}

// Down rolls back the most recently applied migration only. Rolling
// back further means calling Down again.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.ensureVersionTable(ctx); err != nil {
		return err
	}

	var version, name string
	err := m.db.QueryRowContext(ctx,
		`SELECT version, filename FROM public.schema_migrations ORDER BY version DESC LIMIT 1`,
	).Scan(&version, &name)
	if err == sql.ErrNoRows {
		log.Println("INFO: nothing to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("find latest migration: %w", err)
	}

	downName := strings.Replace(name, ".up.sql", ".down.sql", 1)
	sqlText, err := os.ReadFile(filepath.Join(m.migrationsDir, downName))
	if err != nil {
		return fmt.Errorf("read %s: %w", downName, err)
	}

	err = m.inTx(ctx, downName, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, string(sqlText)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM public.schema_migrations WHERE version = $1`, version)
		return err
	})
	if err != nil {
		return err
	}

	log.Printf("INFO: rolled back migration %s", downName)
	return nil
}

// inTx runs fn inside a transaction, rolling back on any error.
func (m *Migrator) inTx(ctx context.Context, name string, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for %s: %w", name, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("migration %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	return nil
}

func (m *Migrator) ensureVersionTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS public.schema_migrations (
			version    TEXT PRIMARY KEY,
			filename   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM public.schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (m *Migrator) migrationFiles(suffix string) ([]string, error) {
	entries, err := os.ReadDir(m.migrationsDir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// versionOf returns the numeric prefix of a migration filename, e.g.
// "000002_projections.up.sql" -> "000002".
func versionOf(name string) string {
	if i := strings.IndexByte(name, '_'); i > 0 {
		return name[:i]
	}
	return name
}
