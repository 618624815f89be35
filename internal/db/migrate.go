// Package db applies the embedded SQL migrations through database/sql.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	_ "github.com/lib/pq"
)

const createVersionTable = `create table if not exists schema_migrations (
	version text primary key,
	applied_at timestamptz not null default now()
)`

// Open connects with the lib/pq driver. Migrations run over database/sql so
// the tool stays independent of the pgx pool settings used by the services.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return conn, nil
}

// Migration is one SQL file of the schema history.
type Migration struct {
	Version string
	Body    string
}

// Load reads the *.sql files of fsys in lexical order. The file name
// without extension is the version.
func Load(fsys fs.FS) ([]Migration, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	out := make([]Migration, 0, len(names))
	for _, name := range names {
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if strings.TrimSpace(string(body)) == "" {
			return nil, fmt.Errorf("migration %s is empty", name)
		}
		out = append(out, Migration{Version: strings.TrimSuffix(name, ".sql"), Body: string(body)})
	}
	return out, nil
}

// Pending filters out versions already applied.
func Pending(all []Migration, applied map[string]bool) []Migration {
	var out []Migration
	for _, m := range all {
		if !applied[m.Version] {
			out = append(out, m)
		}
	}
	return out
}

// Applied returns the versions recorded in schema_migrations.
func Applied(ctx context.Context, conn *sql.DB) (map[string]bool, error) {
	if _, err := conn.ExecContext(ctx, createVersionTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	rows, err := conn.QueryContext(ctx, `select version from schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
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

// Apply runs each migration in its own transaction and records it.
func Apply(ctx context.Context, conn *sql.DB, migrations []Migration) error {
	for _, m := range migrations {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin %s: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.Body); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `insert into schema_migrations (version) values ($1)`, m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", m.Version, err)
		}
	}
	return nil
}
