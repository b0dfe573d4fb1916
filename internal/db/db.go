// Package db implements the repository interfaces on PostgreSQL.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// DB wraps a database/sql connection pool for PostgreSQL. All table names
// are namespaced by a configurable prefix.
type DB struct {
	Pool   *sql.DB
	prefix string
}

// New creates a new database connection.
// The caller must import a PostgreSQL driver (e.g., _ "github.com/lib/pq").
func New(ctx context.Context, databaseURL, tablePrefix string) (*DB, error) {
	pool, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(5)

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool, prefix: tablePrefix}, nil
}

// Close closes the connection pool.
func (d *DB) Close() error {
	return d.Pool.Close()
}

// table returns the prefixed name for a logical table.
func (d *DB) table(name string) string {
	return d.prefix + name
}

// Migrate runs the database schema migrations.
func (d *DB) Migrate(ctx context.Context) error {
	sqlText := strings.ReplaceAll(migrationSQL, "{{p}}", d.prefix)
	if _, err := d.Pool.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

const migrationSQL = `
CREATE TABLE IF NOT EXISTS {{p}}users (
    id          TEXT PRIMARY KEY,
    email       TEXT UNIQUE NOT NULL,
    role        TEXT NOT NULL DEFAULT 'member',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS {{p}}workflows (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    active      BOOLEAN NOT NULL DEFAULT FALSE,
    nodes       JSONB NOT NULL DEFAULT '[]',
    settings    JSONB NOT NULL DEFAULT '{}',
    version_id  TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS {{p}}tags (
    id          TEXT PRIMARY KEY,
    name        TEXT UNIQUE NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS {{p}}workflows_tags (
    workflow_id TEXT NOT NULL REFERENCES {{p}}workflows(id) ON DELETE CASCADE,
    tag_id      TEXT NOT NULL REFERENCES {{p}}tags(id) ON DELETE CASCADE,
    PRIMARY KEY (workflow_id, tag_id)
);

CREATE TABLE IF NOT EXISTS {{p}}shared_workflows (
    workflow_id TEXT NOT NULL REFERENCES {{p}}workflows(id) ON DELETE CASCADE,
    user_id     TEXT NOT NULL REFERENCES {{p}}users(id) ON DELETE CASCADE,
    role        TEXT NOT NULL DEFAULT 'editor',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (workflow_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_{{p}}shared_workflows_user_id ON {{p}}shared_workflows(user_id);
CREATE INDEX IF NOT EXISTS idx_{{p}}workflows_tags_tag_id ON {{p}}workflows_tags(tag_id);
`
