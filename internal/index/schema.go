// Package index mirrors the latest artifact history into SQLite for search
// and lookup, with optional FTS5 full-text search over artifact names.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS artifacts (
	name        TEXT PRIMARY KEY,
	batch       TEXT NOT NULL,
	size        INTEGER NOT NULL DEFAULT 0,
	checksums   TEXT NOT NULL DEFAULT '{}',
	uris        TEXT NOT NULL DEFAULT '[]',
	fingerprint TEXT NOT NULL DEFAULT '',
	versions    INTEGER NOT NULL DEFAULT 0,
	deleted     INTEGER NOT NULL DEFAULT 0,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS versions (
	name      TEXT NOT NULL,
	position  INTEGER NOT NULL,
	batch     TEXT NOT NULL,
	root      TEXT NOT NULL,
	uri       TEXT NOT NULL,
	size      INTEGER NOT NULL DEFAULT 0,
	checksums TEXT NOT NULL DEFAULT '{}',
	UNIQUE(name, position, root)
);

CREATE INDEX IF NOT EXISTS idx_versions_name ON versions(name);

CREATE TABLE IF NOT EXISTS failures (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	label    TEXT NOT NULL,
	message  TEXT NOT NULL,
	category TEXT NOT NULL,
	root     TEXT NOT NULL DEFAULT '',
	batch    TEXT NOT NULL DEFAULT '',
	artifact TEXT NOT NULL DEFAULT '',
	detail   TEXT NOT NULL DEFAULT ''
);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
