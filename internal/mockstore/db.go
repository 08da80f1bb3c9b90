// Package mockstore is a development stand-in for the storefront: it serves the
// cart, catalog and account endpoints over a SQLite database.
package mockstore

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS books (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	google_id       TEXT UNIQUE,
	idempotency_key TEXT UNIQUE,
	title           TEXT NOT NULL,
	authors         TEXT NOT NULL DEFAULT '[]',
	description     TEXT NOT NULL DEFAULT '',
	published_date  TEXT NOT NULL DEFAULT '',
	isbn            TEXT NOT NULL DEFAULT '',
	thumbnail       TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS cart_items (
	user_id  INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	book_id  INTEGER NOT NULL REFERENCES books(id) ON DELETE CASCADE,
	quantity INTEGER NOT NULL CHECK (quantity > 0),
	UNIQUE(user_id, book_id)
);

CREATE INDEX IF NOT EXISTS idx_cart_items_user ON cart_items(user_id);
`

// DB wraps a sql.DB with mock storefront operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("mockstore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mockstore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mockstore: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
