package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a *sql.DB and exposes helpers.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (or creates) the SQLite database at path and applies migrations.
// The journal runs in WAL mode with synchronous=FULL so every committed
// write survives a process crash and readers in other processes never block
// the writer.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000", absPath)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Single writer, multiple readers.
	conn.SetMaxOpenConns(1)

	if err := applyMigrations(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &DB{conn: conn, path: absPath}, nil
}

// Conn returns the underlying *sql.DB for use by the store layer.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Path returns the absolute database path.
func (d *DB) Path() string {
	return d.path
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Ping checks the connection is live.
func (d *DB) Ping() error {
	return d.conn.Ping()
}

// JournalMode reports the active journal mode ("wal" once Open succeeds).
func (d *DB) JournalMode() (string, error) {
	var mode string
	if err := d.conn.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		return "", fmt.Errorf("query journal_mode: %w", err)
	}
	return mode, nil
}
