package db

import (
	"database/sql"
	"fmt"
)

// migrations is an ordered list of SQL migration statements.
// Each entry is applied once in order. New migrations are appended at the end.
var migrations = []string{
	// Migration 0: encrypted deep memory records
	`CREATE TABLE IF NOT EXISTS deep_memories (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at     TEXT    NOT NULL,
		category       TEXT    NOT NULL,
		encrypted_blob BLOB    NOT NULL,
		content_hash   TEXT    NOT NULL,
		dreamed        INTEGER NOT NULL DEFAULT 0 CHECK (dreamed IN (0, 1)),
		dream_date     TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_deep_dreamed_created ON deep_memories(dreamed, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_deep_category        ON deep_memories(category)`,

	// Migration 3: the dreamed flag never reverts
	`CREATE TRIGGER IF NOT EXISTS deep_memories_dreamed_monotonic
		BEFORE UPDATE OF dreamed ON deep_memories
		WHEN OLD.dreamed = 1 AND NEW.dreamed = 0
		BEGIN
			SELECT RAISE(ABORT, 'dreamed flag cannot be cleared');
		END`,
}

// applyMigrations runs any migrations that have not yet been applied. Each
// migration and its bookkeeping row commit together.
func applyMigrations(conn *sql.DB) error {
	// Ensure the migration tracking table exists first.
	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for i, stmt := range migrations {
		var count int
		row := conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, i)
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", i, err)
		}
		if count > 0 {
			continue
		}

		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i, err)
		}
		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", i, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, i); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i, err)
		}
	}

	return nil
}
