// Package sqlite implements the storage collaborator over a single SQLite
// database. Head fields get their own columns; settings, groups and
// contacts are stored as opaque JSON blobs the core reads and rewrites
// wholesale.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens a SQLite database with the given DSN.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrate applies the schema. Idempotent.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			uuid VARCHAR(36) PRIMARY KEY,
			email VARCHAR(100) NOT NULL,
			email_lower VARCHAR(100) UNIQUE NOT NULL,
			hashed_password VARCHAR(255) NOT NULL,
			verified BOOLEAN DEFAULT FALSE,
			name TEXT DEFAULT '',
			message TEXT DEFAULT '',
			media TEXT DEFAULT '',
			settings TEXT NOT NULL DEFAULT '{}',
			groups TEXT NOT NULL DEFAULT '[]',
			contacts TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_users_email_lower ON users(email_lower);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
