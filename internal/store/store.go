// Package store persists the provider catalog in sqlite.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"guardslot/internal/catalog"
)

// ErrNotFound is returned when no active provider matches.
var ErrNotFound = catalog.ErrNotFound

var _ catalog.Source = (*DB)(nil)

// DB wraps sql.DB for the provider catalog.
type DB struct {
	*sql.DB
	path string
}

// NewDB opens database at path and runs migrations.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{DB: db, path: path}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS providers (
			id TEXT PRIMARY KEY,
			api_key TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			business TEXT,
			avatar TEXT,
			timezone TEXT,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			version INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS services (
			provider_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			duration INTEGER NOT NULL,
			price REAL NOT NULL,
			description TEXT,
			PRIMARY KEY (provider_id, position),
			FOREIGN KEY (provider_id) REFERENCES providers(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS availability_rules (
			provider_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			day_of_week INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			PRIMARY KEY (provider_id, position),
			FOREIGN KEY (provider_id) REFERENCES providers(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS break_times (
			provider_id TEXT NOT NULL,
			rule_position INTEGER NOT NULL,
			position INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			PRIMARY KEY (provider_id, rule_position, position),
			FOREIGN KEY (provider_id, rule_position) REFERENCES availability_rules(provider_id, position) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_providers_active ON providers(is_active)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
