// Package store persists the provider catalog, installation relationships,
// and the remote-registry cache in SQLite.
//
// All uniqueness guarantees the rest of the system relies on (provider ids,
// one installation per provider/agent pair) are enforced here with unique
// constraints, not in caller logic, so concurrent reconciliation passes
// cannot race each other into duplicate rows.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed durable store. A path of ":memory:" yields a
// process-lifetime store, which is the degraded/test-only mode; production
// wiring always passes a file path.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the database at path and ensures the schema exists.
// Parent directories are created if needed.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection serializes writers, so concurrent inserts surface as
	// constraint violations rather than SQLITE_BUSY. It also keeps ":memory:"
	// pointing at a single database instead of one per pooled connection.
	db.SetMaxOpenConns(1)

	// WAL improves concurrent read performance for the reconciler +
	// on-demand query paths.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, logger: logger.Named("store")}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s.logger.Debug("store opened", zap.String("path", path))
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS providers (
			id              TEXT PRIMARY KEY,
			name            TEXT NOT NULL,
			description     TEXT NOT NULL DEFAULT '',
			version         TEXT NOT NULL DEFAULT '',
			author          TEXT NOT NULL DEFAULT '',
			source_url      TEXT NOT NULL DEFAULT '',
			invocation_spec TEXT NOT NULL DEFAULT '',
			tags            TEXT NOT NULL DEFAULT '[]',
			global_config   TEXT NOT NULL DEFAULT '{}',
			installed_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_providers_name ON providers(name COLLATE NOCASE);

		CREATE TABLE IF NOT EXISTS installations (
			id          TEXT PRIMARY KEY,
			provider_id TEXT NOT NULL,
			agent_id    TEXT NOT NULL,
			is_enabled  INTEGER NOT NULL DEFAULT 1,
			config      TEXT NOT NULL DEFAULT '{}',
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL,

			UNIQUE(provider_id, agent_id)
		);

		CREATE INDEX IF NOT EXISTS idx_installations_provider ON installations(provider_id);
		CREATE INDEX IF NOT EXISTS idx_installations_agent ON installations(agent_id);

		CREATE TABLE IF NOT EXISTS registry_cache (
			registry_name TEXT NOT NULL,
			provider_id   TEXT NOT NULL,
			payload       TEXT NOT NULL,
			fetched_at    TEXT NOT NULL,

			PRIMARY KEY (registry_name, provider_id)
		);

		CREATE TABLE IF NOT EXISTS registry_meta (
			registry_name           TEXT PRIMARY KEY,
			last_refresh_at         TEXT NOT NULL,
			last_refresh_successful INTEGER NOT NULL,
			last_refresh_error      TEXT NOT NULL DEFAULT '',
			cached_count            INTEGER NOT NULL DEFAULT 0
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// isConstraintViolation reports whether err is a SQLite UNIQUE constraint
// failure. modernc.org/sqlite surfaces these as plain error strings.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}
