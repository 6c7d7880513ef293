package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CacheEntry is one remote registry's cached view of one provider.
type CacheEntry struct {
	RegistryName string
	ProviderID   string
	Payload      Provider
	FetchedAt    time.Time
}

// RegistryMeta records the outcome of the most recent refresh attempt for
// one registry, success or failure.
type RegistryMeta struct {
	RegistryName          string
	LastRefreshAt         time.Time
	LastRefreshSuccessful bool
	LastRefreshError      string
	CachedCount           int
}

// ReplaceRegistryCache atomically replaces the cached result set for one
// registry with entries and marks the refresh successful. Replacement is
// always whole-registry, never incremental.
func (s *Store) ReplaceRegistryCache(ctx context.Context, registryName string, entries []Provider, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting cache transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM registry_cache WHERE registry_name = ?`, registryName); err != nil {
		return fmt.Errorf("clearing cache for %q: %w", registryName, err)
	}

	fetchedAt := now.UTC().Format(time.RFC3339)
	for _, p := range entries {
		payload, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding cache payload for %q: %w", p.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO registry_cache (registry_name, provider_id, payload, fetched_at)
			VALUES (?, ?, ?, ?)
		`, registryName, p.ID, string(payload), fetchedAt); err != nil {
			return fmt.Errorf("caching %q for %q: %w", p.ID, registryName, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO registry_meta (registry_name, last_refresh_at, last_refresh_successful, last_refresh_error, cached_count)
		VALUES (?, ?, 1, '', ?)
		ON CONFLICT(registry_name) DO UPDATE SET
			last_refresh_at = excluded.last_refresh_at,
			last_refresh_successful = 1,
			last_refresh_error = '',
			cached_count = excluded.cached_count
	`, registryName, fetchedAt, len(entries)); err != nil {
		return fmt.Errorf("updating registry meta for %q: %w", registryName, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing cache replace for %q: %w", registryName, err)
	}

	s.logger.Debug("registry cache replaced",
		zap.String("registry", registryName), zap.Int("entries", len(entries)))
	return nil
}

// RecordRefreshFailure updates registry metadata after a failed remote fetch
// without touching the cached entries, which keep serving stale reads.
func (s *Store) RecordRefreshFailure(ctx context.Context, registryName string, refreshErr error, now time.Time) error {
	msg := ""
	if refreshErr != nil {
		msg = refreshErr.Error()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO registry_meta (registry_name, last_refresh_at, last_refresh_successful, last_refresh_error, cached_count)
		VALUES (?, ?, 0, ?, (SELECT COUNT(1) FROM registry_cache WHERE registry_name = ?))
		ON CONFLICT(registry_name) DO UPDATE SET
			last_refresh_at = excluded.last_refresh_at,
			last_refresh_successful = 0,
			last_refresh_error = excluded.last_refresh_error
	`, registryName, now.UTC().Format(time.RFC3339), msg, registryName)
	if err != nil {
		return fmt.Errorf("recording refresh failure for %q: %w", registryName, err)
	}
	return nil
}

// ListCacheEntries returns all cached entries for one registry.
func (s *Store) ListCacheEntries(ctx context.Context, registryName string) ([]CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT registry_name, provider_id, payload, fetched_at
		FROM registry_cache
		WHERE registry_name = ?
		ORDER BY provider_id
	`, registryName)
	if err != nil {
		return nil, fmt.Errorf("listing cache for %q: %w", registryName, err)
	}
	defer rows.Close()

	var entries []CacheEntry
	for rows.Next() {
		e, err := scanCacheEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// GetCacheEntry returns the cached entry for (registryName, providerID), or
// nil if the id is not cached.
func (s *Store) GetCacheEntry(ctx context.Context, registryName, providerID string) (*CacheEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT registry_name, provider_id, payload, fetched_at
		FROM registry_cache
		WHERE registry_name = ? AND provider_id = ?
	`, registryName, providerID)

	e, err := scanCacheEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// GetRegistryMeta returns refresh metadata for one registry, or nil if the
// registry has never been refreshed.
func (s *Store) GetRegistryMeta(ctx context.Context, registryName string) (*RegistryMeta, error) {
	var m RegistryMeta
	var refreshAt string
	var successful int

	err := s.db.QueryRowContext(ctx, `
		SELECT registry_name, last_refresh_at, last_refresh_successful, last_refresh_error, cached_count
		FROM registry_meta WHERE registry_name = ?
	`, registryName).Scan(&m.RegistryName, &refreshAt, &successful, &m.LastRefreshError, &m.CachedCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading registry meta for %q: %w", registryName, err)
	}

	m.LastRefreshSuccessful = successful != 0
	if m.LastRefreshAt, err = time.Parse(time.RFC3339, refreshAt); err != nil {
		return nil, fmt.Errorf("parsing last_refresh_at for %q: %w", registryName, err)
	}
	return &m, nil
}

func scanCacheEntry(r rowScanner) (*CacheEntry, error) {
	var e CacheEntry
	var payload, fetchedAt string

	err := r.Scan(&e.RegistryName, &e.ProviderID, &payload, &fetchedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning cache entry: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
		return nil, fmt.Errorf("decoding cache payload for %q: %w", e.ProviderID, err)
	}
	if e.FetchedAt, err = time.Parse(time.RFC3339, fetchedAt); err != nil {
		return nil, fmt.Errorf("parsing fetched_at for %q: %w", e.ProviderID, err)
	}
	return &e, nil
}
