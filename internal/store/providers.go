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

// Catalog errors.
var (
	ErrProviderExists   = errors.New("provider id already exists")
	ErrProviderNotFound = errors.New("provider not found")
)

// Provider is an installed capability provider and its shared default
// configuration. The id is immutable once inserted.
type Provider struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	Version        string            `json:"version,omitempty"`
	Author         string            `json:"author,omitempty"`
	SourceURL      string            `json:"sourceUrl,omitempty"`
	InvocationSpec string            `json:"invocationSpec,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
	GlobalConfig   map[string]string `json:"globalConfig,omitempty"`
	InstalledAt    time.Time         `json:"installedAt"`
}

// ListProviders returns all catalog providers ordered by installation time,
// oldest first. Insertion order is what duplicate cleanup keys on.
func (s *Store) ListProviders(ctx context.Context) ([]Provider, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, version, author, source_url,
		       invocation_spec, tags, global_config, installed_at
		FROM providers
		ORDER BY installed_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing providers: %w", err)
	}
	defer rows.Close()

	var providers []Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		providers = append(providers, *p)
	}
	return providers, rows.Err()
}

// GetProvider returns the provider with the given id, or nil if absent.
// Lookup is exact-match and case-sensitive.
func (s *Store) GetProvider(ctx context.Context, id string) (*Provider, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, version, author, source_url,
		       invocation_spec, tags, global_config, installed_at
		FROM providers
		WHERE id = ?
	`, id)

	p, err := scanProvider(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// ProviderExists reports whether a provider with the exact id exists.
func (s *Store) ProviderExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM providers WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking provider %q: %w", id, err)
	}
	return n > 0, nil
}

// FindProviderByName returns the first provider whose name matches
// case-insensitively, or nil. This is the reconciler's identity-resolution
// fallback only; catalog operations themselves are keyed by id.
func (s *Store) FindProviderByName(ctx context.Context, name string) (*Provider, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, version, author, source_url,
		       invocation_spec, tags, global_config, installed_at
		FROM providers
		WHERE name = ? COLLATE NOCASE
		ORDER BY installed_at, id
		LIMIT 1
	`, name)

	p, err := scanProvider(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// InsertProvider inserts a new provider. It is never an upsert: if the id is
// already taken, ErrProviderExists is returned and the existing row is left
// untouched. The insert attempt itself is the atomicity point; callers that
// hit ErrProviderExists re-read the existing row rather than retrying.
func (s *Store) InsertProvider(ctx context.Context, p *Provider) error {
	tags, err := json.Marshal(emptyIfNilSlice(p.Tags))
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}
	config, err := json.Marshal(emptyIfNilMap(p.GlobalConfig))
	if err != nil {
		return fmt.Errorf("encoding global config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO providers (id, name, description, version, author,
			source_url, invocation_spec, tags, global_config, installed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Description, p.Version, p.Author, p.SourceURL,
		p.InvocationSpec, string(tags), string(config),
		p.InstalledAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isConstraintViolation(err) {
			return ErrProviderExists
		}
		return fmt.Errorf("inserting provider %q: %w", p.ID, err)
	}

	s.logger.Debug("provider inserted", zap.String("id", p.ID), zap.String("name", p.Name))
	return nil
}

// UpdateProvider updates the mutable fields of an existing provider.
// The id and installed_at never change.
func (s *Store) UpdateProvider(ctx context.Context, p *Provider) error {
	tags, err := json.Marshal(emptyIfNilSlice(p.Tags))
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}
	config, err := json.Marshal(emptyIfNilMap(p.GlobalConfig))
	if err != nil {
		return fmt.Errorf("encoding global config: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE providers
		SET name = ?, description = ?, version = ?, author = ?,
		    source_url = ?, invocation_spec = ?, tags = ?, global_config = ?
		WHERE id = ?
	`, p.Name, p.Description, p.Version, p.Author, p.SourceURL,
		p.InvocationSpec, string(tags), string(config), p.ID)
	if err != nil {
		return fmt.Errorf("updating provider %q: %w", p.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating provider %q: %w", p.ID, err)
	}
	if n == 0 {
		return ErrProviderNotFound
	}
	return nil
}

// RemoveProvider deletes a provider and cascades to its installations.
// Returns false if the id was not present.
func (s *Store) RemoveProvider(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM installations WHERE provider_id = ?`, id); err != nil {
		return false, fmt.Errorf("removing installations of %q: %w", id, err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM providers WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("removing provider %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("removing provider %q: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing removal of %q: %w", id, err)
	}

	if n > 0 {
		s.logger.Debug("provider removed", zap.String("id", id))
	}
	return n > 0, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProvider(r rowScanner) (*Provider, error) {
	var p Provider
	var tags, config, installedAt string

	err := r.Scan(&p.ID, &p.Name, &p.Description, &p.Version, &p.Author,
		&p.SourceURL, &p.InvocationSpec, &tags, &config, &installedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning provider: %w", err)
	}

	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags for %q: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(config), &p.GlobalConfig); err != nil {
		return nil, fmt.Errorf("decoding global config for %q: %w", p.ID, err)
	}
	p.InstalledAt, err = time.Parse(time.RFC3339, installedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing installed_at for %q: %w", p.ID, err)
	}
	return &p, nil
}

func emptyIfNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyIfNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
