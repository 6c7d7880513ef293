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

// Installation errors.
var (
	// ErrInstallationExists signals that the (provider, agent) pair is
	// already installed. Callers treat this as "already in desired state".
	ErrInstallationExists   = errors.New("installation already exists for provider and agent")
	ErrInstallationNotFound = errors.New("installation not found")
)

// Installation links one provider to one agent. Config is the agent-specific
// override; an empty map means the installation inherits the provider's
// global config.
type Installation struct {
	ID         string            `json:"id"`
	ProviderID string            `json:"providerId"`
	AgentID    string            `json:"agentId"`
	IsEnabled  bool              `json:"isEnabled"`
	Config     map[string]string `json:"config,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// CreateInstallation inserts a new installation row. The UNIQUE
// (provider_id, agent_id) constraint is the only duplicate guard; two
// concurrent creates resolve to one row and one ErrInstallationExists.
func (s *Store) CreateInstallation(ctx context.Context, inst *Installation) error {
	config, err := json.Marshal(emptyIfNilMap(inst.Config))
	if err != nil {
		return fmt.Errorf("encoding installation config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO installations (id, provider_id, agent_id, is_enabled, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, inst.ID, inst.ProviderID, inst.AgentID, boolToInt(inst.IsEnabled),
		string(config),
		inst.CreatedAt.UTC().Format(time.RFC3339),
		inst.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isConstraintViolation(err) {
			return ErrInstallationExists
		}
		return fmt.Errorf("inserting installation %s/%s: %w", inst.ProviderID, inst.AgentID, err)
	}

	s.logger.Debug("installation created",
		zap.String("provider", inst.ProviderID), zap.String("agent", inst.AgentID))
	return nil
}

// GetInstallation returns the installation with the given id, or nil.
func (s *Store) GetInstallation(ctx context.Context, id string) (*Installation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, provider_id, agent_id, is_enabled, config, created_at, updated_at
		FROM installations WHERE id = ?
	`, id)

	inst, err := scanInstallation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return inst, err
}

// GetInstallationForPair returns the installation for (providerID, agentID),
// or nil if the pair is not installed.
func (s *Store) GetInstallationForPair(ctx context.Context, providerID, agentID string) (*Installation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, provider_id, agent_id, is_enabled, config, created_at, updated_at
		FROM installations WHERE provider_id = ? AND agent_id = ?
	`, providerID, agentID)

	inst, err := scanInstallation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return inst, err
}

// InstallationFilter narrows ListInstallations. Nil fields match everything.
type InstallationFilter struct {
	ProviderID *string
	AgentID    *string
}

// ListInstallations returns installations matching the filter, ordered by
// creation time.
func (s *Store) ListInstallations(ctx context.Context, filter InstallationFilter) ([]Installation, error) {
	query := `
		SELECT id, provider_id, agent_id, is_enabled, config, created_at, updated_at
		FROM installations
	`
	var conds []string
	var args []any
	if filter.ProviderID != nil {
		conds = append(conds, "provider_id = ?")
		args = append(args, *filter.ProviderID)
	}
	if filter.AgentID != nil {
		conds = append(conds, "agent_id = ?")
		args = append(args, *filter.AgentID)
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing installations: %w", err)
	}
	defer rows.Close()

	var installations []Installation
	for rows.Next() {
		inst, err := scanInstallation(rows)
		if err != nil {
			return nil, err
		}
		installations = append(installations, *inst)
	}
	return installations, rows.Err()
}

// SetInstallationEnabled flips the enabled flag. Returns
// ErrInstallationNotFound if the id does not exist.
func (s *Store) SetInstallationEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE installations SET is_enabled = ?, updated_at = ?
		WHERE id = ? AND is_enabled != ?
	`, boolToInt(enabled), time.Now().UTC().Format(time.RFC3339), id, boolToInt(enabled))
	if err != nil {
		return fmt.Errorf("updating installation %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating installation %q: %w", id, err)
	}
	if n == 0 {
		// Either missing or already in the requested state; distinguish.
		inst, err := s.GetInstallation(ctx, id)
		if err != nil {
			return err
		}
		if inst == nil {
			return ErrInstallationNotFound
		}
	}
	return nil
}

// UpdateInstallationConfig replaces the agent-specific override config.
func (s *Store) UpdateInstallationConfig(ctx context.Context, id string, config map[string]string) error {
	encoded, err := json.Marshal(emptyIfNilMap(config))
	if err != nil {
		return fmt.Errorf("encoding installation config: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE installations SET config = ?, updated_at = ? WHERE id = ?
	`, string(encoded), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating installation %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating installation %q: %w", id, err)
	}
	if n == 0 {
		return ErrInstallationNotFound
	}
	return nil
}

// DeleteInstallation removes an installation row. Returns false if the id
// was not present.
func (s *Store) DeleteInstallation(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM installations WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting installation %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting installation %q: %w", id, err)
	}
	return n > 0, nil
}

// DeleteOrphanedInstallations removes installations whose provider no longer
// exists in the catalog and returns the ids removed.
func (s *Store) DeleteOrphanedInstallations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM installations
		WHERE provider_id NOT IN (SELECT id FROM providers)
	`)
	if err != nil {
		return nil, fmt.Errorf("finding orphaned installations: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning orphan id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM installations
		WHERE provider_id NOT IN (SELECT id FROM providers)
	`); err != nil {
		return nil, fmt.Errorf("deleting orphaned installations: %w", err)
	}

	s.logger.Info("orphaned installations removed", zap.Int("count", len(ids)))
	return ids, nil
}

func scanInstallation(r rowScanner) (*Installation, error) {
	var inst Installation
	var enabled int
	var config, createdAt, updatedAt string

	err := r.Scan(&inst.ID, &inst.ProviderID, &inst.AgentID, &enabled,
		&config, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning installation: %w", err)
	}

	inst.IsEnabled = enabled != 0
	if err := json.Unmarshal([]byte(config), &inst.Config); err != nil {
		return nil, fmt.Errorf("decoding config for installation %q: %w", inst.ID, err)
	}
	if inst.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for %q: %w", inst.ID, err)
	}
	if inst.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at for %q: %w", inst.ID, err)
	}
	return &inst, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
