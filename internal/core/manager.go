package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JerrettDavis/McpManager-sub000/internal/core/agent"
	"github.com/JerrettDavis/McpManager-sub000/internal/registry"
	"github.com/JerrettDavis/McpManager-sub000/internal/store"
)

// ErrAgentNotFound is returned when a command names an unknown or absent
// agent.
var ErrAgentNotFound = errors.New("agent not found")

// ErrInvalidConfig is returned when a configuration map fails validation.
// The ConfigIssues are carried alongside by the concrete error.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError wraps the issues found by ValidateConfig.
type ValidationError struct {
	Issues []ConfigIssue
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration (%d issues)", len(e.Issues))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidConfig }

// Manager is the command/query surface an outer layer (CLI, API) talks to.
// Commands return structured results rather than bare booleans so callers
// can render partial success.
type Manager struct {
	store      *store.Store
	registries *registry.Cache
	resolver   *Resolver
	reconciler *Reconciler
	cleaner    *Cleaner
	connectors []agent.Connector
	logger     *zap.Logger
}

// NewManager wires the full business-logic surface.
func NewManager(st *store.Store, registries *registry.Cache, connectors []agent.Connector, syncInterval time.Duration, logger *zap.Logger) *Manager {
	rec := NewReconciler(st, registries, connectors, syncInterval, logger)
	return &Manager{
		store:      st,
		registries: registries,
		resolver:   NewResolver(st, logger),
		reconciler: rec,
		cleaner:    NewCleaner(st, rec, logger),
		connectors: connectors,
		logger:     logger.Named("manager"),
	}
}

// Reconciler exposes the background loop for the process entrypoint.
func (m *Manager) Reconciler() *Reconciler { return m.reconciler }

// Registries exposes the registry cache for search/status commands.
func (m *Manager) Registries() *registry.Cache { return m.registries }

// --- queries ---

// ListProviders returns the catalog in insertion order.
func (m *Manager) ListProviders(ctx context.Context) ([]store.Provider, error) {
	return m.store.ListProviders(ctx)
}

// GetProvider returns one catalog provider, or nil.
func (m *Manager) GetProvider(ctx context.Context, id string) (*store.Provider, error) {
	return m.store.GetProvider(ctx, id)
}

// ListAgents computes the live agent views. Nothing here is persisted;
// presence and declared ids come straight from the connectors.
func (m *Manager) ListAgents() []Agent {
	agents := make([]Agent, 0, len(m.connectors))
	for _, c := range m.connectors {
		agents = append(agents, m.agentView(c))
	}
	return agents
}

// GetAgent returns the live view of one agent.
func (m *Manager) GetAgent(id string) (*Agent, error) {
	c, ok := agent.ByID(m.connectors, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	view := m.agentView(c)
	return &view, nil
}

func (m *Manager) agentView(c agent.Connector) Agent {
	view := Agent{
		ID:          c.ID(),
		DisplayName: c.DisplayName(),
		ConfigPath:  c.ConfigPath(),
		Present:     c.IsPresent(),
	}
	if view.Present {
		view.DeclaredProviderIDs = c.DeclaredProviderIDs()
	}
	return view
}

// ListInstallations returns installation rows, optionally filtered by
// provider and/or agent.
func (m *Manager) ListInstallations(ctx context.Context, filter store.InstallationFilter) ([]store.Installation, error) {
	return m.store.ListInstallations(ctx, filter)
}

// EffectiveConfigFor resolves the configuration a (provider, agent) pair
// runs with.
func (m *Manager) EffectiveConfigFor(ctx context.Context, providerID, agentID string) (map[string]string, error) {
	provider, err := m.store.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, fmt.Errorf("provider %s: %w", providerID, store.ErrProviderNotFound)
	}
	installation, err := m.store.GetInstallationForPair(ctx, providerID, agentID)
	if err != nil {
		return nil, err
	}
	return EffectiveConfig(provider, installation), nil
}

// --- provider commands ---

// InstallProvider adds a provider to the catalog. The id must be free;
// install is never an upsert.
func (m *Manager) InstallProvider(ctx context.Context, p *store.Provider) error {
	if p.GlobalConfig != nil {
		if issues := ValidateConfig(p.GlobalConfig); len(issues) > 0 {
			return &ValidationError{Issues: issues}
		}
	}
	if p.InstalledAt.IsZero() {
		p.InstalledAt = time.Now()
	}
	if err := m.store.InsertProvider(ctx, p); err != nil {
		return err
	}
	m.logger.Info("provider installed", zap.String("provider", p.ID))
	return nil
}

// UninstallProvider removes a provider and cascades its installations.
// The agent files that still declare it are left for their owners; the
// next reconciliation pass will re-discover the id if it is still there.
func (m *Manager) UninstallProvider(ctx context.Context, id string) (bool, error) {
	removed, err := m.store.RemoveProvider(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		m.logger.Info("provider uninstalled", zap.String("provider", id))
	}
	return removed, nil
}

// UpdateGlobalConfig replaces a provider's global default and propagates
// it to every installation still tracking the old default. Customized
// overrides are untouched.
func (m *Manager) UpdateGlobalConfig(ctx context.Context, providerID string, newGlobal map[string]string) (*PropagationResult, error) {
	if issues := ValidateConfig(newGlobal); len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}

	provider, err := m.store.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, fmt.Errorf("provider %s: %w", providerID, store.ErrProviderNotFound)
	}

	oldGlobal := provider.GlobalConfig
	provider.GlobalConfig = newGlobal
	if err := m.store.UpdateProvider(ctx, provider); err != nil {
		return nil, err
	}

	return m.resolver.PropagateGlobalUpdate(ctx, providerID, oldGlobal, newGlobal)
}

// UpdateOverride replaces an installation's agent-specific override. The
// installation must exist; unknown ids are an explicit error.
func (m *Manager) UpdateOverride(ctx context.Context, installationID string, config map[string]string) error {
	if issues := ValidateConfig(config); len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return m.store.UpdateInstallationConfig(ctx, installationID, config)
}

// --- provider-for-agent commands ---

// AddProviderToAgent writes the provider into the agent's config file and
// records the installation. An existing installation is already the
// desired state, not a failure.
func (m *Manager) AddProviderToAgent(ctx context.Context, providerID, agentID string) (*store.Installation, error) {
	provider, err := m.store.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, fmt.Errorf("provider %s: %w", providerID, store.ErrProviderNotFound)
	}

	conn, ok := agent.ByID(m.connectors, agentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}

	installation, err := m.store.GetInstallationForPair(ctx, providerID, agentID)
	if err != nil {
		return nil, err
	}

	if err := conn.AddProvider(agent.ProviderSpec{
		ID:             providerID,
		InvocationSpec: provider.InvocationSpec,
		Config:         EffectiveConfig(provider, installation),
	}); err != nil {
		return nil, fmt.Errorf("writing %s config: %w", agentID, err)
	}

	if installation != nil {
		return installation, nil
	}

	now := time.Now()
	installation = &store.Installation{
		ID:         uuid.NewString(),
		ProviderID: providerID,
		AgentID:    agentID,
		IsEnabled:  true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.CreateInstallation(ctx, installation); err != nil {
		if errors.Is(err, store.ErrInstallationExists) {
			// Concurrent sync beat us to the row; read it back.
			return m.store.GetInstallationForPair(ctx, providerID, agentID)
		}
		return nil, err
	}
	m.logger.Info("provider added to agent",
		zap.String("provider", providerID), zap.String("agent", agentID))
	return installation, nil
}

// RemoveProviderFromAgent removes the provider from the agent's config
// file and deletes the installation row. Reports whether anything changed.
func (m *Manager) RemoveProviderFromAgent(ctx context.Context, providerID, agentID string) (bool, error) {
	conn, ok := agent.ByID(m.connectors, agentID)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}

	removedFromFile, err := conn.RemoveProvider(providerID)
	if err != nil {
		return false, fmt.Errorf("writing %s config: %w", agentID, err)
	}

	installation, err := m.store.GetInstallationForPair(ctx, providerID, agentID)
	if err != nil {
		return false, err
	}
	removedRow := false
	if installation != nil {
		removedRow, err = m.store.DeleteInstallation(ctx, installation.ID)
		if err != nil {
			return false, err
		}
	}

	changed := removedFromFile || removedRow
	if changed {
		m.logger.Info("provider removed from agent",
			zap.String("provider", providerID), zap.String("agent", agentID))
	}
	return changed, nil
}

// SetProviderEnabledForAgent toggles the provider in the agent's file and
// mirrors the state onto the installation row.
func (m *Manager) SetProviderEnabledForAgent(ctx context.Context, providerID, agentID string, enabled bool) error {
	conn, ok := agent.ByID(m.connectors, agentID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}

	// Presence-encoded dialects drop the entry on disable; re-enabling
	// needs the full descriptor written back.
	if enabled {
		provider, err := m.store.GetProvider(ctx, providerID)
		if err != nil {
			return err
		}
		if provider == nil {
			return fmt.Errorf("provider %s: %w", providerID, store.ErrProviderNotFound)
		}
		installation, err := m.store.GetInstallationForPair(ctx, providerID, agentID)
		if err != nil {
			return err
		}
		found, err := conn.SetEnabled(providerID, true)
		if err != nil {
			return fmt.Errorf("writing %s config: %w", agentID, err)
		}
		if !found {
			if err := conn.AddProvider(agent.ProviderSpec{
				ID:             providerID,
				InvocationSpec: provider.InvocationSpec,
				Config:         EffectiveConfig(provider, installation),
			}); err != nil {
				return fmt.Errorf("writing %s config: %w", agentID, err)
			}
		}
	} else {
		if _, err := conn.SetEnabled(providerID, false); err != nil {
			return fmt.Errorf("writing %s config: %w", agentID, err)
		}
	}

	installation, err := m.store.GetInstallationForPair(ctx, providerID, agentID)
	if err != nil {
		return err
	}
	if installation == nil {
		return nil
	}
	if err := m.store.SetInstallationEnabled(ctx, installation.ID, enabled); err != nil {
		return err
	}
	m.logger.Info("provider toggled",
		zap.String("provider", providerID), zap.String("agent", agentID),
		zap.Bool("enabled", enabled))
	return nil
}

// --- maintenance commands ---

// SyncNow runs a full reconciliation pass synchronously.
func (m *Manager) SyncNow(ctx context.Context) *SyncSummary {
	return m.reconciler.SyncAll(ctx)
}

// SyncAgentNow reconciles a single agent synchronously, e.g. before
// rendering its detail view.
func (m *Manager) SyncAgentNow(ctx context.Context, agentID string) (*AgentSyncResult, error) {
	conn, ok := agent.ByID(m.connectors, agentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	result := m.reconciler.SyncAgent(ctx, conn)
	return &result, nil
}

// FindDuplicates surfaces duplicate-name provider groups.
func (m *Manager) FindDuplicates(ctx context.Context) ([][]store.Provider, error) {
	return m.cleaner.FindDuplicates(ctx)
}

// CleanupNow removes duplicate providers and orphaned installations.
func (m *Manager) CleanupNow(ctx context.Context) (*CleanupResult, error) {
	result, err := m.cleaner.RemoveDuplicates(ctx)
	if err != nil {
		return nil, err
	}
	orphans, err := m.cleaner.RemoveOrphans(ctx)
	if err != nil {
		result.Errors = append(result.Errors, err)
		return result, nil
	}
	result.OrphansRemoved = orphans
	return result, nil
}

// ForceResync creates installation rows for declared-but-untracked ids
// without a full reconciliation pass.
func (m *Manager) ForceResync(ctx context.Context) (*SyncSummary, error) {
	return m.cleaner.ForceResync(ctx)
}
