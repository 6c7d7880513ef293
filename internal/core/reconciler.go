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

const (
	// DefaultSyncInterval paces the background loop when config does not
	// override it.
	DefaultSyncInterval = 30 * time.Minute

	// initialSyncDelay gives the process a moment to settle before the
	// first background pass.
	initialSyncDelay = 10 * time.Second
)

// autoDiscoveredTag marks providers the reconciler synthesized from an
// agent file rather than a registry or an explicit install.
const autoDiscoveredTag = "auto-discovered"

// Reconciler converges agent-declared provider state with the catalog and
// the installation store. It runs per agent, independently: one agent's
// failure never aborts the others, and within an agent one declared id's
// failure skips only that id. Re-running against unchanged agent files is
// a no-op.
type Reconciler struct {
	store      *store.Store
	registries *registry.Cache
	connectors []agent.Connector
	interval   time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewReconciler wires a Reconciler over the given connectors. interval <= 0
// selects DefaultSyncInterval.
func NewReconciler(st *store.Store, registries *registry.Cache, connectors []agent.Connector, interval time.Duration, logger *zap.Logger) *Reconciler {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &Reconciler{
		store:      st,
		registries: registries,
		connectors: connectors,
		interval:   interval,
		logger:     logger.Named("reconciler"),
		now:        time.Now,
	}
}

// Run executes the background loop: an initial short delay, then a full
// pass every interval until ctx is cancelled. Cancellation is honored
// between agents; an in-flight single-agent pass finishes to avoid partial
// file writes.
func (r *Reconciler) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(initialSyncDelay):
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		summary := r.SyncAll(ctx)
		r.logger.Info("reconciliation pass finished",
			zap.Int("agents", len(summary.Agents)),
			zap.Int("providersCreated", summary.ProvidersCreated()),
			zap.Int("installationsCreated", summary.InstallationsCreated()),
			zap.Int("errors", len(summary.Errors())))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SyncAll reconciles every present agent. The same code path serves the
// background loop and on-demand invocations; there is no separate fast
// path.
func (r *Reconciler) SyncAll(ctx context.Context) *SyncSummary {
	summary := &SyncSummary{StartedAt: r.now()}

	for _, conn := range r.connectors {
		if ctx.Err() != nil {
			break
		}
		if !conn.IsPresent() {
			continue
		}
		summary.Agents = append(summary.Agents, r.SyncAgent(ctx, conn))
	}

	summary.FinishedAt = r.now()
	return summary
}

// SyncAgent reconciles a single agent's declared providers against the
// catalog and installation store.
func (r *Reconciler) SyncAgent(ctx context.Context, conn agent.Connector) AgentSyncResult {
	result := AgentSyncResult{AgentID: conn.ID()}

	ids := conn.DeclaredProviderIDs()
	result.DeclaredIDs = len(ids)
	if len(ids) == 0 {
		return result
	}

	for _, id := range ids {
		actualID, created, err := r.resolveIdentity(ctx, id, conn.ID())
		if err != nil {
			r.logger.Warn("resolving declared provider",
				zap.String("agent", conn.ID()), zap.String("id", id), zap.Error(err))
			result.Errors = append(result.Errors,
				fmt.Errorf("agent %s, provider %s: %w", conn.ID(), id, err))
			continue
		}
		if created {
			result.ProvidersCreated++
		}

		instCreated, err := r.ensureInstallation(ctx, actualID, conn.ID())
		if err != nil {
			r.logger.Warn("ensuring installation",
				zap.String("agent", conn.ID()), zap.String("provider", actualID), zap.Error(err))
			result.Errors = append(result.Errors,
				fmt.Errorf("agent %s, provider %s: %w", conn.ID(), actualID, err))
			continue
		}
		if instCreated {
			result.InstallationsCreated++
		}
	}

	return result
}

// resolveIdentity maps an agent-declared id onto a catalog provider,
// creating one when necessary. The agent file is the identity source of
// truth: a provider fetched from a registry under a different id is
// re-keyed to the declared id before insertion. Returns the catalog id and
// whether a provider was created.
func (r *Reconciler) resolveIdentity(ctx context.Context, declaredID, agentID string) (string, bool, error) {
	exists, err := r.store.ProviderExists(ctx, declaredID)
	if err != nil {
		return "", false, err
	}
	if exists {
		return declaredID, false, nil
	}

	// A prior run may have installed this logical provider under a
	// registry-assigned id while the agent file keeps its human-chosen key.
	if byName, err := r.store.FindProviderByName(ctx, declaredID); err != nil {
		return "", false, err
	} else if byName != nil {
		return byName.ID, false, nil
	}

	fetched, err := r.registries.Resolve(ctx, declaredID)
	if err != nil {
		return "", false, err
	}

	if fetched == nil {
		return r.insertProvider(ctx, r.synthesizeProvider(declaredID, agentID))
	}

	// Another pass may have just inserted the same logical provider under
	// its own name; re-check before inserting and discard the fetched copy
	// on a hit.
	if byName, err := r.store.FindProviderByName(ctx, fetched.Name); err != nil {
		return "", false, err
	} else if byName != nil {
		return byName.ID, false, nil
	}

	p := *fetched
	p.ID = declaredID
	p.InstalledAt = r.now()
	return r.insertProvider(ctx, &p)
}

// insertProvider attempts an atomic insert and reads back on conflict, so
// two concurrent resolutions of the same id converge on one row.
func (r *Reconciler) insertProvider(ctx context.Context, p *store.Provider) (string, bool, error) {
	err := r.store.InsertProvider(ctx, p)
	if err == nil {
		return p.ID, true, nil
	}
	if errors.Is(err, store.ErrProviderExists) {
		return p.ID, false, nil
	}
	return "", false, err
}

func (r *Reconciler) synthesizeProvider(declaredID, agentID string) *store.Provider {
	return &store.Provider{
		ID:          declaredID,
		Name:        declaredID,
		Tags:        []string{autoDiscoveredTag, agentID},
		InstalledAt: r.now(),
	}
}

// ensureInstallation creates the (provider, agent) installation row if it
// does not exist. The store's unique constraint is the only arbiter:
// insert, and treat a conflict as already in the desired state.
func (r *Reconciler) ensureInstallation(ctx context.Context, providerID, agentID string) (bool, error) {
	now := r.now()
	err := r.store.CreateInstallation(ctx, &store.Installation{
		ID:         uuid.NewString(),
		ProviderID: providerID,
		AgentID:    agentID,
		IsEnabled:  true,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err == nil {
		return true, nil
	}
	if errors.Is(err, store.ErrInstallationExists) {
		return false, nil
	}
	return false, err
}
