package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JerrettDavis/McpManager-sub000/internal/store"
)

// Cleaner implements the operator-facing consistency utilities: duplicate
// detection and removal, orphan removal, and force re-sync. None of these
// run automatically.
type Cleaner struct {
	store      *store.Store
	reconciler *Reconciler
	logger     *zap.Logger
}

// NewCleaner creates a Cleaner. The reconciler is borrowed for force
// re-sync identity resolution.
func NewCleaner(st *store.Store, rec *Reconciler, logger *zap.Logger) *Cleaner {
	return &Cleaner{store: st, reconciler: rec, logger: logger.Named("cleanup")}
}

// FindDuplicates groups catalog providers by case-insensitive name and
// returns every group with more than one member. Groups preserve catalog
// insertion order.
func (c *Cleaner) FindDuplicates(ctx context.Context) ([][]store.Provider, error) {
	providers, err := c.store.ListProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing providers: %w", err)
	}

	groups := make(map[string][]store.Provider)
	var order []string
	for _, p := range providers {
		key := strings.ToLower(p.Name)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], p)
	}

	var duplicates [][]store.Provider
	for _, key := range order {
		if len(groups[key]) > 1 {
			duplicates = append(duplicates, groups[key])
		}
	}
	return duplicates, nil
}

// RemoveDuplicates resolves every duplicate group down to one provider.
// Entries referenced by an installation are preferred; when several are
// referenced, or none, the oldest by insertion order survives. Removal
// cascades the losers' installations.
func (c *Cleaner) RemoveDuplicates(ctx context.Context) (*CleanupResult, error) {
	duplicates, err := c.FindDuplicates(ctx)
	if err != nil {
		return nil, err
	}

	result := &CleanupResult{}
	for _, group := range duplicates {
		keep, err := c.pickSurvivor(ctx, group)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		for _, p := range group {
			if p.ID == keep {
				continue
			}
			if _, err := c.store.RemoveProvider(ctx, p.ID); err != nil {
				result.Errors = append(result.Errors,
					fmt.Errorf("removing duplicate %s: %w", p.ID, err))
				continue
			}
			c.logger.Info("removed duplicate provider",
				zap.String("removed", p.ID), zap.String("kept", keep))
			result.DuplicatesRemoved = append(result.DuplicatesRemoved, p.ID)
		}
	}
	return result, nil
}

// pickSurvivor chooses which member of a duplicate group to keep. The
// group arrives in insertion order.
func (c *Cleaner) pickSurvivor(ctx context.Context, group []store.Provider) (string, error) {
	var referenced []string
	for _, p := range group {
		installations, err := c.store.ListInstallations(ctx, store.InstallationFilter{
			ProviderID: &p.ID,
		})
		if err != nil {
			return "", fmt.Errorf("listing installations for %s: %w", p.ID, err)
		}
		if len(installations) > 0 {
			referenced = append(referenced, p.ID)
		}
	}

	if len(referenced) == 1 {
		return referenced[0], nil
	}
	if len(referenced) > 1 {
		return referenced[0], nil
	}
	return group[0].ID, nil
}

// RemoveOrphans deletes every installation whose provider is gone from the
// catalog and returns the removed installation ids.
func (c *Cleaner) RemoveOrphans(ctx context.Context) ([]string, error) {
	removed, err := c.store.DeleteOrphanedInstallations(ctx)
	if err != nil {
		return nil, fmt.Errorf("removing orphaned installations: %w", err)
	}
	if len(removed) > 0 {
		c.logger.Info("removed orphaned installations", zap.Int("count", len(removed)))
	}
	return removed, nil
}

// ForceResync creates installation rows for declared-but-untracked ids on
// every present agent, using the reconciler's identity resolution but
// without a full reconciliation pass.
func (c *Cleaner) ForceResync(ctx context.Context) (*SyncSummary, error) {
	summary := &SyncSummary{StartedAt: c.reconciler.now()}

	for _, conn := range c.reconciler.connectors {
		if ctx.Err() != nil {
			break
		}
		if !conn.IsPresent() {
			continue
		}

		result := AgentSyncResult{AgentID: conn.ID()}
		for _, id := range conn.DeclaredProviderIDs() {
			result.DeclaredIDs++

			existing, err := c.store.GetInstallationForPair(ctx, id, conn.ID())
			if err != nil {
				result.Errors = append(result.Errors, err)
				continue
			}
			if existing != nil {
				continue
			}

			actualID, created, err := c.reconciler.resolveIdentity(ctx, id, conn.ID())
			if err != nil {
				result.Errors = append(result.Errors,
					fmt.Errorf("agent %s, provider %s: %w", conn.ID(), id, err))
				continue
			}
			if created {
				result.ProvidersCreated++
			}
			instCreated, err := c.reconciler.ensureInstallation(ctx, actualID, conn.ID())
			if err != nil {
				result.Errors = append(result.Errors,
					fmt.Errorf("agent %s, provider %s: %w", conn.ID(), actualID, err))
				continue
			}
			if instCreated {
				result.InstallationsCreated++
			}
		}
		summary.Agents = append(summary.Agents, result)
	}

	summary.FinishedAt = c.reconciler.now()
	return summary, nil
}
