package core

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"go.uber.org/zap"

	"github.com/JerrettDavis/McpManager-sub000/internal/store"
)

// EffectiveConfig returns the configuration an agent should run a provider
// with: the installation's override when it has one, otherwise the
// provider's global default. An empty override means "inherit global".
func EffectiveConfig(provider *store.Provider, installation *store.Installation) map[string]string {
	if installation != nil && len(installation.Config) > 0 {
		return installation.Config
	}
	if provider == nil {
		return nil
	}
	return provider.GlobalConfig
}

// MatchesGlobal reports whether an installation's override structurally
// equals the provider's global config: same key set, same value per key,
// order irrelevant. A tracking override matches; a diverged one does not.
func MatchesGlobal(provider *store.Provider, installation *store.Installation) bool {
	return configEqual(installation.Config, provider.GlobalConfig)
}

// ValidateConfig checks a configuration map and returns every problem found.
// An empty result means the map is valid. Callers validate before writing;
// validation never interrupts a write in progress.
func ValidateConfig(cfg map[string]string) []ConfigIssue {
	if cfg == nil {
		return []ConfigIssue{{Problem: "configuration is missing"}}
	}

	var issues []ConfigIssue
	for k, v := range cfg {
		if strings.TrimSpace(k) == "" {
			issues = append(issues, ConfigIssue{Key: k, Problem: "empty key"})
			continue
		}
		if v == "" {
			issues = append(issues, ConfigIssue{Key: k, Problem: "empty value"})
		}
	}
	return issues
}

func configEqual(a, b map[string]string) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return maps.Equal(a, b)
}

// Resolver propagates provider global-config changes to tracking
// installations.
type Resolver struct {
	store  *store.Store
	logger *zap.Logger
}

// NewResolver creates a Resolver backed by the given store.
func NewResolver(st *store.Store, logger *zap.Logger) *Resolver {
	return &Resolver{store: st, logger: logger.Named("resolver")}
}

// PropagateGlobalUpdate rewrites the override of every installation of
// providerID whose override structurally equals oldGlobal, replacing it
// with newGlobal. Installations with a customized override are left
// untouched. A failure on one installation does not block the others.
func (r *Resolver) PropagateGlobalUpdate(ctx context.Context, providerID string, oldGlobal, newGlobal map[string]string) (*PropagationResult, error) {
	installations, err := r.store.ListInstallations(ctx, store.InstallationFilter{
		ProviderID: &providerID,
	})
	if err != nil {
		return nil, fmt.Errorf("listing installations for %s: %w", providerID, err)
	}

	result := &PropagationResult{}
	for _, inst := range installations {
		// Empty overrides inherit the global and follow the change for free.
		if len(inst.Config) == 0 {
			continue
		}
		if !configEqual(inst.Config, oldGlobal) {
			continue
		}
		if err := r.store.UpdateInstallationConfig(ctx, inst.ID, newGlobal); err != nil {
			r.logger.Warn("propagating global config",
				zap.String("installation", inst.ID), zap.Error(err))
			result.Errors = append(result.Errors,
				fmt.Errorf("installation %s: %w", inst.ID, err))
			continue
		}
		result.UpdatedInstallationIDs = append(result.UpdatedInstallationIDs, inst.ID)
	}

	r.logger.Debug("global config propagated",
		zap.String("provider", providerID),
		zap.Int("updated", len(result.UpdatedInstallationIDs)),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}
