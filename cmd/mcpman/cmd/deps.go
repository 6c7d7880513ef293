package cmd

import (
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/JerrettDavis/McpManager-sub000/internal/core"
	"github.com/JerrettDavis/McpManager-sub000/internal/core/agent"
	"github.com/JerrettDavis/McpManager-sub000/internal/registry"
	"github.com/JerrettDavis/McpManager-sub000/internal/store"
)

// deps holds shared dependencies for CLI commands.
type deps struct {
	config  *core.ConfigManager
	cfg     *core.Config
	store   *store.Store
	manager *core.Manager
	logger  *zap.Logger
}

// newDeps creates shared dependencies. Called lazily by commands that need them.
func newDeps() (*deps, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	config, err := core.NewConfigManager()
	if err != nil {
		return nil, fmt.Errorf("initializing config: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	st, err := store.Open(config.DatabasePath(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	sources := make([]registry.Source, 0, len(cfg.Registries))
	for _, ref := range cfg.Registries {
		sources = append(sources, registry.NewClient(ref.Name, ref.URL))
	}
	cache := registry.NewCache(st, sources, registry.DefaultMaxAge, logger)

	connectors := enabledConnectors(cfg, logger)
	interval := time.Duration(cfg.Settings.SyncIntervalMinutes) * time.Minute

	return &deps{
		config:  config,
		cfg:     cfg,
		store:   st,
		manager: core.NewManager(st, cache, connectors, interval, logger),
		logger:  logger,
	}, nil
}

// enabledConnectors filters the built-in connectors against the config's
// disabled-agents list.
func enabledConnectors(cfg *core.Config, logger *zap.Logger) []agent.Connector {
	all := agent.Defaults(logger)
	if len(cfg.Settings.DisabledAgents) == 0 {
		return all
	}
	var enabled []agent.Connector
	for _, c := range all {
		if !slices.Contains(cfg.Settings.DisabledAgents, c.ID()) {
			enabled = append(enabled, c)
		}
	}
	return enabled
}

func (d *deps) close() {
	if err := d.store.Close(); err != nil {
		d.logger.Warn("closing store", zap.Error(err))
	}
	_ = d.logger.Sync()
}
