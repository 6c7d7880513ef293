// Package core provides the business logic for MCP Manager.
// It has zero UI dependencies and is independently testable.
package core

import "time"

// Config represents the MCP Manager configuration stored at
// ~/.mcpman/config.json.
type Config struct {
	Registries []RegistryRef `json:"registries"`
	Settings   Settings      `json:"settings"`
}

// RegistryRef names one remote provider registry. Order matters: the
// reconciler resolves identities against registries in listed order.
type RegistryRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Settings holds user preferences.
type Settings struct {
	SyncIntervalMinutes int      `json:"syncIntervalMinutes"`
	DatabasePath        string   `json:"databasePath,omitempty"`
	DisabledAgents      []string `json:"disabledAgents,omitempty"`
}

// Agent is the live view of one detected client application. Agents are
// never persisted; every field is recomputed from the connector on each
// query.
type Agent struct {
	ID                  string   `json:"id"`
	DisplayName         string   `json:"displayName"`
	ConfigPath          string   `json:"configPath"`
	Present             bool     `json:"present"`
	DeclaredProviderIDs []string `json:"declaredProviderIds"`
}

// AgentSyncResult reports one agent's reconciliation outcome.
type AgentSyncResult struct {
	AgentID              string
	DeclaredIDs          int
	ProvidersCreated     int
	InstallationsCreated int
	Errors               []error
}

// SyncSummary aggregates a full reconciliation pass.
type SyncSummary struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Agents     []AgentSyncResult
}

// ProvidersCreated totals new catalog entries across all agents.
func (s *SyncSummary) ProvidersCreated() int {
	n := 0
	for _, a := range s.Agents {
		n += a.ProvidersCreated
	}
	return n
}

// InstallationsCreated totals new installation rows across all agents.
func (s *SyncSummary) InstallationsCreated() int {
	n := 0
	for _, a := range s.Agents {
		n += a.InstallationsCreated
	}
	return n
}

// Errors collects every per-agent error in the summary.
func (s *SyncSummary) Errors() []error {
	var errs []error
	for _, a := range s.Agents {
		errs = append(errs, a.Errors...)
	}
	return errs
}

// PropagationResult reports a global-config propagation pass.
type PropagationResult struct {
	UpdatedInstallationIDs []string
	Errors                 []error
}

// CleanupResult reports a duplicate/orphan cleanup pass.
type CleanupResult struct {
	DuplicatesRemoved []string
	OrphansRemoved    []string
	Errors            []error
}

// ConfigIssue is one validation problem in a configuration map.
type ConfigIssue struct {
	Key     string `json:"key,omitempty"`
	Problem string `json:"problem"`
}
