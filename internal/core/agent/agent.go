// Package agent defines the Connector abstraction for MCP Manager.
//
// A Connector represents one AI client application (Claude Code, Cursor,
// OpenCode, etc.) and owns that agent's configuration file. Each connector
// knows its own paths, detection logic, and config dialect, and normalizes
// them behind a uniform read/write contract so the reconciler never touches
// dialect-specific JSON. Connectors are self-contained Go structs.
package agent

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Connector is the uniform contract one agent dialect implements.
//
// Reads are tolerant: a missing config file means zero declared providers,
// and malformed sections are skipped rather than failing the whole read.
// Writes preserve unrelated entries and propagate failures.
type Connector interface {
	// ID is the stable machine slug, e.g. "claude-code". It is derived
	// from the agent type, never from a filesystem path.
	ID() string
	DisplayName() string

	// IsPresent reports whether the agent appears installed on this host.
	// It has no side effects.
	IsPresent() bool

	// ConfigPath is the absolute path of the file this connector owns.
	ConfigPath() string

	// DeclaredProviderIDs parses the agent's file(s) and returns the live
	// set of provider ids, deduplicated and sorted. Dialects with a
	// project-scoped nested list union it into the result.
	DeclaredProviderIDs() []string

	// AddProvider writes or merges a provider entry.
	AddProvider(spec ProviderSpec) error

	// RemoveProvider deletes a provider entry. Returns false if the id
	// was not present.
	RemoveProvider(id string) (bool, error)

	// SetEnabled toggles a provider entry. Dialects without an explicit
	// flag encode enablement as presence. Returns false if the id was
	// not present.
	SetEnabled(id string, enabled bool) (bool, error)
}

// ProviderSpec carries what a connector needs to render a server descriptor
// in its own dialect. InvocationSpec is either a command line ("npx -y
// @acme/server") for stdio servers or an http(s) URL for remote ones.
// Config becomes environment variables for stdio and headers for remote.
type ProviderSpec struct {
	ID             string
	InvocationSpec string
	Config         map[string]string
}

// IsRemote reports whether the spec describes an http server rather than a
// stdio one.
func (s ProviderSpec) IsRemote() bool {
	return strings.HasPrefix(s.InvocationSpec, "http://") ||
		strings.HasPrefix(s.InvocationSpec, "https://")
}

// Command returns the executable of a stdio spec.
func (s ProviderSpec) Command() string {
	fields := strings.Fields(s.InvocationSpec)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Args returns the arguments of a stdio spec.
func (s ProviderSpec) Args() []string {
	fields := strings.Fields(s.InvocationSpec)
	if len(fields) <= 1 {
		return nil
	}
	return fields[1:]
}

// Defaults returns all built-in connectors. The logger is shared; each
// connector tags its entries with the agent id.
func Defaults(logger *zap.Logger) []Connector {
	return []Connector{
		NewClaudeCode(logger),
		NewCursor(logger),
		NewVSCode(logger),
		NewOpenCode(logger),
		NewWindsurf(logger),
		NewGoose(logger),
	}
}

// ByID returns the connector with the given id, if any.
func ByID(connectors []Connector, id string) (Connector, bool) {
	for _, c := range connectors {
		if c.ID() == id {
			return c, true
		}
	}
	return nil, false
}

// ByIDs resolves ids to connectors, erroring on unknown names.
func ByIDs(connectors []Connector, ids []string) ([]Connector, error) {
	result := make([]Connector, 0, len(ids))
	for _, id := range ids {
		c, ok := ByID(connectors, id)
		if !ok {
			var valid []string
			for _, conn := range connectors {
				valid = append(valid, conn.ID())
			}
			return nil, fmt.Errorf("unknown agent %q; available: %s",
				id, strings.Join(valid, ", "))
		}
		result = append(result, c)
	}
	return result, nil
}

// Detect returns the connectors whose agents are present on this host.
func Detect(connectors []Connector) []Connector {
	var detected []Connector
	for _, c := range connectors {
		if c.IsPresent() {
			detected = append(detected, c)
		}
	}
	return detected
}

// IDs returns the ids of the given connectors.
func IDs(connectors []Connector) []string {
	ids := make([]string, len(connectors))
	for i, c := range connectors {
		ids[i] = c.ID()
	}
	return ids
}

// sortedSet deduplicates and sorts a slice of ids.
func sortedSet(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
