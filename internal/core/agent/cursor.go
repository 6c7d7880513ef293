package agent

import "go.uber.org/zap"

// Cursor implements the Connector interface for the Cursor editor.
//
// Cursor reads ~/.cursor/mcp.json, tolerates JSONC, and supports a
// per-entry "disabled" flag.
type Cursor struct {
	BaseConnector
}

// NewCursor creates a configured Cursor connector.
func NewCursor(logger *zap.Logger) *Cursor {
	return &Cursor{BaseConnector{
		id:              "cursor",
		displayName:     "Cursor",
		configPath:      "~/.cursor/mcp.json",
		detectPaths:     []string{"~/.cursor"},
		serversKey:      "mcpServers",
		jsonc:           true,
		enabledKey:      "disabled",
		enabledInverted: true,
		logger:          logger,
	}}
}

// Cursor uses the default descriptor shape: bare command/args/env for stdio
// and type/url for remote servers.
