package agent

import "go.uber.org/zap"

// Windsurf implements the Connector interface for the Windsurf editor.
type Windsurf struct {
	BaseConnector
}

// NewWindsurf creates a configured Windsurf connector.
func NewWindsurf(logger *zap.Logger) *Windsurf {
	return &Windsurf{BaseConnector{
		id:          "windsurf",
		displayName: "Windsurf",
		configPath:  "~/.codeium/windsurf/mcp_config.json",
		detectPaths: []string{"~/.codeium/windsurf"},
		serversKey:  "mcpServers",
		logger:      logger,
	}}
}

// Windsurf uses strict JSON and the default descriptor shape; enablement is
// encoded as presence.
