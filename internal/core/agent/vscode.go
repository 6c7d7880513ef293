package agent

import (
	"encoding/json"

	"go.uber.org/zap"
)

// VSCode implements the Connector interface for VS Code's MCP support.
//
// VS Code keeps servers under a "servers" key in the user-profile mcp.json
// and wants an explicit "type" on every descriptor, including stdio.
type VSCode struct {
	BaseConnector
}

// NewVSCode creates a configured VS Code connector.
func NewVSCode(logger *zap.Logger) *VSCode {
	c := &VSCode{BaseConnector{
		id:          "vscode",
		displayName: "VS Code",
		configPath:  "$XDG_CONFIG/Code/User/mcp.json",
		detectPaths: []string{"$XDG_CONFIG/Code"},
		serversKey:  "servers",
		jsonc:       true,
		logger:      logger,
	}}
	c.descriptor = vscodeDescriptor
	return c
}

func vscodeDescriptor(spec ProviderSpec) string {
	if spec.IsRemote() {
		m := map[string]any{
			"type": "http",
			"url":  spec.InvocationSpec,
		}
		if len(spec.Config) > 0 {
			m["headers"] = spec.Config
		}
		data, _ := json.Marshal(m)
		return string(data)
	}

	m := map[string]any{
		"type":    "stdio",
		"command": spec.Command(),
	}
	if args := spec.Args(); len(args) > 0 {
		m["args"] = args
	}
	if len(spec.Config) > 0 {
		m["env"] = spec.Config
	}
	data, _ := json.Marshal(m)
	return string(data)
}
