package agent

import (
	"encoding/json"
	"os"

	"go.uber.org/zap"
)

// OpenCode implements the Connector interface for the OpenCode AI coding
// tool.
//
// OpenCode keeps servers under an "mcp" key, describes stdio servers as
// {"type": "local", "command": [...]} and remote ones as {"type": "remote"},
// and carries an explicit per-entry "enabled" flag. The config may live in
// opencode.json or opencode.jsonc; the jsonc variant wins when both exist.
type OpenCode struct {
	BaseConnector
	altConfigPath string
}

// NewOpenCode creates a configured OpenCode connector.
func NewOpenCode(logger *zap.Logger) *OpenCode {
	c := &OpenCode{
		BaseConnector: BaseConnector{
			id:          "opencode",
			displayName: "OpenCode",
			configPath:  "$XDG_CONFIG/opencode/opencode.json",
			detectPaths: []string{"$XDG_CONFIG/opencode"},
			serversKey:  "mcp",
			jsonc:       true,
			enabledKey:  "enabled",
			logger:      logger,
		},
		altConfigPath: "$XDG_CONFIG/opencode/opencode.jsonc",
	}
	c.descriptor = opencodeDescriptor
	return c
}

// ConfigPath prefers the .jsonc variant when it exists on disk.
func (o *OpenCode) ConfigPath() string {
	alt := expandPath(o.altConfigPath)
	if _, err := os.Stat(alt); err == nil {
		return alt
	}
	return expandPath(o.configPath)
}

// DeclaredProviderIDs re-resolves the config path so the .jsonc preference
// applies to reads as well.
func (o *OpenCode) DeclaredProviderIDs() []string {
	// The embedded implementation calls the embedded ConfigPath, so swap
	// the primary path for the resolved one first.
	resolved := o.ConfigPath()
	b := o.BaseConnector
	b.configPath = resolved
	return b.DeclaredProviderIDs()
}

func (o *OpenCode) AddProvider(spec ProviderSpec) error {
	b := o.BaseConnector
	b.configPath = o.ConfigPath()
	return b.AddProvider(spec)
}

func (o *OpenCode) RemoveProvider(id string) (bool, error) {
	b := o.BaseConnector
	b.configPath = o.ConfigPath()
	return b.RemoveProvider(id)
}

func (o *OpenCode) SetEnabled(id string, enabled bool) (bool, error) {
	b := o.BaseConnector
	b.configPath = o.ConfigPath()
	return b.SetEnabled(id, enabled)
}

func opencodeDescriptor(spec ProviderSpec) string {
	if spec.IsRemote() {
		m := map[string]any{
			"type":    "remote",
			"url":     spec.InvocationSpec,
			"enabled": true,
		}
		if len(spec.Config) > 0 {
			m["headers"] = spec.Config
		}
		data, _ := json.Marshal(m)
		return string(data)
	}

	cmd := append([]string{spec.Command()}, spec.Args()...)
	m := map[string]any{
		"type":    "local",
		"command": cmd,
		"enabled": true,
	}
	if len(spec.Config) > 0 {
		m["environment"] = spec.Config
	}
	data, _ := json.Marshal(m)
	return string(data)
}
