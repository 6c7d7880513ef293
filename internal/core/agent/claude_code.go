package agent

import (
	"os"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// ClaudeCode implements the Connector interface for Claude Code.
//
// Claude Code keeps everything in one file, ~/.claude.json: a global
// "mcpServers" object plus per-project "mcpServers" objects nested under
// "projects.<absolute path>". Declared ids are the union of the global list
// and the list scoped to the current working directory. Enablement is
// encoded as presence.
type ClaudeCode struct {
	BaseConnector
}

// NewClaudeCode creates a configured Claude Code connector.
func NewClaudeCode(logger *zap.Logger) *ClaudeCode {
	return &ClaudeCode{BaseConnector{
		id:          "claude-code",
		displayName: "Claude Code",
		configPath:  "~/.claude.json",
		detectPaths: []string{"~/.claude.json", "~/.claude"},
		serversKey:  "mcpServers",
		logger:      logger,
	}}
}

// DeclaredProviderIDs unions the global server map with the project-scoped
// map for the current working directory. A malformed project section is
// skipped without discarding the global list.
func (c *ClaudeCode) DeclaredProviderIDs() []string {
	content, err := readConfigFile(c.ConfigPath())
	if err != nil {
		c.logger.Warn("reading agent config",
			zap.String("agent", c.id), zap.String("path", c.ConfigPath()), zap.Error(err))
		return nil
	}
	if content == "" {
		return nil
	}

	std, err := standardizeJSON(content)
	if err != nil {
		c.logger.Warn("agent config is not valid JSON, treating as empty",
			zap.String("agent", c.id), zap.String("path", c.ConfigPath()), zap.Error(err))
		return nil
	}

	ids := objectKeys(gjson.Get(std, c.serversKey))

	if cwd, err := os.Getwd(); err == nil {
		projectPath := "projects." + escapeJSONKey(cwd) + "." + c.serversKey
		ids = append(ids, objectKeys(gjson.Get(std, projectPath))...)
	}

	return sortedSet(ids)
}
