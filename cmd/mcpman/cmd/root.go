package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "mcpman",
	Short: "Manage MCP capability providers across AI agents",
	Long: `mcpman keeps a catalog of MCP capability providers and reconciles
which providers are enabled for which AI agents (Claude Code, Cursor,
VS Code, OpenCode, Windsurf, Goose), each of which stores its own
enablement list in its own config file dialect.

Providers can come from remote registries or be discovered directly
from agent files; mcpman keeps the catalog, the agent files, and the
registry cache consistent.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mcpman %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the CLI logger: console output, warnings only unless
// --verbose.
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
