package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JerrettDavis/McpManager-sub000/internal/core"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile agent config files with the catalog now",
	Long: `Run one reconciliation pass: read every detected agent's config
file, resolve the declared provider ids against the catalog and the
configured registries, and create missing catalog entries and
installation records. Agent files are never modified by sync.

With --resync, only declared-but-untracked ids get installation rows,
skipping the rest of the pass.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		defer d.close()

		resync, _ := cmd.Flags().GetBool("resync")

		var summary *core.SyncSummary
		if resync {
			summary, err = d.manager.ForceResync(cmd.Context())
			if err != nil {
				return err
			}
		} else {
			summary = d.manager.SyncNow(cmd.Context())
		}

		printSyncSummary(summary)
		if n := len(summary.Errors()); n > 0 {
			return fmt.Errorf("%d provider(s) failed to sync", n)
		}
		return nil
	},
}

func printSyncSummary(summary *core.SyncSummary) {
	if len(summary.Agents) == 0 {
		fmt.Println("No agents detected.")
		return
	}
	for _, a := range summary.Agents {
		fmt.Printf("%-12s %d declared, %d providers added, %d installations added\n",
			a.AgentID, a.DeclaredIDs, a.ProvidersCreated, a.InstallationsCreated)
		for _, e := range a.Errors {
			fmt.Fprintf(os.Stderr, "  error: %v\n", e)
		}
	}
}

func init() {
	syncCmd.Flags().Bool("resync", false, "Only create installation rows for untracked declared ids")
	rootCmd.AddCommand(syncCmd)
}
