package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove duplicate providers and orphaned installations",
	Long: `Scan the catalog for providers sharing a name (case-insensitive) and
for installation records whose provider is gone, and remove them. Within
a duplicate group, entries referenced by an installation are kept;
otherwise the oldest survives.

With --dry-run, only reports what would be removed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		defer d.close()

		ctx := cmd.Context()
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		if dryRun {
			groups, err := d.manager.FindDuplicates(ctx)
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				fmt.Println("No duplicates found.")
				return nil
			}
			for _, group := range groups {
				var ids []string
				for _, p := range group {
					ids = append(ids, p.ID)
				}
				fmt.Printf("%s: %s\n", group[0].Name, strings.Join(ids, ", "))
			}
			return nil
		}

		result, err := d.manager.CleanupNow(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Removed %d duplicate provider(s), %d orphaned installation(s).\n",
			len(result.DuplicatesRemoved), len(result.OrphansRemoved))
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "warning: %v\n", e)
		}
		return nil
	},
}

func init() {
	cleanupCmd.Flags().Bool("dry-run", false, "Report duplicates without removing anything")
	rootCmd.AddCommand(cleanupCmd)
}
