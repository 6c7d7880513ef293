package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JerrettDavis/McpManager-sub000/internal/core"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Manage remote provider registries",
	Long: `Add, remove, and query the remote registries providers are resolved
against. Registry order matters: identity resolution takes the first
match in listed order.`,
}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured registries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		defer d.close()

		if len(d.cfg.Registries) == 0 {
			fmt.Println("No registries configured.")
			return nil
		}
		for _, r := range d.cfg.Registries {
			fmt.Printf("%-16s %s\n", r.Name, r.URL)
		}
		return nil
	},
}

var registryAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add a registry",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.NewConfigManager()
		if err != nil {
			return err
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, r := range cfg.Registries {
			if r.Name == args[0] {
				return fmt.Errorf("registry %q already exists", args[0])
			}
		}
		cfg.Registries = append(cfg.Registries, core.RegistryRef{Name: args[0], URL: args[1]})
		if err := config.Save(cfg); err != nil {
			return err
		}
		fmt.Printf("Added registry %s.\n", args[0])
		return nil
	},
}

var registryRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.NewConfigManager()
		if err != nil {
			return err
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		kept := cfg.Registries[:0]
		found := false
		for _, r := range cfg.Registries {
			if r.Name == args[0] {
				found = true
				continue
			}
			kept = append(kept, r)
		}
		if !found {
			return fmt.Errorf("registry %q is not configured", args[0])
		}
		cfg.Registries = kept
		if err := config.Save(cfg); err != nil {
			return err
		}
		fmt.Printf("Removed registry %s.\n", args[0])
		return nil
	},
}

var registrySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search cached registry listings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		defer d.close()

		limit, _ := cmd.Flags().GetInt("limit")
		results, err := d.manager.Registries().Search(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No matches.")
			return nil
		}
		for _, p := range results {
			fmt.Printf("%-24s %s\n", p.ID, p.Description)
		}
		return nil
	},
}

var registryRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force-refresh every registry's cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		defer d.close()

		failed := 0
		for name, err := range d.manager.Registries().RefreshAll(cmd.Context()) {
			if err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
				continue
			}
			fmt.Printf("%s: refreshed\n", name)
		}
		if failed > 0 {
			return fmt.Errorf("%d registr(ies) failed to refresh", failed)
		}
		return nil
	},
}

var registryStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache freshness per registry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		defer d.close()

		status, err := d.manager.Registries().Status(cmd.Context())
		if err != nil {
			return err
		}
		if len(status) == 0 {
			fmt.Println("No registries configured.")
			return nil
		}
		for _, name := range d.manager.Registries().Sources() {
			meta := status[name]
			if meta == nil {
				fmt.Printf("%-16s never refreshed\n", name)
				continue
			}
			state := "ok"
			if !meta.LastRefreshSuccessful {
				state = "failed: " + meta.LastRefreshError
			}
			fmt.Printf("%-16s %d cached, last refresh %s (%s)\n",
				name, meta.CachedCount,
				meta.LastRefreshAt.Format("2006-01-02 15:04:05"), state)
		}
		return nil
	},
}

func init() {
	registrySearchCmd.Flags().Int("limit", 20, "Maximum results to print")

	registryCmd.AddCommand(registryListCmd)
	registryCmd.AddCommand(registryAddCmd)
	registryCmd.AddCommand(registryRemoveCmd)
	registryCmd.AddCommand(registrySearchCmd)
	registryCmd.AddCommand(registryRefreshCmd)
	registryCmd.AddCommand(registryStatusCmd)
	rootCmd.AddCommand(registryCmd)
}
