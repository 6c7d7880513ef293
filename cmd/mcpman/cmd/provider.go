package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JerrettDavis/McpManager-sub000/internal/store"
)

var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Manage the provider catalog",
	Long:  `List, install, inspect, and uninstall MCP capability providers.`,
}

var providerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed providers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		defer d.close()

		providers, err := d.manager.ListProviders(cmd.Context())
		if err != nil {
			return err
		}
		if len(providers) == 0 {
			fmt.Println("No providers installed.")
			return nil
		}

		for _, p := range providers {
			line := p.ID
			if p.Name != "" && p.Name != p.ID {
				line += " (" + p.Name + ")"
			}
			if len(p.Tags) > 0 {
				line += "  [" + strings.Join(p.Tags, ", ") + "]"
			}
			fmt.Println(line)
		}
		return nil
	},
}

var providerShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show provider details and where it is installed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		defer d.close()

		ctx := cmd.Context()
		p, err := d.manager.GetProvider(ctx, args[0])
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("provider %q is not installed", args[0])
		}

		fmt.Printf("ID:          %s\n", p.ID)
		fmt.Printf("Name:        %s\n", p.Name)
		if p.Description != "" {
			fmt.Printf("Description: %s\n", p.Description)
		}
		if p.Version != "" {
			fmt.Printf("Version:     %s\n", p.Version)
		}
		if p.Author != "" {
			fmt.Printf("Author:      %s\n", p.Author)
		}
		if p.InvocationSpec != "" {
			fmt.Printf("Invocation:  %s\n", p.InvocationSpec)
		}
		if len(p.Tags) > 0 {
			fmt.Printf("Tags:        %s\n", strings.Join(p.Tags, ", "))
		}
		if len(p.GlobalConfig) > 0 {
			fmt.Println("Config:")
			for k, v := range p.GlobalConfig {
				fmt.Printf("  %s=%s\n", k, v)
			}
		}

		installations, err := d.manager.ListInstallations(ctx, store.InstallationFilter{
			ProviderID: &p.ID,
		})
		if err != nil {
			return err
		}
		if len(installations) > 0 {
			fmt.Println("Agents:")
			for _, inst := range installations {
				state := "enabled"
				if !inst.IsEnabled {
					state = "disabled"
				}
				fmt.Printf("  %s (%s)\n", inst.AgentID, state)
			}
		}
		return nil
	},
}

var providerInstallCmd = &cobra.Command{
	Use:   "install <id>",
	Short: "Install a provider into the catalog",
	Long: `Install a provider into the catalog, either from a configured
registry or from the flags alone.

If the id (or name) is found in a configured registry, its metadata is
used; the catalog entry keeps the id you pass here. Otherwise --invocation
is required.

Examples:
  mcpman provider install github
  mcpman provider install internal-db --invocation "npx -y @corp/db-mcp" --config DB_URL=postgres://localhost`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		defer d.close()

		ctx := cmd.Context()
		id := args[0]
		invocation, _ := cmd.Flags().GetString("invocation")
		name, _ := cmd.Flags().GetString("name")
		configPairs, _ := cmd.Flags().GetStringArray("config")

		globalConfig, err := parseConfigPairs(configPairs)
		if err != nil {
			return err
		}

		p := &store.Provider{ID: id, Name: id}
		if fetched, err := d.manager.Registries().Resolve(ctx, id); err == nil && fetched != nil {
			*p = *fetched
			p.ID = id
		} else if invocation == "" {
			return fmt.Errorf("%q not found in any configured registry; pass --invocation to install it manually", id)
		}
		if name != "" {
			p.Name = name
		}
		if invocation != "" {
			p.InvocationSpec = invocation
		}
		if globalConfig != nil {
			p.GlobalConfig = globalConfig
		}

		if err := d.manager.InstallProvider(ctx, p); err != nil {
			return err
		}
		fmt.Printf("Installed %s.\n", p.ID)
		return nil
	},
}

var providerUninstallCmd = &cobra.Command{
	Use:   "uninstall <id>",
	Short: "Remove a provider from the catalog",
	Long: `Remove a provider from the catalog. Its installation records are
removed with it; agent config files are not touched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		defer d.close()

		removed, err := d.manager.UninstallProvider(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !removed {
			fmt.Printf("%s was not installed.\n", args[0])
			return nil
		}
		fmt.Printf("Uninstalled %s.\n", args[0])
		return nil
	},
}

var providerConfigCmd = &cobra.Command{
	Use:   "config <id> <key=value>...",
	Short: "Replace a provider's global configuration",
	Long: `Replace a provider's global default configuration. Installations
that were tracking the old default follow the change; customized
per-agent overrides are left alone.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		defer d.close()

		newGlobal, err := parseConfigPairs(args[1:])
		if err != nil {
			return err
		}

		result, err := d.manager.UpdateGlobalConfig(cmd.Context(), args[0], newGlobal)
		if err != nil {
			return err
		}

		fmt.Printf("Updated global config for %s.\n", args[0])
		if len(result.UpdatedInstallationIDs) > 0 {
			fmt.Printf("Propagated to %d tracking installation(s).\n",
				len(result.UpdatedInstallationIDs))
		}
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "warning: %v\n", e)
		}
		return nil
	},
}

// parseConfigPairs turns key=value arguments into a config map.
func parseConfigPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	cfg := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid config pair %q, expected key=value", pair)
		}
		cfg[key] = value
	}
	return cfg, nil
}

func init() {
	providerInstallCmd.Flags().String("name", "", "Display name (default: the id)")
	providerInstallCmd.Flags().String("invocation", "", "Command line or URL that invokes the provider")
	providerInstallCmd.Flags().StringArray("config", nil, "Global config entry key=value (repeatable)")

	providerCmd.AddCommand(providerListCmd)
	providerCmd.AddCommand(providerShowCmd)
	providerCmd.AddCommand(providerInstallCmd)
	providerCmd.AddCommand(providerUninstallCmd)
	providerCmd.AddCommand(providerConfigCmd)
	rootCmd.AddCommand(providerCmd)
}
