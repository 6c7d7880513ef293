package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JerrettDavis/McpManager-sub000/internal/store"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Inspect agents and manage their providers",
	Long:  `List detected AI agents and add, remove, or toggle providers for them.`,
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known agents and their detection state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		defer d.close()

		for _, a := range d.manager.ListAgents() {
			state := "not detected"
			if a.Present {
				state = fmt.Sprintf("%d provider(s)", len(a.DeclaredProviderIDs))
			}
			fmt.Printf("%-12s %-10s %s\n", a.ID, state, a.ConfigPath)
		}
		return nil
	},
}

var agentShowCmd = &cobra.Command{
	Use:   "show <agent>",
	Short: "Show one agent's providers, reconciling it first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		defer d.close()

		ctx := cmd.Context()

		// Reconcile this agent so the view reflects the file as it is now.
		if _, err := d.manager.SyncAgentNow(ctx, args[0]); err != nil {
			return err
		}

		a, err := d.manager.GetAgent(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s (%s)\n", a.DisplayName, a.ID)
		fmt.Printf("Config: %s\n", a.ConfigPath)
		if !a.Present {
			fmt.Println("Not detected on this host.")
			return nil
		}
		if len(a.DeclaredProviderIDs) == 0 {
			fmt.Println("No providers configured.")
			return nil
		}

		installations, err := d.manager.ListInstallations(ctx, store.InstallationFilter{
			AgentID: &a.ID,
		})
		if err != nil {
			return err
		}
		enabled := make(map[string]bool, len(installations))
		for _, inst := range installations {
			enabled[inst.ProviderID] = inst.IsEnabled
		}

		fmt.Println("Providers:")
		for _, id := range a.DeclaredProviderIDs {
			state := "enabled"
			if on, tracked := enabled[id]; tracked && !on {
				state = "disabled"
			}
			fmt.Printf("  %s (%s)\n", id, state)
		}
		return nil
	},
}

var agentAddCmd = &cobra.Command{
	Use:   "add <provider> <agent>",
	Short: "Add an installed provider to an agent's config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		defer d.close()

		if _, err := d.manager.AddProviderToAgent(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Added %s to %s.\n", args[0], args[1])
		return nil
	},
}

var agentRemoveCmd = &cobra.Command{
	Use:   "remove <provider> <agent>",
	Short: "Remove a provider from an agent's config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		defer d.close()

		changed, err := d.manager.RemoveProviderFromAgent(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if !changed {
			fmt.Printf("%s was not configured for %s.\n", args[0], args[1])
			return nil
		}
		fmt.Printf("Removed %s from %s.\n", args[0], args[1])
		return nil
	},
}

var agentEnableCmd = &cobra.Command{
	Use:   "enable <provider> <agent>",
	Short: "Enable a provider for an agent",
	Args:  cobra.ExactArgs(2),
	RunE:  toggleRunE(true),
}

var agentDisableCmd = &cobra.Command{
	Use:   "disable <provider> <agent>",
	Short: "Disable a provider for an agent without removing it",
	Args:  cobra.ExactArgs(2),
	RunE:  toggleRunE(false),
}

func toggleRunE(enabled bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		defer d.close()

		if err := d.manager.SetProviderEnabledForAgent(cmd.Context(), args[0], args[1], enabled); err != nil {
			return err
		}
		verb := "Enabled"
		if !enabled {
			verb = "Disabled"
		}
		fmt.Printf("%s %s for %s.\n", verb, args[0], args[1])
		return nil
	}
}

var agentConfigCmd = &cobra.Command{
	Use:   "config <provider> <agent> [key=value...]",
	Short: "Show or set the effective config for a provider on an agent",
	Long: `With no key=value arguments, prints the effective configuration the
agent runs the provider with (its override if set, otherwise the global
default). With arguments, replaces the agent-specific override.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		defer d.close()

		ctx := cmd.Context()
		providerID, agentID := args[0], args[1]

		if len(args) == 2 {
			cfg, err := d.manager.EffectiveConfigFor(ctx, providerID, agentID)
			if err != nil {
				return err
			}
			if len(cfg) == 0 {
				fmt.Println("No configuration.")
				return nil
			}
			for k, v := range cfg {
				fmt.Printf("%s=%s\n", k, v)
			}
			return nil
		}

		override, err := parseConfigPairs(args[2:])
		if err != nil {
			return err
		}
		inst, err := d.manager.ListInstallations(ctx, store.InstallationFilter{
			ProviderID: &providerID,
			AgentID:    &agentID,
		})
		if err != nil {
			return err
		}
		if len(inst) == 0 {
			return fmt.Errorf("%s is not configured for %s; run 'mcpman agent add %s %s' first",
				providerID, agentID, providerID, agentID)
		}
		if err := d.manager.UpdateOverride(ctx, inst[0].ID, override); err != nil {
			return err
		}
		fmt.Printf("Override for %s on %s set to %s.\n",
			providerID, agentID, strings.Join(args[2:], " "))
		return nil
	},
}

func init() {
	agentCmd.AddCommand(agentListCmd)
	agentCmd.AddCommand(agentShowCmd)
	agentCmd.AddCommand(agentAddCmd)
	agentCmd.AddCommand(agentRemoveCmd)
	agentCmd.AddCommand(agentEnableCmd)
	agentCmd.AddCommand(agentDisableCmd)
	agentCmd.AddCommand(agentConfigCmd)
	rootCmd.AddCommand(agentCmd)
}
