package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/nexus/agent"
	"github.com/GoCodeAlone/nexus/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create ~/.nexus/config.yaml and install the default agents",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	initCmd.Flags().Bool("force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	force, _ := cmd.Flags().GetBool("force")

	path := config.DefaultPath()
	cfg := config.DefaultConfig()
	_, statErr := os.Stat(path)
	switch {
	case statErr == nil && !force:
		printStatus(out, "✓", "Config exists at "+path, color.FgGreen)
		if existing, err := config.Load(path); err == nil {
			cfg = existing
		} else {
			printStatus(out, "⚠", fmt.Sprintf("Existing config is invalid: %v", err), color.FgYellow)
		}
	case statErr == nil || errors.Is(statErr, os.ErrNotExist):
		if err := config.Save(cfg, path); err != nil {
			return err
		}
		printStatus(out, "✓", "Wrote "+path, color.FgGreen)
	default:
		return fmt.Errorf("check config: %w", statErr)
	}

	installed, err := agent.InstallDefaults(cfg.AgentsDir)
	if err != nil {
		return err
	}
	if len(installed) == 0 {
		printStatus(out, "✓", "Default agents already installed in "+cfg.AgentsDir, color.FgGreen)
	}
	for _, name := range installed {
		printStatus(out, "✓", "Installed agent "+name, color.FgGreen)
	}

	if cfg.Provider("anthropic").APIKey == "" {
		printStatus(out, "⚠", "ANTHROPIC_API_KEY not set (set it or configure another provider)", color.FgYellow)
	}

	fmt.Fprintf(out, "\n%s Nexus initialization complete. Start the daemon with 'nexusd'.\n", color.GreenString("✓"))
	return nil
}
