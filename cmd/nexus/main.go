// Command nexus is the Nexus CLI client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/GoCodeAlone/nexus/client"
	"github.com/GoCodeAlone/nexus/internal/version"
	"github.com/GoCodeAlone/nexus/update"
)

// settings holds flag values resolved through viper, so every persistent
// flag can also be set as NEXUS_<FLAG>.
var settings = viper.New()

var rootCmd = &cobra.Command{
	Use:   "nexus",
	Short: "Run multi-agent code analysis against a local repository",
	Long: `nexus submits analysis tasks to the nexus daemon (nexusd), which fans them
out to specialised agents and merges their findings.

Start the daemon with 'nexusd', install the default agents with 'nexus init',
then review your working tree with 'nexus run'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("server", client.DefaultServer, "daemon URL (or $NEXUS_SERVER)")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output (or $NEXUS_NO_COLOR)")
	_ = settings.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = settings.BindPFlag("no-color", rootCmd.PersistentFlags().Lookup("no-color"))
	settings.SetEnvPrefix("NEXUS")
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()

	rootCmd.PersistentPreRun = func(*cobra.Command, []string) {
		if settings.GetBool("no-color") {
			disableColor()
		}
	}

	rootCmd.AddCommand(
		initCmd,
		runCmd,
		statusCmd,
		resultCmd,
		watchCmd,
		tasksCmd,
		agentsCmd,
		healthCmd,
		versionCmd,
		updateCmd,
	)
	versionCmd.Flags().Bool("check", false, "check GitHub for a newer release")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errorMark(), err)
		os.Exit(1)
	}
}

// newClient returns a daemon client for the resolved --server value.
func newClient() *client.Client {
	return client.New(settings.GetString("server"))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "nexus %s (commit %s, built %s)\n",
			version.Version, version.Commit, version.BuildDate)
		if check, _ := cmd.Flags().GetBool("check"); !check {
			return nil
		}
		rel, err := newUpdater().Check(cmd.Context())
		if err != nil {
			return err
		}
		if rel == nil {
			printStatus(out, "✓", "nexus is up to date", color.FgGreen)
			return nil
		}
		printStatus(out, "→", fmt.Sprintf("nexus %s is available; run 'nexus update'", rel.Version), color.FgCyan)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Replace this binary with the latest release",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		u := newUpdater()
		rel, err := u.Check(cmd.Context())
		if err != nil {
			return err
		}
		if rel == nil {
			printStatus(out, "✓", fmt.Sprintf("nexus %s is already the latest release", version.Version), color.FgGreen)
			return nil
		}
		printStatus(out, "→", fmt.Sprintf("Downloading nexus %s...", rel.Version), color.FgCyan)
		if err := u.Apply(cmd.Context(), rel); err != nil {
			return err
		}
		printStatus(out, "✓", fmt.Sprintf("Updated to nexus %s", rel.Version), color.FgGreen)
		return nil
	},
}

// newUpdater honors $NEXUS_UPDATE_API so mirrors and tests can stand in for GitHub.
func newUpdater() *update.Updater {
	u := update.New(version.Version, "")
	if api := settings.GetString("update-api"); api != "" {
		u.APIURL = api
	}
	return u
}
