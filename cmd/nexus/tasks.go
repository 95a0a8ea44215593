package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/nexus/task"
)

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show a task's status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newClient().GetTask(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		renderState(cmd.OutOrStdout(), st)
		return nil
	},
}

var resultCmd = &cobra.Command{
	Use:   "result <task-id>",
	Short: "Show a finished task's merged result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newClient().GetTask(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(st.Result)
		}
		switch st.Status {
		case task.StatusCompleted:
			if st.Result != nil {
				renderResult(out, st.Result)
			}
			return nil
		case task.StatusFailed:
			return fmt.Errorf("task %s failed: %s", st.ID, st.Error)
		default:
			return fmt.Errorf("task %s is still %s; use 'nexus watch %s'", st.ID, st.Status, st.ID)
		}
	},
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		tasks, err := newClient().ListTasks(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(tasks) == 0 {
			fmt.Fprintln(out, "no tasks")
			return nil
		}
		fmt.Fprintf(out, "%-36s %-10s %-11s %s\n", "ID", "ACTION", "STATUS", "DESCRIPTION")
		fmt.Fprintln(out, strings.Repeat("-", 90))
		for _, t := range tasks {
			fmt.Fprintf(out, "%-36s %-10s %s %s\n",
				t.ID,
				truncate(t.Input.Action, 10),
				statusColor(t.Status).Sprintf("%-11s", t.Status),
				truncate(t.Input.Description, 30),
			)
		}
		return nil
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the agents registered with the daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		agents, err := newClient().ListAgents(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(agents) == 0 {
			fmt.Fprintln(out, "no agents (run 'nexus init' to install the defaults)")
			return nil
		}
		fmt.Fprintf(out, "%-22s %-24s %-18s %s\n", "NAME", "CAPABILITIES", "LANGUAGES", "DESCRIPTION")
		fmt.Fprintln(out, strings.Repeat("-", 100))
		for _, a := range agents {
			langs := strings.Join(a.Languages, ",")
			if langs == "" {
				langs = "any"
			}
			fmt.Fprintf(out, "%-22s %-24s %-18s %s\n",
				truncate(a.Name, 22),
				truncate(strings.Join(a.Capabilities, ","), 24),
				truncate(langs, 18),
				truncate(a.Description, 40),
			)
		}
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the daemon is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		h, err := newClient().Health(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printStatus(out, "✓", fmt.Sprintf("nexusd %s is %s", h.Version, h.Status), color.FgGreen)
		fmt.Fprintf(out, "agents:  %d\n", h.Agents)
		fmt.Fprintf(out, "tasks:   %d total, %d running, %d completed, %d failed\n",
			h.Tasks.Total, h.Tasks.Running, h.Tasks.Completed, h.Tasks.Failed)
		return nil
	},
}

func init() {
	resultCmd.Flags().Bool("json", false, "print the result as JSON")
}
