package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/nexus/client"
	"github.com/GoCodeAlone/nexus/task"
)

var runCmd = &cobra.Command{
	Use:   "run [action]",
	Short: "Submit a task for the current repository and watch it",
	Long: `Submit a task (default action "review") for a repository and stream its
progress until the merged result is ready.

By default the working tree changes are analyzed. Use --base to analyze a
branch range against HEAD, or --commit for a single commit.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

var watchCmd = &cobra.Command{
	Use:   "watch <task-id>",
	Short: "Stream a task's progress until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchTask(cmd.Context(), cmd.OutOrStdout(), newClient(), args[0])
	},
}

func init() {
	f := runCmd.Flags()
	f.String("repo", ".", "repository path")
	f.String("description", "", "task description passed to every agent")
	f.String("base", "", "analyze changes between this ref and HEAD")
	f.String("commit", "", "analyze a single commit")
	f.StringSlice("agents", nil, "agents to run, in order (default: all)")
	f.String("pr", "", "pull request reference recorded with the task")
	f.Float64("max-cost", 0, "maximum spend in USD (default: daemon setting)")
	f.Int("timeout", 0, "timeout in seconds (default: daemon setting)")
	f.Int("max-agents", 0, "maximum number of agents (default: daemon setting)")
	f.Bool("detach", false, "print the task id and return without watching")
	f.Bool("json", false, "print the final task state as JSON")
}

func runRun(cmd *cobra.Command, args []string) error {
	input, err := inputFromFlags(cmd, args)
	if err != nil {
		return err
	}

	c := newClient()
	out := cmd.OutOrStdout()
	resp, err := c.SubmitTask(cmd.Context(), input)
	if err != nil {
		return err
	}

	detach, _ := cmd.Flags().GetBool("detach")
	asJSON, _ := cmd.Flags().GetBool("json")
	if detach {
		fmt.Fprintln(out, resp.TaskID)
		return nil
	}
	if !asJSON {
		printStatus(out, "→", fmt.Sprintf("Submitted task %s", resp.TaskID), color.FgCyan)
	}

	progress := out
	if asJSON {
		progress = io.Discard
	}
	if err := watchTask(cmd.Context(), progress, c, resp.TaskID); err != nil && !asJSON {
		return err
	}
	if asJSON {
		st, err := c.GetTask(cmd.Context(), resp.TaskID)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(st); err != nil {
			return err
		}
		if st.Status == task.StatusFailed {
			return errors.New(st.Error)
		}
	}
	return nil
}

func inputFromFlags(cmd *cobra.Command, args []string) (task.Input, error) {
	f := cmd.Flags()
	repoPath, _ := f.GetString("repo")
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return task.Input{}, fmt.Errorf("resolve repo path: %w", err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return task.Input{}, fmt.Errorf("repository path %s is not a directory", abs)
	}

	action := "review"
	if len(args) == 1 {
		action = args[0]
	}
	input := task.Input{Action: action}
	input.Description, _ = f.GetString("description")
	input.PR, _ = f.GetString("pr")
	if f.Changed("agents") {
		input.Agents, _ = f.GetStringSlice("agents")
	}
	input.Context.RepoPath = abs
	input.Context.Base, _ = f.GetString("base")
	input.Context.Commit, _ = f.GetString("commit")
	if input.Context.Base != "" && input.Context.Commit != "" {
		return task.Input{}, errors.New("--base and --commit are mutually exclusive")
	}

	var c task.Constraints
	set := false
	if f.Changed("max-cost") {
		v, _ := f.GetFloat64("max-cost")
		c.MaxCost, set = &v, true
	}
	if f.Changed("timeout") {
		v, _ := f.GetInt("timeout")
		c.Timeout, set = &v, true
	}
	if f.Changed("max-agents") {
		v, _ := f.GetInt("max-agents")
		c.MaxAgents, set = &v, true
	}
	if set {
		input.Constraints = &c
	}
	return input, nil
}

// watchTask streams task id to w and prints the result once it finishes.
// It returns an error when the task failed.
func watchTask(ctx context.Context, w io.Writer, c *client.Client, id string) error {
	dec, body, err := c.StreamTask(ctx, id)
	if err != nil {
		return err
	}
	defer body.Close()

	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return errors.New("stream ended before the task finished")
		}
		if err != nil {
			return err
		}
		renderEvent(w, ev)
		switch ev.Type {
		case task.EventResult:
			if ev.Result != nil {
				renderResult(w, ev.Result)
			}
			return nil
		case task.EventError:
			return fmt.Errorf("task %s failed: %s", id, strings.TrimSpace(ev.Error))
		}
	}
}
