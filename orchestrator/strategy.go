package orchestrator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/GoCodeAlone/nexus/agent"
	"github.com/GoCodeAlone/nexus/repo"
	"github.com/GoCodeAlone/nexus/task"
)

// Runner executes one subtask as one agent.
type Runner interface {
	Run(ctx context.Context, st task.Subtask, d agent.Descriptor, rc *repo.Context) (task.SubtaskResult, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, st task.Subtask, d agent.Descriptor, rc *repo.Context) (task.SubtaskResult, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, st task.Subtask, d agent.Descriptor, rc *repo.Context) (task.SubtaskResult, error) {
	return f(ctx, st, d, rc)
}

// ProgressFunc receives per-agent progress as it happens.
type ProgressFunc func(agentName string, status task.ProgressStatus, message string)

// Strategy runs a set of assignments and returns their results in
// assignment order.
type Strategy interface {
	Name() string
	Execute(ctx context.Context, assignments []Assignment, runner Runner, progress ProgressFunc) ([]task.SubtaskResult, error)
}

// StrategyByName returns the strategy called name.
func StrategyByName(name string) (Strategy, error) {
	switch name {
	case "", "parallel":
		return Parallel{}, nil
	case "sequential":
		return Sequential{}, nil
	default:
		return nil, fmt.Errorf("orchestrator: unknown strategy %q", name)
	}
}

// Parallel runs every assignment concurrently. The first failure cancels the
// others and is returned.
type Parallel struct {
	// Limit bounds concurrent runs. Zero means unbounded.
	Limit int
}

func (Parallel) Name() string { return "parallel" }

func (p Parallel) Execute(ctx context.Context, assignments []Assignment, runner Runner, progress ProgressFunc) ([]task.SubtaskResult, error) {
	results := make([]task.SubtaskResult, len(assignments))
	g, gctx := errgroup.WithContext(ctx)
	if p.Limit > 0 {
		g.SetLimit(p.Limit)
	}
	for i, a := range assignments {
		g.Go(func() error {
			r, err := runOne(gctx, a, runner, progress)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Sequential runs assignments one at a time and stops at the first failure.
type Sequential struct{}

func (Sequential) Name() string { return "sequential" }

func (Sequential) Execute(ctx context.Context, assignments []Assignment, runner Runner, progress ProgressFunc) ([]task.SubtaskResult, error) {
	results := make([]task.SubtaskResult, 0, len(assignments))
	for _, a := range assignments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := runOne(ctx, a, runner, progress)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

func runOne(ctx context.Context, a Assignment, runner Runner, progress ProgressFunc) (task.SubtaskResult, error) {
	name := a.Agent.Name
	report(progress, name, task.ProgressStarted, fmt.Sprintf("Running %s...", name))
	r, err := runner.Run(ctx, a.Subtask, a.Agent, a.Context)
	if err != nil {
		report(progress, name, task.ProgressFailed, fmt.Sprintf("%s failed: %v", name, err))
		return task.SubtaskResult{}, err
	}
	report(progress, name, task.ProgressCompleted, fmt.Sprintf("%s completed", name))
	return r, nil
}

func report(progress ProgressFunc, name string, status task.ProgressStatus, msg string) {
	if progress != nil {
		progress(name, status, msg)
	}
}
