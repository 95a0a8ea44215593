package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/GoCodeAlone/nexus/agent"
	"github.com/GoCodeAlone/nexus/repo"
	"github.com/GoCodeAlone/nexus/task"
)

// ContextBuilder derives the repository context of a task.
type ContextBuilder interface {
	Build(ctx context.Context, tc task.Context) (*repo.Context, error)
}

// Options hold daemon-wide defaults applied when a task sets no constraint.
type Options struct {
	Strategy  Strategy
	Timeout   time.Duration // 0 disables
	MaxCost   float64       // USD, 0 disables
	MaxAgents int           // 0 disables
}

// Orchestrator drives tasks from submission to a terminal state.
type Orchestrator struct {
	store    task.Store
	registry *agent.Registry
	contexts ContextBuilder
	runner   Runner
	opts     Options
	metrics  *Metrics
	logger   *slog.Logger

	wg sync.WaitGroup
}

// New creates an Orchestrator. metrics and logger may be nil.
func New(store task.Store, registry *agent.Registry, contexts ContextBuilder, runner Runner, opts Options, metrics *Metrics, logger *slog.Logger) *Orchestrator {
	if opts.Strategy == nil {
		opts.Strategy = Parallel{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    store,
		registry: registry,
		contexts: contexts,
		runner:   runner,
		opts:     opts,
		metrics:  metrics,
		logger:   logger,
	}
}

// Submit records input as a new task and executes it in the background.
// The returned state is the freshly created pending task.
func (o *Orchestrator) Submit(ctx context.Context, input task.Input) task.State {
	st := o.store.Create(input)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		// Execution outlives the submitting request.
		_, _ = o.Execute(context.WithoutCancel(ctx), st.ID)
	}()
	return st
}

// Wait blocks until every submitted task has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Execute runs task id to completion. Once the task is claimed it ends
// completed or failed and exactly one terminal event is published. A task
// that is not pending belongs to another run and is left untouched.
func (o *Orchestrator) Execute(ctx context.Context, id string) (task.Result, error) {
	state, err := o.store.Get(id)
	if err != nil {
		return task.Result{}, err
	}
	if err := o.store.UpdateStatus(id, task.StatusRunning); err != nil {
		return task.Result{}, err
	}
	logger := o.logger.With("task", id)

	o.metrics.taskStarted()
	result, err := o.execute(ctx, state, logger)
	if err != nil {
		o.metrics.taskFinished("failed")
		logger.Warn("task failed", "error", err)
		o.fail(id, err, logger)
		return task.Result{}, err
	}
	o.metrics.taskFinished("completed")
	logger.Info("task completed", "agents", len(result.AgentResults), "cost", result.TotalCost, "duration_ms", result.TotalDurationMs)
	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, state task.State, logger *slog.Logger) (task.Result, error) {
	id := state.ID
	input := state.Input

	if err := o.registry.RequireAny(); err != nil {
		return task.Result{}, err
	}

	limits := o.limitsFor(input.Constraints)
	if limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limits.Timeout)
		defer cancel()
	}
	if c := input.Constraints; limits.MaxAgents > 0 && (c == nil || c.MaxAgents == nil) {
		var withDefault task.Constraints
		if c != nil {
			withDefault = *c
		}
		n := limits.MaxAgents
		withDefault.MaxAgents = &n
		input.Constraints = &withDefault
	}

	rc, err := o.contexts.Build(ctx, input.Context)
	if err != nil {
		return task.Result{}, err
	}

	assignments, err := Decompose(input, o.registry)
	if err != nil {
		return task.Result{}, err
	}
	for i := range assignments {
		assignments[i].Context = repo.FilterForAgent(rc, assignments[i].Agent.Languages)
	}
	if err := o.store.SetSubtaskCount(id, len(assignments)); err != nil {
		return task.Result{}, err
	}
	logger.Info("task decomposed", "agents", len(assignments), "strategy", o.opts.Strategy.Name())

	var runner Runner = o.instrumented()
	if limits.MaxCost > 0 {
		runner = &budgetRunner{next: runner, limit: limits.MaxCost}
	}
	progress := func(agentName string, status task.ProgressStatus, message string) {
		if err := o.store.Publish(id, task.NewProgressEvent(id, agentName, status, message)); err != nil {
			logger.Warn("publish progress", "agent", agentName, "error", err)
		}
	}

	results, err := o.opts.Strategy.Execute(ctx, assignments, runner, progress)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return task.Result{}, fmt.Errorf("task timed out after %s: %w", limits.Timeout, err)
		}
		return task.Result{}, err
	}
	for _, r := range results {
		if err := o.store.AddSubtaskResult(id, r); err != nil {
			return task.Result{}, err
		}
	}

	merger := Merger{Duration: DurationMax}
	if _, ok := o.opts.Strategy.(Sequential); ok {
		merger.Duration = DurationSum
	}
	result := merger.Merge(results)
	if err := o.store.SetResult(id, result); err != nil {
		return task.Result{}, err
	}
	if err := o.store.Publish(id, task.NewResultEvent(id, result)); err != nil {
		logger.Warn("publish result", "error", err)
	}
	return result, nil
}

// fail records err on the task and publishes the terminal error event.
func (o *Orchestrator) fail(id string, err error, logger *slog.Logger) {
	msg := err.Error()
	if serr := o.store.SetError(id, msg); serr != nil {
		logger.Warn("record task error", "error", serr)
		return
	}
	if perr := o.store.Publish(id, task.NewErrorEvent(id, msg)); perr != nil {
		logger.Warn("publish error event", "error", perr)
	}
}

type limits struct {
	Timeout   time.Duration
	MaxCost   float64
	MaxAgents int
}

// limitsFor resolves task constraints over the daemon defaults.
func (o *Orchestrator) limitsFor(c *task.Constraints) limits {
	l := limits{Timeout: o.opts.Timeout, MaxCost: o.opts.MaxCost, MaxAgents: o.opts.MaxAgents}
	if c == nil {
		return l
	}
	if c.Timeout != nil {
		l.Timeout = time.Duration(*c.Timeout) * time.Second
	}
	if c.MaxCost != nil {
		l.MaxCost = *c.MaxCost
	}
	if c.MaxAgents != nil {
		l.MaxAgents = *c.MaxAgents
	}
	return l
}

func (o *Orchestrator) instrumented() Runner {
	return RunnerFunc(func(ctx context.Context, st task.Subtask, d agent.Descriptor, rc *repo.Context) (task.SubtaskResult, error) {
		start := time.Now()
		r, err := o.runner.Run(ctx, st, d, rc)
		o.metrics.observeAgent(d.Name, err, time.Since(start))
		return r, err
	})
}

// budgetRunner fails runs once accumulated cost passes limit.
type budgetRunner struct {
	next  Runner
	limit float64

	mu    sync.Mutex
	spent float64
}

func (b *budgetRunner) Run(ctx context.Context, st task.Subtask, d agent.Descriptor, rc *repo.Context) (task.SubtaskResult, error) {
	b.mu.Lock()
	spent := b.spent
	b.mu.Unlock()
	if spent >= b.limit {
		return task.SubtaskResult{}, fmt.Errorf("%w: spent $%.4f of $%.4f before %s", ErrBudgetExceeded, spent, b.limit, d.Name)
	}

	r, err := b.next.Run(ctx, st, d, rc)
	if err != nil {
		return r, err
	}

	b.mu.Lock()
	b.spent += r.Cost
	spent = b.spent
	b.mu.Unlock()
	if spent > b.limit {
		return task.SubtaskResult{}, fmt.Errorf("%w: spent $%.4f of $%.4f after %s", ErrBudgetExceeded, spent, b.limit, d.Name)
	}
	return r, nil
}
