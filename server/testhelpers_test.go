package server

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GoCodeAlone/nexus/agent"
	"github.com/GoCodeAlone/nexus/config"
	"github.com/GoCodeAlone/nexus/orchestrator"
	"github.com/GoCodeAlone/nexus/repo"
	"github.com/GoCodeAlone/nexus/task"
)

// staticContext satisfies orchestrator.ContextBuilder without touching git.
type staticContext struct{}

func (staticContext) Build(_ context.Context, tc task.Context) (*repo.Context, error) {
	return &repo.Context{RepoPath: tc.RepoPath, Branch: "main"}, nil
}

// gatedRunner blocks every run until release is closed.
type gatedRunner struct {
	release chan struct{}
}

func (g *gatedRunner) Run(ctx context.Context, _ task.Subtask, d agent.Descriptor, _ *repo.Context) (task.SubtaskResult, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return task.SubtaskResult{}, ctx.Err()
	}
	return task.SubtaskResult{
		AgentName: d.Name,
		Output:    map[string]any{"summary": d.Name + " done", "findings": []any{}, "approve": true},
	}, nil
}

type testEnv struct {
	store  *task.MemoryStore
	orch   *orchestrator.Orchestrator
	runner *gatedRunner
	srv    *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	reg := prometheus.NewRegistry()
	env := &testEnv{
		store:  task.NewMemoryStore(),
		runner: &gatedRunner{release: make(chan struct{})},
	}
	agents := agent.NewRegistry(
		agent.Descriptor{Name: "security-reviewer", Capabilities: []string{agent.CapabilityReview}},
		agent.Descriptor{Name: "code-quality", Capabilities: []string{agent.CapabilityReview}},
	)
	env.orch = orchestrator.New(env.store, agents, staticContext{}, env.runner,
		orchestrator.Options{}, orchestrator.MustNewMetrics(reg), slog.Default())

	s := New(*config.DefaultConfig(), "test", slog.Default())
	s.SetTaskStore(env.store)
	s.SetSubmitter(env.orch)
	s.SetAgents(agents)
	s.SetGatherer(reg)

	env.srv = httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		env.srv.Close()
		env.orch.Wait()
	})
	return env
}
