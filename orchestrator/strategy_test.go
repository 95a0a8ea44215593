package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/nexus/agent"
	"github.com/GoCodeAlone/nexus/repo"
	"github.com/GoCodeAlone/nexus/task"
)

func assignments(agentNames ...string) []Assignment {
	out := make([]Assignment, 0, len(agentNames))
	for _, n := range agentNames {
		out = append(out, Assignment{
			Subtask: task.Subtask{ID: "st-" + n, AgentName: n},
			Agent:   agent.Descriptor{Name: n},
		})
	}
	return out
}

type progressLog struct {
	mu     sync.Mutex
	events []string
}

func (p *progressLog) record(agentName string, status task.ProgressStatus, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, string(status)+"|"+message)
}

func (p *progressLog) all() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func TestParallel_ResultsInAssignmentOrder(t *testing.T) {
	delays := map[string]time.Duration{"slow": 60 * time.Millisecond, "mid": 30 * time.Millisecond, "fast": 0}
	runner := RunnerFunc(func(_ context.Context, st task.Subtask, d agent.Descriptor, _ *repo.Context) (task.SubtaskResult, error) {
		time.Sleep(delays[d.Name])
		return task.SubtaskResult{AgentName: d.Name}, nil
	})

	var log progressLog
	results, err := Parallel{}.Execute(context.Background(), assignments("slow", "mid", "fast"), runner, log.record)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "slow", results[0].AgentName)
	assert.Equal(t, "mid", results[1].AgentName)
	assert.Equal(t, "fast", results[2].AgentName)

	events := log.all()
	assert.Len(t, events, 6)
	assert.Contains(t, events, "started|Running slow...")
	assert.Contains(t, events, "completed|fast completed")
}

func TestParallel_RunsConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32
	runner := RunnerFunc(func(context.Context, task.Subtask, agent.Descriptor, *repo.Context) (task.SubtaskResult, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(40 * time.Millisecond)
		inFlight.Add(-1)
		return task.SubtaskResult{}, nil
	})

	_, err := Parallel{}.Execute(context.Background(), assignments("a", "b", "c"), runner, nil)
	require.NoError(t, err)
	assert.Greater(t, peak.Load(), int32(1))
}

func TestParallel_FirstErrorCancelsOthers(t *testing.T) {
	boom := errors.New("model down")
	runner := RunnerFunc(func(ctx context.Context, _ task.Subtask, d agent.Descriptor, _ *repo.Context) (task.SubtaskResult, error) {
		if d.Name == "bad" {
			return task.SubtaskResult{}, boom
		}
		select {
		case <-ctx.Done():
			return task.SubtaskResult{}, ctx.Err()
		case <-time.After(5 * time.Second):
			return task.SubtaskResult{AgentName: d.Name}, nil
		}
	})

	var log progressLog
	start := time.Now()
	results, err := Parallel{}.Execute(context.Background(), assignments("slow", "bad"), runner, log.record)
	require.ErrorIs(t, err, boom)
	assert.Nil(t, results)
	assert.Less(t, time.Since(start), 2*time.Second, "in-flight runners observe cancellation")
	assert.Contains(t, log.all(), "failed|bad failed: model down")
}

func TestSequential_InOrderAndStopsAtFailure(t *testing.T) {
	var ran []string
	runner := RunnerFunc(func(_ context.Context, _ task.Subtask, d agent.Descriptor, _ *repo.Context) (task.SubtaskResult, error) {
		ran = append(ran, d.Name)
		if d.Name == "b" {
			return task.SubtaskResult{}, errors.New("nope")
		}
		return task.SubtaskResult{AgentName: d.Name}, nil
	})

	var log progressLog
	_, err := Sequential{}.Execute(context.Background(), assignments("a", "b", "c"), runner, log.record)
	require.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, ran)
	assert.Equal(t, []string{
		"started|Running a...",
		"completed|a completed",
		"started|Running b...",
		"failed|b failed: nope",
	}, log.all())

	ran = nil
	results, err := Sequential{}.Execute(context.Background(), assignments("a", "c"), runner, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ran)
	assert.Len(t, results, 2)
}

func TestStrategyByName(t *testing.T) {
	s, err := StrategyByName("parallel")
	require.NoError(t, err)
	assert.Equal(t, "parallel", s.Name())

	s, err = StrategyByName("sequential")
	require.NoError(t, err)
	assert.Equal(t, "sequential", s.Name())

	_, err = StrategyByName("random")
	assert.Error(t, err)
}
