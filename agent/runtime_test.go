package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/nexus/provider"
	"github.com/GoCodeAlone/nexus/repo"
	"github.com/GoCodeAlone/nexus/task"
)

type fakeModel struct {
	resp *provider.StructuredResponse
	err  error
	reqs []provider.StructuredRequest
}

func (f *fakeModel) Structured(_ context.Context, req provider.StructuredRequest) (*provider.StructuredResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func reviewReply(n int) map[string]any {
	findings := make([]any, n)
	for i := range findings {
		findings[i] = map[string]any{"severity": "info", "message": fmt.Sprintf("m%d", i)}
	}
	return map[string]any{"summary": "ok", "findings": findings, "approve": n == 0}
}

func TestRunner_Run(t *testing.T) {
	m := &fakeModel{resp: &provider.StructuredResponse{
		Output: reviewReply(0),
		Usage:  provider.Usage{InputTokens: 1000, OutputTokens: 200},
	}}
	r := NewRunner(m, "anthropic/claude-sonnet-4-5-20250929", nil)

	d := Descriptor{Name: "sec", Description: "security", Capabilities: []string{CapabilityReview}}
	rc := &repo.Context{Branch: "main", GitDiff: "+x", ChangedFiles: []string{"a.go"}, FileContents: map[string]string{"a.go": "package a"}}

	res, err := r.Run(context.Background(), task.Subtask{ID: "s1", AgentName: "sec", Description: "review it"}, d, rc)
	require.NoError(t, err)

	assert.Equal(t, "sec", res.AgentName)
	assert.Equal(t, task.TokenUsage{Input: 1000, Output: 200}, res.TokenUsage)
	assert.InDelta(t, 0.006, res.Cost, 1e-9)
	assert.GreaterOrEqual(t, res.DurationMs, int64(0))

	require.Len(t, m.reqs, 1)
	req := m.reqs[0]
	assert.Equal(t, "anthropic/claude-sonnet-4-5-20250929", req.Model)
	assert.Equal(t, task.ReviewOutputSchema, req.Schema)
	assert.Contains(t, req.System, "You are sec: security")
	assert.Contains(t, req.Prompt, "review it")
}

func TestRunner_AgentModelWins(t *testing.T) {
	m := &fakeModel{resp: &provider.StructuredResponse{Output: map[string]any{"summary": "s"}}}
	r := NewRunner(m, "anthropic/default", nil)

	_, err := r.Run(context.Background(), task.Subtask{}, Descriptor{Name: "x", Model: "openai/gpt-4o"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o", m.reqs[0].Model)
	assert.Equal(t, task.DefaultOutputSchema, m.reqs[0].Schema)
}

func TestRunner_CapsFindings(t *testing.T) {
	m := &fakeModel{resp: &provider.StructuredResponse{Output: reviewReply(15)}}
	r := NewRunner(m, "mock/m", nil)

	res, err := r.Run(context.Background(), task.Subtask{}, Descriptor{Name: "x", Capabilities: []string{CapabilityReview}}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Output["findings"], MaxFindings)
	assert.Len(t, m.resp.Output["findings"], 15, "model output is not modified in place")
}

func TestRunner_ModelError(t *testing.T) {
	boom := errors.New("boom")
	r := NewRunner(&fakeModel{err: boom}, "mock/m", nil)

	_, err := r.Run(context.Background(), task.Subtask{}, Descriptor{Name: "x"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "agent x")
}

func TestOutputSchemaFor(t *testing.T) {
	custom := map[string]any{"type": "object"}
	assert.Equal(t, custom, OutputSchemaFor(Descriptor{OutputSchema: custom, Capabilities: []string{CapabilityReview}}))
	assert.Equal(t, task.ReviewOutputSchema, OutputSchemaFor(Descriptor{Capabilities: []string{CapabilityReview}}))
	assert.Equal(t, task.DefaultOutputSchema, OutputSchemaFor(Descriptor{}))
}

func TestSystemPrompt(t *testing.T) {
	rc := &repo.Context{Branch: "feat", Languages: []string{"go", "python"}, ChangedFiles: []string{"a.go", "b.py"}}

	got := SystemPrompt(Descriptor{Name: "n", SystemPrompt: "Custom prompt."}, rc)
	assert.True(t, strings.HasPrefix(got, "Custom prompt.\n\n\n## Repository Context\n"))
	assert.Contains(t, got, "Branch: feat\n")
	assert.Contains(t, got, "Languages: go, python\n")
	assert.Contains(t, got, "Changed files: a.go, b.py\n")
	assert.Contains(t, got, "## Important Constraints\n- Return at most 10 findings.")
	assert.True(t, strings.HasSuffix(got, "return an empty findings array."))

	bare := SystemPrompt(Descriptor{Name: "n", Description: "d"}, nil)
	assert.True(t, strings.HasPrefix(bare, "You are n: d\n"))
	assert.NotContains(t, bare, "Repository Context")
}

func TestUserPrompt(t *testing.T) {
	rc := &repo.Context{
		GitDiff:      "+added",
		ChangedFiles: []string{"b.go", "gone.go", "a.go"},
		FileContents: map[string]string{"a.go": "A", "b.go": "B"},
	}
	got := UserPrompt("Review the change", rc)

	assert.True(t, strings.HasPrefix(got, "## Task\nReview the change\n"))
	assert.Contains(t, got, "## Git Diff\n```diff\n+added\n```\n")
	assert.Contains(t, got, "## Changed File Contents\n")
	assert.Less(t, strings.Index(got, "### b.go"), strings.Index(got, "### a.go"))
	assert.NotContains(t, got, "gone.go")

	assert.Equal(t, "## Task\njust this\n", UserPrompt("just this", nil))
	assert.NotContains(t, UserPrompt("x", &repo.Context{}), "Git Diff")
}
