package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/nexus/task"
)

func finding(severity, file string, line int, msg string) map[string]any {
	return map[string]any{"severity": severity, "file": file, "line": line, "message": msg}
}

func TestMerge_Totals(t *testing.T) {
	results := []task.SubtaskResult{
		{AgentName: "a", Output: map[string]any{"summary": "A ok"}, Cost: 0.01, DurationMs: 100},
		{AgentName: "b", Output: map[string]any{"summary": ""}, Cost: 0.02, DurationMs: 300},
		{AgentName: "c", Output: map[string]any{"summary": "C ok"}, Cost: 0.03, DurationMs: 200},
	}

	got := Merger{}.Merge(results)
	assert.InDelta(t, 0.06, got.TotalCost, 1e-9)
	assert.Equal(t, int64(300), got.TotalDurationMs)
	assert.Equal(t, "**a**: A ok\n\n**c**: C ok", got.Summary)
	assert.Len(t, got.AgentOutputs, 3)
	assert.Equal(t, results, got.AgentResults)
	assert.Nil(t, got.Approve, "no review-shaped outputs")
	assert.Empty(t, got.Findings)

	assert.Equal(t, int64(600), Merger{Duration: DurationSum}.Merge(results).TotalDurationMs)
}

func TestMerge_Empty(t *testing.T) {
	got := Merger{}.Merge(nil)
	assert.Equal(t, "", got.Summary)
	assert.Zero(t, got.TotalCost)
	assert.Zero(t, got.TotalDurationMs)
	assert.NotNil(t, got.AgentOutputs)
	assert.NotNil(t, got.AgentResults)
}

func TestMerge_Findings(t *testing.T) {
	results := []task.SubtaskResult{
		{AgentName: "sec", Output: map[string]any{
			"summary":  "two issues",
			"approve":  false,
			"findings": []any{finding("info", "a.go", 1, "nit"), finding("critical", "b.go", 9, "sql injection")},
		}},
		{AgentName: "quality", Output: map[string]any{
			"summary":  "one issue",
			"approve":  true,
			"findings": []any{finding("warning", "a.go", 3, "long func"), finding("critical", "b.go", 9, "sql injection")},
		}},
		{AgentName: "docs", Output: map[string]any{"summary": "free form"}},
	}

	got := Merger{}.Merge(results)
	require.Len(t, got.Findings, 3, "duplicate finding collapsed")
	assert.Equal(t, task.SeverityCritical, got.Findings[0].Severity)
	assert.Equal(t, task.SeverityWarning, got.Findings[1].Severity)
	assert.Equal(t, task.SeverityInfo, got.Findings[2].Severity)
	require.NotNil(t, got.Findings[0].Line)
	assert.Equal(t, 9, *got.Findings[0].Line)

	require.NotNil(t, got.Approve)
	assert.False(t, *got.Approve)
	assert.Equal(t, map[string]any{"summary": "free form"}, got.AgentOutputs["docs"])
}

func TestMerge_MistypedConfidenceKeepsFindings(t *testing.T) {
	results := []task.SubtaskResult{
		{AgentName: "sec", Output: map[string]any{
			"approve":    false,
			"confidence": "high",
			"findings":   []any{finding("critical", "a.go", 3, "m")},
		}},
	}

	got := Merger{}.Merge(results)
	require.Len(t, got.Findings, 1)
	assert.Equal(t, "m", got.Findings[0].Message)
	require.NotNil(t, got.Approve)
	assert.False(t, *got.Approve)
}

func TestMerge_AllApprove(t *testing.T) {
	results := []task.SubtaskResult{
		{AgentName: "a", Output: map[string]any{"approve": true, "findings": []any{}}},
		{AgentName: "b", Output: map[string]any{"approve": true, "findings": []any{finding("mystery", "", 0, "odd"), finding("info", "", 0, "fyi")}}},
	}
	got := Merger{}.Merge(results)
	require.NotNil(t, got.Approve)
	assert.True(t, *got.Approve)
	require.Len(t, got.Findings, 2)
	assert.Equal(t, "fyi", got.Findings[0].Message, "unknown severities sort last")
}
