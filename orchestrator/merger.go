package orchestrator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/GoCodeAlone/nexus/task"
)

// DurationPolicy selects how per-agent durations combine into a task total.
type DurationPolicy int

const (
	// DurationMax reports the slowest agent, matching concurrent execution.
	DurationMax DurationPolicy = iota
	// DurationSum reports the sum, matching sequential execution.
	DurationSum
)

// Merger combines subtask results into a task result.
type Merger struct {
	Duration DurationPolicy
}

// Merge builds the task result from results, which must be in assignment
// order.
func (m Merger) Merge(results []task.SubtaskResult) task.Result {
	out := task.Result{
		AgentOutputs: make(map[string]map[string]any, len(results)),
		AgentResults: slices.Clone(results),
	}
	if out.AgentResults == nil {
		out.AgentResults = []task.SubtaskResult{}
	}

	var (
		summaries []string
		findings  []task.Finding
		seen      = make(map[string]bool)
		reviewed  bool
		approve   = true
	)
	for _, r := range results {
		out.TotalCost += r.Cost
		switch m.Duration {
		case DurationSum:
			out.TotalDurationMs += r.DurationMs
		default:
			out.TotalDurationMs = max(out.TotalDurationMs, r.DurationMs)
		}

		out.AgentOutputs[r.AgentName] = r.Output
		if s, ok := r.Output["summary"].(string); ok && s != "" {
			summaries = append(summaries, fmt.Sprintf("**%s**: %s", r.AgentName, s))
		}

		review, ok := task.AsReview(r.Output)
		if !ok {
			continue
		}
		reviewed = true
		approve = approve && review.Approve
		for _, f := range review.Findings {
			key := findingKey(f)
			if seen[key] {
				continue
			}
			seen[key] = true
			findings = append(findings, f)
		}
	}

	out.Summary = strings.Join(summaries, "\n\n")
	if reviewed {
		slices.SortStableFunc(findings, func(a, b task.Finding) int {
			return a.Severity.Rank() - b.Severity.Rank()
		})
		out.Findings = findings
		out.Approve = &approve
	}
	return out
}

func findingKey(f task.Finding) string {
	line := ""
	if f.Line != nil {
		line = fmt.Sprint(*f.Line)
	}
	return f.File + "\x00" + line + "\x00" + f.Message
}
