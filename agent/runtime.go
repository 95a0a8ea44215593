package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/GoCodeAlone/nexus/provider"
	"github.com/GoCodeAlone/nexus/repo"
	"github.com/GoCodeAlone/nexus/task"
)

// MaxFindings caps the findings kept from one review-shaped reply.
const MaxFindings = 10

// Model is the slice of the model gateway a Runner needs.
type Model interface {
	Structured(ctx context.Context, req provider.StructuredRequest) (*provider.StructuredResponse, error)
}

// Runner executes a single subtask: it renders the agent's prompts, asks the
// model for a JSON object and prices the call.
type Runner struct {
	model        Model
	defaultModel string
	logger       *slog.Logger
	now          func() time.Time
}

// NewRunner creates a Runner. defaultModel is used for agents that do not
// pin a model of their own.
func NewRunner(model Model, defaultModel string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{model: model, defaultModel: defaultModel, logger: logger, now: time.Now}
}

// Run executes st as agent d over rc.
func (r *Runner) Run(ctx context.Context, st task.Subtask, d Descriptor, rc *repo.Context) (task.SubtaskResult, error) {
	start := r.now()
	model := d.Model
	if model == "" {
		model = r.defaultModel
	}

	r.logger.Debug("agent run", "agent", d.Name, "subtask", st.ID, "model", model)
	resp, err := r.model.Structured(ctx, provider.StructuredRequest{
		Model:  model,
		System: SystemPrompt(d, rc),
		Prompt: UserPrompt(st.Description, rc),
		Schema: OutputSchemaFor(d),
	})
	if err != nil {
		return task.SubtaskResult{}, fmt.Errorf("agent %s: %w", d.Name, err)
	}

	output := resp.Output
	if d.HasCapability(CapabilityReview) {
		output = capFindings(output, MaxFindings)
	}
	usage := task.TokenUsage{Input: resp.Usage.InputTokens, Output: resp.Usage.OutputTokens}
	return task.SubtaskResult{
		AgentName:  d.Name,
		Output:     output,
		TokenUsage: usage,
		Cost:       provider.EstimateCost(resp.Usage, model),
		DurationMs: r.now().Sub(start).Milliseconds(),
	}, nil
}

// OutputSchemaFor returns the JSON schema requested from d.
func OutputSchemaFor(d Descriptor) map[string]any {
	switch {
	case len(d.OutputSchema) > 0:
		return d.OutputSchema
	case d.HasCapability(CapabilityReview):
		return task.ReviewOutputSchema
	default:
		return task.DefaultOutputSchema
	}
}

// SystemPrompt renders the system prompt for d, followed by the repository
// summary and the output constraints.
func SystemPrompt(d Descriptor, rc *repo.Context) string {
	var parts []string
	if strings.TrimSpace(d.SystemPrompt) != "" {
		parts = append(parts, d.SystemPrompt)
	} else {
		parts = append(parts, fmt.Sprintf("You are %s: %s", d.Name, d.Description))
	}

	if rc != nil {
		parts = append(parts, "\n\n## Repository Context")
		if rc.Branch != "" {
			parts = append(parts, "Branch: "+rc.Branch)
		}
		if len(rc.Languages) > 0 {
			parts = append(parts, "Languages: "+strings.Join(rc.Languages, ", "))
		}
		if len(rc.ChangedFiles) > 0 {
			parts = append(parts, "Changed files: "+strings.Join(rc.ChangedFiles, ", "))
		}
	}

	parts = append(parts,
		"\n\n## Important Constraints",
		fmt.Sprintf("- Return at most %d findings. Prioritize by severity.", MaxFindings),
		"- Only analyze the diff and changed files provided. Do NOT audit the entire codebase.",
		"- If the changes look good and have no issues, set approve to true and return an empty findings array.",
	)
	return strings.Join(parts, "\n")
}

// UserPrompt renders the task description, the diff and the changed file
// contents as markdown.
func UserPrompt(description string, rc *repo.Context) string {
	var b strings.Builder
	b.WriteString("## Task\n")
	b.WriteString(description)
	b.WriteString("\n")
	if rc == nil {
		return b.String()
	}

	if rc.GitDiff != "" {
		b.WriteString("\n## Git Diff\n```diff\n")
		b.WriteString(rc.GitDiff)
		b.WriteString("\n```\n")
	}
	if len(rc.FileContents) > 0 {
		b.WriteString("\n## Changed File Contents\n")
		// Changed-file order keeps the prompt deterministic.
		for _, f := range rc.ChangedFiles {
			content, ok := rc.FileContents[f]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "\n### %s\n```\n%s\n```\n", f, content)
		}
	}
	return b.String()
}

func capFindings(output map[string]any, limit int) map[string]any {
	findings, ok := output["findings"].([]any)
	if !ok || len(findings) <= limit {
		return output
	}
	out := make(map[string]any, len(output))
	for k, v := range output {
		out[k] = v
	}
	out["findings"] = findings[:limit]
	return out
}
