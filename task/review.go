package task

import "encoding/json"

// Severity classifies a review finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Rank orders severities most severe first. Unknown severities sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	case SeverityInfo:
		return 2
	default:
		return 3
	}
}

// Finding is a single issue reported by a review-shaped agent output.
type Finding struct {
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	File       string   `json:"file,omitempty"`
	Line       *int     `json:"line,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// ReviewOutput is the typed view of an agent output that carries findings.
type ReviewOutput struct {
	Summary    string    `json:"summary"`
	Findings   []Finding `json:"findings"`
	Confidence float64   `json:"confidence"`
	Approve    bool      `json:"approve"`
}

// AsReview returns the review view of output when it has a "findings" array
// and a boolean "approve". The generic map stays the primary contract; this
// is only an enrichment. Findings that do not decode are skipped, and a
// summary or confidence of the wrong type is left zero.
func AsReview(output map[string]any) (*ReviewOutput, bool) {
	if output == nil {
		return nil, false
	}
	items, ok := output["findings"].([]any)
	if !ok {
		return nil, false
	}
	approve, ok := output["approve"].(bool)
	if !ok {
		return nil, false
	}

	review := &ReviewOutput{Approve: approve, Findings: make([]Finding, 0, len(items))}
	review.Summary, _ = output["summary"].(string)
	review.Confidence, _ = output["confidence"].(float64)
	for _, item := range items {
		if f, ok := decodeFinding(item); ok {
			review.Findings = append(review.Findings, f)
		}
	}
	return review, true
}

// decodeFinding round-trips item through JSON so numbers and optional
// fields decode the same way regardless of how the map was built.
func decodeFinding(item any) (Finding, bool) {
	if _, ok := item.(map[string]any); !ok {
		return Finding{}, false
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return Finding{}, false
	}
	var f Finding
	if err := json.Unmarshal(raw, &f); err != nil {
		return Finding{}, false
	}
	return f, true
}

// ReviewOutputSchema is the JSON schema requested from review agents.
var ReviewOutputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"summary": map[string]any{"type": "string"},
		"findings": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"severity":   map[string]any{"type": "string", "enum": []string{"critical", "warning", "info"}},
					"file":       map[string]any{"type": "string"},
					"line":       map[string]any{"type": "number"},
					"message":    map[string]any{"type": "string"},
					"suggestion": map[string]any{"type": "string"},
				},
				"required": []string{"severity", "message"},
			},
			"maxItems": 10,
		},
		"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		"approve":    map[string]any{"type": "boolean"},
	},
	"required": []string{"summary", "findings", "confidence", "approve"},
}

// DefaultOutputSchema is requested from agents that declare no output schema.
var DefaultOutputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"summary":    map[string]any{"type": "string"},
		"data":       map[string]any{},
		"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
	},
	"required": []string{"summary"},
}
