// Package task defines the task model and the in-memory task store that owns
// every task record and its live event stream.
package task

import (
	"errors"
	"time"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transition may leave s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a task in status s may move to next.
// A pending task may fail directly when it is rejected before it starts.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusFailed
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

var (
	// ErrNotFound is returned for an unknown task id.
	ErrNotFound = errors.New("task not found")
	// ErrInvalidTransition is returned when a status change would violate the lifecycle.
	ErrInvalidTransition = errors.New("invalid task status transition")
	// ErrTooManyResults is returned when a subtask result would exceed the decomposed subtask count.
	ErrTooManyResults = errors.New("subtask result count exceeds subtask count")
)

// Constraints are the caller's intended limits for a task.
type Constraints struct {
	MaxCost   *float64 `json:"maxCost,omitempty"`
	Timeout   *int     `json:"timeout,omitempty"` // seconds
	MaxAgents *int     `json:"maxAgents,omitempty"`
}

// Context identifies the repository state a task analyzes. Any field left
// empty is derived lazily by the context provider.
type Context struct {
	RepoPath     string   `json:"repoPath"`
	GitDiff      string   `json:"gitDiff,omitempty"`
	ChangedFiles []string `json:"changedFiles,omitempty"`
	Branch       string   `json:"branch,omitempty"`
	Languages    []string `json:"languages,omitempty"`
	Base         string   `json:"base,omitempty"`
	Commit       string   `json:"commit,omitempty"`
}

// Input is a submitted unit of work. It is never modified after submission.
type Input struct {
	Action      string       `json:"action"`
	Description string       `json:"description,omitempty"`
	Context     Context      `json:"context"`
	Agents      []string     `json:"agents,omitempty"`
	Constraints *Constraints `json:"constraints,omitempty"`
	PR          string       `json:"pr,omitempty"`
}

// Subtask is one agent's share of a task.
type Subtask struct {
	ID          string  `json:"id"`
	AgentName   string  `json:"agentName"`
	Description string  `json:"description"`
	Context     Context `json:"context"`
}

// TokenUsage tracks token consumption of one model call.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// SubtaskResult is the outcome of running one subtask.
type SubtaskResult struct {
	AgentName  string         `json:"agentName"`
	Output     map[string]any `json:"output"`
	TokenUsage TokenUsage     `json:"tokenUsage"`
	Cost       float64        `json:"cost"`
	DurationMs int64          `json:"durationMs"`
}

// Result is the merged outcome of a task.
type Result struct {
	Summary         string                    `json:"summary"`
	AgentOutputs    map[string]map[string]any `json:"agentOutputs"`
	TotalCost       float64                   `json:"totalCost"`
	TotalDurationMs int64                     `json:"totalDurationMs"`
	AgentResults    []SubtaskResult           `json:"agentResults"`

	// Findings and Approve aggregate review-shaped outputs only.
	Findings []Finding `json:"findings,omitempty"`
	Approve  *bool     `json:"approve,omitempty"`
}

// State is the store's record of a task.
type State struct {
	ID             string          `json:"id"`
	Input          Input           `json:"input"`
	Status         Status          `json:"status"`
	SubtaskResults []SubtaskResult `json:"subtaskResults"`
	Result         *Result         `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}
