// Package api defines the REST API handlers and the interfaces they depend on.
package api

import (
	"context"

	"github.com/GoCodeAlone/nexus/agent"
	"github.com/GoCodeAlone/nexus/task"
)

// TaskStore is the task store as seen by the API.
type TaskStore interface {
	Get(id string) (task.State, error)
	List() []task.State
	Stats() task.Stats
}

// Submitter starts execution of a new task. Implemented by the orchestrator.
type Submitter interface {
	Submit(ctx context.Context, input task.Input) task.State
}

// AgentDirectory lists the registered agents.
type AgentDirectory interface {
	Infos() []agent.Info
	Len() int
}

// SubmitResponse is the body of a successful POST /tasks.
type SubmitResponse struct {
	TaskID string      `json:"taskId"`
	Status task.Status `json:"status"`
}

// Health is the body of GET /health.
type Health struct {
	Status  string     `json:"status"`
	Version string     `json:"version"`
	Agents  int        `json:"agents"`
	Tasks   task.Stats `json:"tasks"`
}
