// Package orchestrator turns a submitted task into per-agent subtasks, runs
// them under an execution strategy and merges their results.
package orchestrator

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/nexus/agent"
	"github.com/GoCodeAlone/nexus/repo"
	"github.com/GoCodeAlone/nexus/task"
)

var (
	// ErrTooManyAgents is returned when decomposition selects more agents
	// than the task's maxAgents constraint allows.
	ErrTooManyAgents = errors.New("too many agents for task")
	// ErrBudgetExceeded is returned once a task's spend passes its maxCost.
	ErrBudgetExceeded = errors.New("task budget exceeded")
)

// Assignment pairs a subtask with the agent that runs it and the repository
// context that agent sees.
type Assignment struct {
	Subtask task.Subtask
	Agent   agent.Descriptor
	Context *repo.Context
}

// Decompose splits input into one subtask per selected agent. Named agents
// are taken in the given order, duplicates included. A nil list selects
// every registered agent in registry order; an empty list selects none.
func Decompose(input task.Input, registry *agent.Registry) ([]Assignment, error) {
	var agents []agent.Descriptor
	if input.Agents != nil {
		for _, name := range input.Agents {
			d, ok := registry.ByName(name)
			if !ok {
				return nil, &agent.NotFoundError{Name: name}
			}
			agents = append(agents, d)
		}
	} else {
		agents = registry.ListAll()
	}

	if c := input.Constraints; c != nil && c.MaxAgents != nil && len(agents) > *c.MaxAgents {
		return nil, fmt.Errorf("%w: %d selected, limit %d", ErrTooManyAgents, len(agents), *c.MaxAgents)
	}

	out := make([]Assignment, 0, len(agents))
	for _, d := range agents {
		out = append(out, Assignment{
			Subtask: task.Subtask{
				ID:          uuid.NewString(),
				AgentName:   d.Name,
				Description: describe(input, d.Name),
				Context:     input.Context,
			},
			Agent: d,
		})
	}
	return out, nil
}

func describe(input task.Input, agentName string) string {
	desc := input.Description
	if desc == "" {
		desc = fmt.Sprintf("%s — analyzed by %s", input.Action, agentName)
	}
	ref := input.Context.Base
	if ref == "" {
		ref = input.Context.Commit
	}
	if ref != "" {
		desc += fmt.Sprintf(" (scope: changes in %s; analyze only the diff, not the whole repository)", ref)
	}
	return desc
}
