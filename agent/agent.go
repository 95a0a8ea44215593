// Package agent defines agent descriptors, the registry that holds them and
// the runner that executes one subtask against a model.
package agent

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrNoAgents is returned when the registry is empty at execution time.
	ErrNoAgents = errors.New("no agents available: run 'nexus init' to install default agents, or add agents to ~/.nexus/agents/")
	// ErrAgentNotFound is matched by every NotFoundError.
	ErrAgentNotFound = errors.New("agent not found")
)

// NotFoundError names an explicitly requested agent that is not registered.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("agent not found: %s", e.Name) }

// Is lets errors.Is(err, ErrAgentNotFound) match any NotFoundError.
func (e *NotFoundError) Is(target error) bool { return target == ErrAgentNotFound }

// CapabilityReview marks agents whose output follows the review schema.
const CapabilityReview = "review"

// Descriptor is an agent's manifest plus its optional system prompt.
type Descriptor struct {
	Name             string         `json:"name" yaml:"name"`
	Version          string         `json:"version" yaml:"version"`
	Description      string         `json:"description" yaml:"description"`
	Capabilities     []string       `json:"capabilities" yaml:"capabilities"`
	Languages        []string       `json:"languages" yaml:"languages"`
	Tools            []string       `json:"tools,omitempty" yaml:"tools"`
	Model            string         `json:"model,omitempty" yaml:"model"`
	MaxContextTokens int            `json:"maxContextTokens,omitempty" yaml:"maxContextTokens"`
	OutputSchema     map[string]any `json:"outputSchema,omitempty" yaml:"outputSchema"`

	// SystemPrompt comes from system-prompt.md next to the manifest.
	SystemPrompt string `json:"-" yaml:"-"`
}

// HasCapability reports whether the agent declares capability.
func (d Descriptor) HasCapability(capability string) bool {
	return slices.Contains(d.Capabilities, capability)
}

// Info provides read-only metadata about an agent.
type Info struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
	Languages    []string `json:"languages"`
	Model        string   `json:"model"`
}

// Info returns the public projection of d.
func (d Descriptor) Info() Info {
	return Info{
		Name:         d.Name,
		Description:  d.Description,
		Capabilities: nonNil(d.Capabilities),
		Languages:    nonNil(d.Languages),
		Model:        d.Model,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
