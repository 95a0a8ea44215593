package provider

import (
	"fmt"
	"strings"

	"github.com/GoCodeAlone/nexus/config"
)

// Default base URLs for OpenAI-compatible providers.
const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	ollamaBaseURL     = "http://localhost:11434/v1"
	googleBaseURL     = "https://generativelanguage.googleapis.com/v1beta/openai"
)

// ParseModelID splits a "provider/model" id. The model part may itself
// contain slashes, as OpenRouter ids do ("openrouter/meta-llama/llama-3").
func ParseModelID(id string) (providerName, model string, err error) {
	providerName, model, ok := strings.Cut(id, "/")
	if !ok || providerName == "" || model == "" {
		return "", "", fmt.Errorf("%w: model id %q must be provider/model", config.ErrInvalid, id)
	}
	return providerName, model, nil
}

// price is USD per million tokens.
type price struct {
	input  float64
	output float64
}

var pricing = map[string]price{
	"claude-sonnet-4-5-20250929": {input: 3, output: 15},
	"claude-haiku-3-5-20241022":  {input: 0.8, output: 4},
	"gpt-4o":                     {input: 2.5, output: 10},
	"gpt-4o-mini":                {input: 0.15, output: 0.6},
	"gemini-2.0-flash":           {input: 0.075, output: 0.3},
}

// EstimateCost returns the USD cost of usage on model. model may carry a
// provider prefix. Unknown models cost 0.
func EstimateCost(usage Usage, model string) float64 {
	if _, m, err := ParseModelID(model); err == nil {
		model = m
	}
	p, ok := pricing[model]
	if !ok {
		return 0
	}
	return (float64(usage.InputTokens)*p.input + float64(usage.OutputTokens)*p.output) / 1_000_000
}
