package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kaptinlin/jsonrepair"
	"golang.org/x/time/rate"

	"github.com/GoCodeAlone/nexus/config"
)

const defaultClientCacheSize = 16

// ModelError tags a gateway failure with the provider and model it came from.
type ModelError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model gateway: %s/%s: %v", e.Provider, e.Model, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// Settings are the per-provider credentials and limits the Gateway uses to
// build backends.
type Settings struct {
	APIKey            string
	BaseURL           string
	RequestsPerMinute int
}

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	// Settings resolves a provider name to its settings. Nil means no
	// credentials are configured.
	Settings   func(name string) Settings
	CacheSize  int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// StructuredRequest asks a model for one JSON object shaped by Schema.
type StructuredRequest struct {
	Model     string // "provider/model"
	System    string
	Prompt    string
	Schema    map[string]any
	MaxTokens int
}

// StructuredResponse is a decoded model reply.
type StructuredResponse struct {
	Output   map[string]any
	Usage    Usage
	Provider string
	Model    string
}

type cacheEntry struct {
	provider Provider
	limiter  *rate.Limiter
}

// Gateway resolves "provider/model" ids to backends and decodes their
// replies as JSON objects. Backends are built lazily and cached.
type Gateway struct {
	cfg    GatewayConfig
	logger *slog.Logger

	mu         sync.Mutex
	registered map[string]cacheEntry
	cache      *lru.Cache[string, cacheEntry]
}

// NewGateway creates a Gateway from cfg.
func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Settings == nil {
		cfg.Settings = func(string) Settings { return Settings{} }
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultClientCacheSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	// lru.New only errors on a non-positive size, guarded above.
	cache, _ := lru.New[string, cacheEntry](cfg.CacheSize)
	return &Gateway{
		cfg:        cfg,
		logger:     logger,
		registered: make(map[string]cacheEntry),
		cache:      cache,
	}
}

// Register installs p as the backend for provider name, taking precedence
// over the built-in factory.
func (g *Gateway) Register(name string, p Provider) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.registered[name] = cacheEntry{provider: p, limiter: g.limiterFor(name)}
	g.cache.Remove(name)
}

// Structured sends one prompt and decodes the reply as a JSON object.
// Every failure is returned as a *ModelError.
func (g *Gateway) Structured(ctx context.Context, req StructuredRequest) (*StructuredResponse, error) {
	providerName, model, err := ParseModelID(req.Model)
	if err != nil {
		return nil, &ModelError{Provider: "unknown", Model: req.Model, Err: err}
	}
	fail := func(err error) (*StructuredResponse, error) {
		return nil, &ModelError{Provider: providerName, Model: model, Err: err}
	}

	entry, err := g.resolve(providerName)
	if err != nil {
		return fail(err)
	}
	if entry.limiter != nil {
		if err := entry.limiter.Wait(ctx); err != nil {
			return fail(fmt.Errorf("rate limit: %w", err))
		}
	}

	system, err := withSchema(req.System, req.Schema)
	if err != nil {
		return fail(err)
	}

	start := time.Now()
	resp, err := entry.provider.Chat(ctx, Request{
		Model:     model,
		System:    system,
		Messages:  []Message{{Role: RoleUser, Content: req.Prompt}},
		MaxTokens: req.MaxTokens,
		JSON:      true,
	})
	if err != nil {
		return fail(err)
	}
	g.logger.Debug("model call complete",
		"provider", providerName, "model", model,
		"input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens,
		"duration", time.Since(start))

	output, err := DecodeObject(resp.Content)
	if err != nil {
		return fail(err)
	}
	return &StructuredResponse{
		Output:   output,
		Usage:    resp.Usage,
		Provider: providerName,
		Model:    model,
	}, nil
}

func (g *Gateway) resolve(name string) (cacheEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if entry, ok := g.registered[name]; ok {
		return entry, nil
	}
	if entry, ok := g.cache.Get(name); ok {
		return entry, nil
	}

	p, err := g.build(name)
	if err != nil {
		return cacheEntry{}, err
	}
	entry := cacheEntry{provider: p, limiter: g.limiterFor(name)}
	g.cache.Add(name, entry)
	return entry, nil
}

func (g *Gateway) build(name string) (Provider, error) {
	s := g.cfg.Settings(name)
	openAICompat := func(defaultBase string, needsKey bool) (Provider, error) {
		if needsKey && s.APIKey == "" {
			return nil, fmt.Errorf("%w: no API key configured for provider %q", config.ErrInvalid, name)
		}
		base := s.BaseURL
		if base == "" {
			base = defaultBase
		}
		return NewOpenAIProvider(OpenAIConfig{
			Name:       name,
			APIKey:     s.APIKey,
			BaseURL:    base,
			HTTPClient: g.cfg.HTTPClient,
		}), nil
	}

	switch name {
	case "anthropic":
		if s.APIKey == "" {
			return nil, fmt.Errorf("%w: no API key configured for provider %q", config.ErrInvalid, name)
		}
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:     s.APIKey,
			BaseURL:    s.BaseURL,
			HTTPClient: g.cfg.HTTPClient,
		}), nil
	case "openai":
		return openAICompat(defaultOpenAIBaseURL, true)
	case "openrouter":
		return openAICompat(openRouterBaseURL, true)
	case "google":
		return openAICompat(googleBaseURL, true)
	case "ollama":
		return openAICompat(ollamaBaseURL, false)
	default:
		if s.BaseURL != "" {
			return openAICompat(s.BaseURL, false)
		}
		return nil, fmt.Errorf("%w: unknown provider %q", config.ErrInvalid, name)
	}
}

func (g *Gateway) limiterFor(name string) *rate.Limiter {
	rpm := g.cfg.Settings(name).RequestsPerMinute
	if rpm <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
}

func withSchema(system string, schema map[string]any) (string, error) {
	if schema == nil {
		return system, nil
	}
	raw, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal output schema: %w", err)
	}
	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n\n## Output Format\nRespond with a single JSON object that matches this JSON schema. Return only the JSON object.\n```json\n")
	b.Write(raw)
	b.WriteString("\n```")
	return b.String(), nil
}

// DecodeObject extracts a JSON object from model text. It tolerates
// surrounding prose and markdown fences and repairs malformed JSON.
func DecodeObject(text string) (map[string]any, error) {
	text = stripFences(strings.TrimSpace(text))
	if text == "" {
		return nil, errors.New("empty model response")
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err == nil && out != nil {
		return out, nil
	}

	candidate := text
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		candidate = text[start : end+1]
		if err := json.Unmarshal([]byte(candidate), &out); err == nil && out != nil {
			return out, nil
		}
	} else if start >= 0 {
		candidate = text[start:]
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil || out == nil {
		return nil, fmt.Errorf("decode model response: not a JSON object")
	}
	return out, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
