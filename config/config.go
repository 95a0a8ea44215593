// Package config defines the Nexus daemon configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid marks configuration problems: unreadable files, malformed YAML,
// unknown providers and out-of-range values.
var ErrInvalid = errors.New("invalid configuration")

const (
	// DirName is the per-user configuration directory under $HOME.
	DirName = ".nexus"
	// FileName is the config file inside DirName.
	FileName = "config.yaml"
	// AgentsDirName is the agents directory inside DirName.
	AgentsDirName = "agents"
)

// Config is the top-level Nexus configuration.
type Config struct {
	Server       ServerConfig              `json:"server" yaml:"server"`
	DefaultModel string                    `json:"default_model" yaml:"default_model"` // "provider/model"
	Providers    map[string]ProviderConfig `json:"providers,omitempty" yaml:"providers"`
	AgentsDir    string                    `json:"agents_dir" yaml:"agents_dir"`
	WatchAgents  bool                      `json:"watch_agents" yaml:"watch_agents"`
	Strategy     string                    `json:"strategy" yaml:"strategy"` // "parallel" or "sequential"
	MaxCost      float64                   `json:"max_cost" yaml:"max_cost"` // USD per task, 0 disables
	Timeout      int                       `json:"timeout" yaml:"timeout"`   // seconds per task, 0 disables
	MaxAgents    int                       `json:"max_agents" yaml:"max_agents"`
	LogLevel     string                    `json:"log_level" yaml:"log_level"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"` // listen address, e.g., "127.0.0.1:19200"
}

// ProviderConfig holds credentials and limits for one model provider.
type ProviderConfig struct {
	APIKey            string `json:"api_key,omitempty" yaml:"api_key"`
	BaseURL           string `json:"base_url,omitempty" yaml:"base_url"`
	RequestsPerMinute int    `json:"requests_per_minute,omitempty" yaml:"requests_per_minute"`
}

// apiKeyEnv maps provider names to the environment variable consulted when
// no key is configured.
var apiKeyEnv = map[string]string{
	"anthropic":  "ANTHROPIC_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"google":     "GOOGLE_API_KEY",
}

// Dir returns the per-user configuration directory.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DirName
	}
	return filepath.Join(home, DirName)
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), FileName)
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: "127.0.0.1:19200",
		},
		DefaultModel: "anthropic/claude-sonnet-4-5-20250929",
		Providers:    map[string]ProviderConfig{},
		AgentsDir:    filepath.Join(Dir(), AgentsDirName),
		WatchAgents:  true,
		Strategy:     "parallel",
		MaxCost:      1.0,
		Timeout:      300,
		MaxAgents:    10,
		LogLevel:     "info",
	}
}

// Load reads a YAML config file over DefaultConfig and validates it.
// A missing file is reported as ErrInvalid wrapping fs.ErrNotExist.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found, run 'nexus init' first: %w", ErrInvalid, path, err)
		}
		return nil, fmt.Errorf("%w: read config %s: %w", ErrInvalid, path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config %s: %v", ErrInvalid, path, err)
	}
	cfg.AgentsDir = expandHome(cfg.AgentsDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Validate reports the first out-of-range value as ErrInvalid.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Server.Addr) == "":
		return fmt.Errorf("%w: server.addr is empty", ErrInvalid)
	case c.Strategy != "parallel" && c.Strategy != "sequential":
		return fmt.Errorf("%w: strategy %q must be parallel or sequential", ErrInvalid, c.Strategy)
	case c.MaxCost < 0:
		return fmt.Errorf("%w: max_cost must not be negative", ErrInvalid)
	case c.Timeout < 0:
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalid)
	case c.MaxAgents < 0:
		return fmt.Errorf("%w: max_agents must not be negative", ErrInvalid)
	case !strings.Contains(c.DefaultModel, "/"):
		return fmt.Errorf("%w: default_model %q must be provider/model", ErrInvalid, c.DefaultModel)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log_level %q must be debug, info, warn or error", ErrInvalid, c.LogLevel)
	}
	for name, p := range c.Providers {
		if p.RequestsPerMinute < 0 {
			return fmt.Errorf("%w: providers.%s.requests_per_minute must not be negative", ErrInvalid, name)
		}
	}
	return nil
}

// Provider returns the settings for name with the API key falling back to
// the provider's conventional environment variable.
func (c *Config) Provider(name string) ProviderConfig {
	p := c.Providers[name]
	if p.APIKey == "" {
		if env, ok := apiKeyEnv[name]; ok {
			p.APIKey = os.Getenv(env)
		}
	}
	return p
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
