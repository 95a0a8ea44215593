package agent

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	manifestJSON     = "manifest.json"
	manifestYAML     = "manifest.yaml"
	systemPromptFile = "system-prompt.md"
)

//go:embed templates
var templates embed.FS

// LoadDir reads every agent under dir. Each sub-directory holding a
// manifest.json or manifest.yaml becomes one agent, ordered by directory
// name. A missing dir yields no agents. Malformed manifests are skipped and
// reported together in the returned error alongside the agents that loaded.
func LoadDir(dir string) ([]Descriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("agent: read agents dir %s: %w", dir, err)
	}

	var (
		agents []Descriptor
		errs   []error
	)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		d, ok, err := loadAgent(filepath.Join(dir, e.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		if d.Name == "" {
			d.Name = e.Name()
		}
		agents = append(agents, d)
	}
	return agents, errors.Join(errs...)
}

// loadAgent reads one agent directory. ok is false when the directory has
// no manifest.
func loadAgent(dir string) (Descriptor, bool, error) {
	var d Descriptor

	if data, err := os.ReadFile(filepath.Join(dir, manifestJSON)); err == nil {
		if err := json.Unmarshal(data, &d); err != nil {
			return d, false, fmt.Errorf("agent: parse %s: %w", filepath.Join(dir, manifestJSON), err)
		}
	} else if data, err := os.ReadFile(filepath.Join(dir, manifestYAML)); err == nil {
		if err := yaml.Unmarshal(data, &d); err != nil {
			return d, false, fmt.Errorf("agent: parse %s: %w", filepath.Join(dir, manifestYAML), err)
		}
	} else {
		return d, false, nil
	}

	if prompt, err := os.ReadFile(filepath.Join(dir, systemPromptFile)); err == nil {
		d.SystemPrompt = string(prompt)
	}
	return d, true, nil
}

// InstallDefaults copies the bundled agents into dir, leaving agents that
// already exist untouched. It returns the names of the agents it installed.
func InstallDefaults(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("agent: create agents dir: %w", err)
	}
	entries, err := templates.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("agent: read bundled agents: %w", err)
	}

	var installed []string
	for _, e := range entries {
		dest := filepath.Join(dir, e.Name())
		if _, err := os.Stat(dest); err == nil {
			continue
		}
		sub, err := fs.Sub(templates, "templates/"+e.Name())
		if err != nil {
			return installed, fmt.Errorf("agent: bundled agent %s: %w", e.Name(), err)
		}
		if err := os.CopyFS(dest, sub); err != nil {
			return installed, fmt.Errorf("agent: install %s: %w", e.Name(), err)
		}
		installed = append(installed, e.Name())
	}
	return installed, nil
}
