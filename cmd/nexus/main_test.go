package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/nexus/agent"
	"github.com/GoCodeAlone/nexus/internal/version"
	"github.com/GoCodeAlone/nexus/server/api"
	"github.com/GoCodeAlone/nexus/server/sse"
	"github.com/GoCodeAlone/nexus/task"
)

// stubDaemon answers the API with canned data and records submissions.
func stubDaemon(t *testing.T, submitted *task.Input) string {
	t.Helper()
	line := 12
	approve := false
	result := task.Result{
		Summary:   "**security-reviewer**: one problem",
		TotalCost: 0.0123,
		Findings: []task.Finding{
			{Severity: task.SeverityCritical, Message: "hardcoded secret", File: "x.go", Line: &line, Suggestion: "use env"},
		},
		Approve:      &approve,
		AgentResults: []task.SubtaskResult{{AgentName: "security-reviewer"}},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /tasks", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(submitted)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(api.SubmitResponse{TaskID: "t-1", Status: task.StatusPending})
	})
	mux.HandleFunc("GET /tasks/{id}/stream", func(w http.ResponseWriter, r *http.Request) {
		enc := sse.NewEncoder(w)
		_ = enc.Encode(task.NewProgressEvent("t-1", "security-reviewer", task.ProgressStarted, "Running security-reviewer..."))
		_ = enc.Encode(task.NewProgressEvent("t-1", "security-reviewer", task.ProgressCompleted, "security-reviewer completed"))
		_ = enc.Encode(task.NewResultEvent("t-1", result))
	})
	mux.HandleFunc("GET /tasks", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]task.State{{ID: "t-1", Status: task.StatusCompleted, Input: task.Input{Action: "review"}}})
	})
	mux.HandleFunc("GET /agents", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]agent.Info{{Name: "security-reviewer", Capabilities: []string{"review"}, Description: "finds bugs"}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

func execute(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--server", server, "--no-color"}, args...))
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		// Flag values persist on the package-level commands between runs.
		runCmd.Flags().VisitAll(func(f *pflag.Flag) {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				_ = sv.Replace(nil)
			} else {
				_ = f.Value.Set(f.DefValue)
			}
			f.Changed = false
		})
	})
	_, err := rootCmd.ExecuteContextC(context.Background())
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	var submitted task.Input
	url := stubDaemon(t, &submitted)
	repo := t.TempDir()

	out, err := execute(t, url, "run", "--repo", repo, "--base", "main", "--agents", "security-reviewer", "--max-cost", "0.5")
	require.NoError(t, err)

	assert.Equal(t, "review", submitted.Action)
	assert.Equal(t, repo, submitted.Context.RepoPath)
	assert.Equal(t, "main", submitted.Context.Base)
	assert.Equal(t, []string{"security-reviewer"}, submitted.Agents)
	require.NotNil(t, submitted.Constraints)
	require.NotNil(t, submitted.Constraints.MaxCost)
	assert.Equal(t, 0.5, *submitted.Constraints.MaxCost)
	assert.Nil(t, submitted.Constraints.Timeout)

	assert.Contains(t, out, "Submitted task t-1")
	assert.Contains(t, out, "Running security-reviewer...")
	assert.Contains(t, out, "Critical")
	assert.Contains(t, out, "x.go:12 hardcoded secret")
	assert.Contains(t, out, "→ use env")
	assert.Contains(t, out, "Changes requested")
	assert.Contains(t, out, "Cost: $0.0123")
}

func TestRunCommand_RejectsBaseAndCommit(t *testing.T) {
	var submitted task.Input
	url := stubDaemon(t, &submitted)

	_, err := execute(t, url, "run", "--repo", t.TempDir(), "--base", "main", "--commit", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
	assert.Empty(t, submitted.Action)
}

func TestListCommands(t *testing.T) {
	var submitted task.Input
	url := stubDaemon(t, &submitted)

	out, err := execute(t, url, "tasks")
	require.NoError(t, err)
	assert.Contains(t, out, "t-1")
	assert.Contains(t, out, "completed")

	out, err = execute(t, url, "agents")
	require.NoError(t, err)
	assert.Contains(t, out, "security-reviewer")
	assert.Contains(t, out, "any")
}

func TestVersionCheck(t *testing.T) {
	gh := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/GoCodeAlone/nexus/releases/latest", r.URL.Path)
		_, _ = w.Write([]byte(`{"tag_name":"v9.9.9","assets":[` +
			`{"name":"nexus_linux_x86_64","browser_download_url":"http://example.invalid/linux"},` +
			`{"name":"nexus_linux_arm64","browser_download_url":"http://example.invalid/linux-arm"},` +
			`{"name":"nexus_darwin_x86_64","browser_download_url":"http://example.invalid/darwin"},` +
			`{"name":"nexus_darwin_arm64","browser_download_url":"http://example.invalid/darwin-arm"},` +
			`{"name":"nexus_windows_x86_64.exe","browser_download_url":"http://example.invalid/windows"}]}`))
	}))
	t.Cleanup(gh.Close)
	t.Setenv("NEXUS_UPDATE_API", gh.URL)

	prev := version.Version
	version.Version = "v1.0.0"
	t.Cleanup(func() {
		version.Version = prev
		_ = versionCmd.Flags().Set("check", "false")
	})

	out, err := execute(t, "http://127.0.0.1:1", "version", "--check")
	require.NoError(t, err)
	assert.Contains(t, out, "nexus v1.0.0")
	assert.Contains(t, out, "nexus v9.9.9 is available")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "a b", truncate("a\nb", 5))
	assert.True(t, strings.HasSuffix(truncate(strings.Repeat("é", 20), 5), "…"))
}
