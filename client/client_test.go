package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/nexus/agent"
	"github.com/GoCodeAlone/nexus/server/api"
	"github.com/GoCodeAlone/nexus/server/sse"
	"github.com/GoCodeAlone/nexus/task"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestSubmitTask(t *testing.T) {
	mux := http.NewServeMux()
	var got task.Input
	mux.HandleFunc("POST /tasks", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusCreated, api.SubmitResponse{TaskID: "t-1", Status: task.StatusPending})
	})
	c := newTestClient(t, mux)

	resp, err := c.SubmitTask(context.Background(), task.Input{
		Action:  "review",
		Context: task.Context{RepoPath: "/repo", Commit: "abc"},
		Agents:  []string{"security-reviewer"},
	})
	require.NoError(t, err)
	assert.Equal(t, "t-1", resp.TaskID)
	assert.Equal(t, task.StatusPending, resp.Status)
	assert.Equal(t, "abc", got.Context.Commit)
	assert.Equal(t, []string{"security-reviewer"}, got.Agents)
}

func TestGetAndListTasks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, task.State{ID: r.PathValue("id"), Status: task.StatusRunning})
	})
	mux.HandleFunc("GET /tasks", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []task.State{{ID: "a"}, {ID: "b"}})
	})
	c := newTestClient(t, mux)

	st, err := c.GetTask(context.Background(), "xyz")
	require.NoError(t, err)
	assert.Equal(t, "xyz", st.ID)
	assert.Equal(t, task.StatusRunning, st.Status)

	tasks, err := c.ListTasks(context.Background())
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestErrorBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tasks/{id}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found: nope"})
	})
	mux.HandleFunc("GET /agents", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "plain failure", http.StatusBadGateway)
	})
	c := newTestClient(t, mux)

	_, err := c.GetTask(context.Background(), "nope")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "task not found: nope", apiErr.Message)

	_, err = c.ListAgents(context.Background())
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "plain failure", apiErr.Message)
}

func TestHealthAndAgents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, api.Health{Status: "ok", Version: "1.2.3", Agents: 3})
	})
	mux.HandleFunc("GET /agents", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []agent.Info{{Name: "security-reviewer"}})
	})
	c := newTestClient(t, mux)

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", h.Version)
	assert.Equal(t, 3, h.Agents)

	agents, err := c.ListAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "security-reviewer", agents[0].Name)
}

func TestStreamTask(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tasks/{id}/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", sse.ContentType)
		enc := sse.NewEncoder(w)
		id := r.PathValue("id")
		_ = enc.Encode(task.NewProgressEvent(id, "a", task.ProgressStarted, "Running a..."))
		_ = enc.Encode(task.NewErrorEvent(id, "a failed"))
	})
	c := newTestClient(t, mux)

	dec, closer, err := c.StreamTask(context.Background(), "t-9")
	require.NoError(t, err)
	defer closer.Close()

	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "Running a...", ev.Message)

	ev, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, task.EventError, ev.Type)
	assert.Equal(t, "t-9", ev.TaskID)

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamTask_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tasks/{id}/stream", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
	})
	c := newTestClient(t, mux)

	_, _, err := c.StreamTask(context.Background(), "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NewServeMux())
	url := srv.URL
	srv.Close()

	_, err := New(url).Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is nexusd running?")
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}
