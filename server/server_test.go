package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/GoCodeAlone/nexus/server/api"
	"github.com/GoCodeAlone/nexus/server/sse"
	"github.com/GoCodeAlone/nexus/task"
)

func submit(t *testing.T, env *testEnv) string {
	t.Helper()
	body := `{"action":"review","context":{"repoPath":"/repo"}}`
	resp, err := http.Post(env.srv.URL+"/tasks", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d", resp.StatusCode)
	}
	var created api.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return created.TaskID
}

func readAll(t *testing.T, body io.Reader) []task.Event {
	t.Helper()
	dec := sse.NewDecoder(body)
	var events []task.Event
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		if err != nil {
			t.Fatalf("decode stream: %v", err)
		}
		events = append(events, ev)
	}
}

func TestStream_UnknownTask(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.srv.URL + "/tasks/nope/stream")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestStream_LiveTask(t *testing.T) {
	env := newTestEnv(t)
	id := submit(t, env)

	resp, err := http.Get(env.srv.URL + "/tasks/" + id + "/stream")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != sse.ContentType {
		t.Errorf("Content-Type = %q, want %q", ct, sse.ContentType)
	}

	close(env.runner.release)
	events := readAll(t, resp.Body)

	if len(events) != 5 {
		t.Fatalf("got %d events, want 4 progress + 1 result: %+v", len(events), events)
	}
	for i, ev := range events {
		if ev.TaskID != id {
			t.Errorf("event %d TaskID = %q, want %q", i, ev.TaskID, id)
		}
	}
	last := events[len(events)-1]
	if last.Type != task.EventResult || last.Result == nil {
		t.Fatalf("last event = %+v, want result", last)
	}
	if !strings.Contains(last.Result.Summary, "**security-reviewer**: security-reviewer done") {
		t.Errorf("Summary = %q", last.Result.Summary)
	}
}

func TestStream_FinishedTask(t *testing.T) {
	env := newTestEnv(t)
	close(env.runner.release)
	id := submit(t, env)
	env.orch.Wait()

	resp, err := http.Get(env.srv.URL + "/tasks/" + id + "/stream")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()

	events := readAll(t, resp.Body)
	if len(events) != 1 {
		t.Fatalf("got %d events, want exactly the terminal frame", len(events))
	}
	if events[0].Type != task.EventResult || events[0].Result == nil {
		t.Errorf("event = %+v, want result", events[0])
	}
}

func TestGetTask_AfterCompletion(t *testing.T) {
	env := newTestEnv(t)
	close(env.runner.release)
	id := submit(t, env)
	env.orch.Wait()

	resp, err := http.Get(env.srv.URL + "/tasks/" + id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var st task.State
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Status != task.StatusCompleted {
		t.Errorf("Status = %q, want completed", st.Status)
	}
	if len(st.SubtaskResults) != 2 {
		t.Errorf("SubtaskResults = %d, want 2", len(st.SubtaskResults))
	}
	if st.Result == nil || st.Result.Approve == nil || !*st.Result.Approve {
		t.Errorf("Result = %+v, want approved", st.Result)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	close(env.runner.release)
	submit(t, env)
	env.orch.Wait()

	resp, err := http.Get(env.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `nexus_orchestrator_tasks_total{outcome="completed"} 1`) {
		t.Errorf("metrics missing completed task counter:\n%s", body)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.srv.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	var h api.Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Status != "ok" || h.Agents != 2 || h.Version != "test" {
		t.Errorf("health = %+v", h)
	}
}
