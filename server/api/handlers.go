package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/GoCodeAlone/nexus/agent"
	"github.com/GoCodeAlone/nexus/repo"
	"github.com/GoCodeAlone/nexus/task"
)

// Handlers bundles all REST API handler dependencies.
type Handlers struct {
	Agents    AgentDirectory
	Tasks     TaskStore
	Submitter Submitter
	Logger    *slog.Logger
	Version   string
}

// RegisterRoutes registers the task, agent and health routes on mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /tasks", h.createTask)
	mux.HandleFunc("GET /tasks", h.listTasks)
	mux.HandleFunc("GET /tasks/{id}", h.getTask)

	mux.HandleFunc("GET /agents", h.listAgents)

	mux.HandleFunc("GET /health", h.health)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Task handlers ---

func (h *Handlers) createTask(w http.ResponseWriter, r *http.Request) {
	var input task.Input
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validateInput(input); err != nil {
		WriteError(w, err)
		return
	}

	st := h.Submitter.Submit(r.Context(), input)
	h.Logger.Info("task submitted", "task", st.ID, "action", input.Action, "agents", input.Agents)
	writeJSON(w, http.StatusCreated, SubmitResponse{TaskID: st.ID, Status: st.Status})
}

func validateInput(in task.Input) error {
	if strings.TrimSpace(in.Action) == "" {
		return badRequest("action is required")
	}
	if strings.TrimSpace(in.Context.RepoPath) == "" {
		return badRequest("context.repoPath is required")
	}
	if in.Context.Base != "" && in.Context.Commit != "" {
		return badRequest("context.base and context.commit are mutually exclusive")
	}
	for _, ref := range []string{in.Context.Base, in.Context.Commit} {
		if ref == "" {
			continue
		}
		if err := repo.ValidateRef(ref); err != nil {
			return badRequest("%v", err)
		}
	}
	if c := in.Constraints; c != nil {
		switch {
		case c.MaxCost != nil && *c.MaxCost < 0:
			return badRequest("constraints.maxCost must not be negative")
		case c.Timeout != nil && *c.Timeout < 0:
			return badRequest("constraints.timeout must not be negative")
		case c.MaxAgents != nil && *c.MaxAgents < 1:
			return badRequest("constraints.maxAgents must be at least 1")
		}
	}
	return nil
}

func (h *Handlers) listTasks(w http.ResponseWriter, _ *http.Request) {
	tasks := h.Tasks.List()
	if tasks == nil {
		tasks = []task.State{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handlers) getTask(w http.ResponseWriter, r *http.Request) {
	st, err := h.Tasks.Get(r.PathValue("id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// --- Agent handlers ---

func (h *Handlers) listAgents(w http.ResponseWriter, _ *http.Request) {
	agents := h.Agents.Infos()
	if agents == nil {
		agents = []agent.Info{}
	}
	writeJSON(w, http.StatusOK, agents)
}

// --- Health ---

func (h *Handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Health{
		Status:  "ok",
		Version: h.Version,
		Agents:  h.Agents.Len(),
		Tasks:   h.Tasks.Stats(),
	})
}
