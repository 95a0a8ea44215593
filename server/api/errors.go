package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/GoCodeAlone/nexus/agent"
	"github.com/GoCodeAlone/nexus/config"
	"github.com/GoCodeAlone/nexus/orchestrator"
	"github.com/GoCodeAlone/nexus/task"
)

// ErrBadRequest marks request validation failures.
var ErrBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// StatusFor maps an error to the HTTP status reported for it.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, task.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, agent.ErrNoAgents):
		return http.StatusServiceUnavailable
	case errors.Is(err, config.ErrInvalid):
		return http.StatusInternalServerError
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, agent.ErrAgentNotFound),
		errors.Is(err, orchestrator.ErrTooManyAgents):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as a JSON error body with its mapped status.
func WriteError(w http.ResponseWriter, err error) {
	writeError(w, StatusFor(err), err.Error())
}
