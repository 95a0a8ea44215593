// Package server implements the daemon's HTTP server: the REST API, the
// per-task event stream and the metrics endpoint.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GoCodeAlone/nexus/comms"
	"github.com/GoCodeAlone/nexus/config"
	"github.com/GoCodeAlone/nexus/server/api"
	"github.com/GoCodeAlone/nexus/server/sse"
	"github.com/GoCodeAlone/nexus/task"
)

// TaskStore is the store the server reads tasks and event streams from.
type TaskStore interface {
	api.TaskStore
	Subscribe(id string) (*comms.Subscription[task.Event], error)
}

// Server is the nexus daemon HTTP server.
type Server struct {
	cfg     config.Config
	mux     *http.ServeMux
	routes  sync.Once
	httpSrv *http.Server
	logger  *slog.Logger

	tasks     TaskStore
	submitter api.Submitter
	agents    api.AgentDirectory
	gatherer  prometheus.Gatherer

	version string
}

// New creates a new Server with the given config and logger.
func New(cfg config.Config, ver string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		logger:   logger,
		gatherer: prometheus.DefaultGatherer,
		version:  ver,
	}
}

// SetTaskStore attaches a task store to the server.
func (s *Server) SetTaskStore(store TaskStore) {
	s.tasks = store
}

// SetSubmitter attaches the component that executes submitted tasks.
func (s *Server) SetSubmitter(sub api.Submitter) {
	s.submitter = sub
}

// SetAgents attaches the agent directory to the server.
func (s *Server) SetAgents(agents api.AgentDirectory) {
	s.agents = agents
}

// SetGatherer selects the registry served on /metrics.
func (s *Server) SetGatherer(g prometheus.Gatherer) {
	s.gatherer = g
}

// Handler registers routes and returns the root handler.
func (s *Server) Handler() http.Handler {
	s.routes.Do(s.registerRoutes)
	return s.mux
}

// Start registers routes and begins listening on the configured address.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve registers routes and serves HTTP on ln until Stop is called.
func (s *Server) Serve(ln net.Listener) error {
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening", slog.String("addr", ln.Addr().String()))
	if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	h := &api.Handlers{
		Agents:    s.agents,
		Tasks:     s.tasks,
		Submitter: s.submitter,
		Logger:    s.logger,
		Version:   s.version,
	}
	h.RegisterRoutes(s.mux)

	s.mux.HandleFunc("GET /tasks/{id}/stream", s.handleStream)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

// handleStream streams a task's events as Server-Sent Events until its
// terminal event or until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, err := s.tasks.Get(id)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// A finished task's bus is closed, so its terminal frame is rebuilt from
	// the stored state.
	var sub *comms.Subscription[task.Event]
	if !st.Status.IsTerminal() {
		if sub, err = s.tasks.Subscribe(id); err != nil {
			api.WriteError(w, err)
			return
		}
		defer sub.Close()
	}

	w.Header().Set("Content-Type", sse.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := sse.NewEncoder(w)
	if sub == nil {
		if ev, ok := task.TerminalEvent(st); ok {
			if err := enc.Encode(ev); err != nil {
				s.logger.Debug("stream write", "task", id, "error", err)
			}
		}
		return
	}

	sent := 0
	for ev := range sub.All(r.Context()) {
		if err := enc.Encode(ev); err != nil {
			s.logger.Debug("stream client gone", "task", id, "error", err)
			return
		}
		sent++
	}
	if sent == 0 {
		// The task finished between Get and Subscribe.
		if st, err := s.tasks.Get(id); err == nil {
			if ev, ok := task.TerminalEvent(st); ok {
				_ = enc.Encode(ev)
			}
		}
	}
}
