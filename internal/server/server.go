package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mvidal/trellis/internal/actions"
	"github.com/mvidal/trellis/internal/catalog"
	"github.com/mvidal/trellis/internal/engine"
)

// Deps holds the dependencies for the API server.
type Deps struct {
	Catalog  *catalog.Catalog
	Registry actions.Registry
	Runner   *engine.Runner
	Logger   *slog.Logger
}

// Server exposes the workflow engine over HTTP: trigger runs, list workflows
// and actions, health.
type Server struct {
	deps Deps
	http *http.Server
}

// New creates a new API server listening on addr.
func New(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &Server{deps: deps}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler for the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/runs", s.handleCreateRun)
	mux.HandleFunc("GET /api/workflows", s.handleListWorkflows)
	mux.HandleFunc("GET /api/workflows/{name}", s.handleGetWorkflow)
	mux.HandleFunc("GET /api/workflows/{name}/diagram", s.handleWorkflowDiagram)
	mux.HandleFunc("GET /api/actions", s.handleListActions)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return mux
}

// ListenAndServe blocks serving HTTP until the listener fails or Shutdown is
// called.
func (s *Server) ListenAndServe() error {
	s.deps.Logger.Info("api server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
