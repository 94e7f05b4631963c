package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mvidal/trellis/internal/diagram"
	"github.com/mvidal/trellis/pkg/schema"
)

// runRequest is the body of POST /api/runs.
type runRequest struct {
	Workflow string `json:"workflow"`
	Query    string `json:"query"`
}

// workflowSummary is one row of GET /api/workflows.
type workflowSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Risk        string `json:"risk,omitempty"`
	Nodes       int    `json:"nodes"`
	Schedule    string `json:"schedule,omitempty"`
}

// handleCreateRun triggers a workflow run and returns its full execution
// result. The run itself never produces an HTTP error: failures are reported
// inside the result body.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Workflow == "" {
		writeError(w, http.StatusBadRequest, "missing required field 'workflow'")
		return
	}

	entry, err := s.deps.Catalog.Lookup(req.Workflow)
	if err != nil {
		var engErr *schema.EngineError
		if errors.As(err, &engErr) && engErr.Code == schema.ErrCodeNotFound {
			writeError(w, http.StatusNotFound, engErr.Message)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// An absent query falls back to the catalog entry's default; a workflow
	// with no default requires the caller to supply one.
	query := req.Query
	if query == "" {
		if entry.DefaultQuery == "" {
			writeError(w, http.StatusBadRequest, "missing required field 'query' and workflow has no default query")
			return
		}
		query = entry.DefaultQuery
	}

	result := s.deps.Runner.Run(r.Context(), entry.Definition, query)
	writeJSON(w, http.StatusOK, result)
}

// handleListWorkflows lists the catalog.
func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	entries := s.deps.Catalog.List()
	summaries := make([]workflowSummary, 0, len(entries))
	for _, e := range entries {
		summaries = append(summaries, workflowSummary{
			Name:        e.Definition.Name,
			Description: e.Definition.Description,
			Risk:        e.Definition.Risk,
			Nodes:       len(e.Definition.Nodes),
			Schedule:    e.Schedule,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": summaries})
}

// handleGetWorkflow returns one catalog entry in full.
func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	entry, err := s.deps.Catalog.Lookup(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "workflow "+name+" not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleWorkflowDiagram renders a workflow's dependency graph as a Mermaid
// flowchart in plain text.
func (s *Server) handleWorkflowDiagram(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	entry, err := s.deps.Catalog.Lookup(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "workflow "+name+" not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(diagram.RenderMermaid(entry.Definition, nil)))
}

// handleListActions lists the registered action handlers with their schemas.
func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"actions": s.deps.Registry.List()})
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"workflows": s.deps.Catalog.Len(),
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
