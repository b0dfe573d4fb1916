package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jinsol/flowline/internal/flowline"
	"github.com/jinsol/flowline/internal/services"
)

// updateRequest is the PATCH body for a workflow mutation. TagIDs is a
// pointer so "leave tags alone" (absent) and "clear all tags" (empty
// array) stay distinguishable.
type updateRequest struct {
	Workflow flowline.Workflow `json:"workflow"`
	TagIDs   *[]string         `json:"tagIds"`
}

// listWorkflows returns the workflows shared with the caller.
// GET /api/workflows?filter={"id":...,"name":...,"active":...}
func (s *Server) listWorkflows(w http.ResponseWriter, r *http.Request) {
	rawFilter := r.URL.Query().Get("filter")
	workflows, err := s.workflowSvc.List(r.Context(), userFrom(r), []byte(rawFilter))
	if err != nil {
		writeError(w, err)
		return
	}

	if total, err := s.workflowSvc.Count(r.Context()); err == nil {
		w.Header().Set("X-Total-Count", strconv.Itoa(total))
	}
	writeJSON(w, http.StatusOK, workflows)
}

// getWorkflow returns a single workflow.
// GET /api/workflows/{id}
func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.workflowSvc.Get(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// updateWorkflow applies a mutation through the orchestration sequence.
// PATCH /api/workflows/{id}
func (s *Server) updateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var tagIDs []string
	if req.TagIDs != nil {
		tagIDs = *req.TagIDs
		if tagIDs == nil {
			tagIDs = []string{}
		}
	}

	wf, err := s.workflowSvc.Update(r.Context(), userFrom(r), &req.Workflow, chi.URLParam(r, "id"), tagIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// activateWorkflow registers the workflow's triggers and persists the flag.
// POST /api/workflows/{id}/activate
func (s *Server) activateWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.workflowSvc.Activate(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// deactivateWorkflow removes the workflow's triggers and persists the flag.
// POST /api/workflows/{id}/deactivate
func (s *Server) deactivateWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.workflowSvc.Deactivate(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps service errors onto HTTP statuses. Activation runtime
// errors have no dedicated type; they arrive unmodified from the runtime
// and surface as 500 with their original message.
func writeError(w http.ResponseWriter, err error) {
	var vErr *services.ValidationError
	switch {
	case errors.Is(err, services.ErrWorkflowNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &vErr):
		http.Error(w, vErr.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrIntegrity):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrBadFilter):
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
