// Package api exposes the workflow service over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/jinsol/flowline/internal/services"
)

type Server struct {
	workflowSvc *services.WorkflowService
	jwtSecret   []byte
}

// NewServer creates the HTTP server around the workflow service.
func NewServer(workflowSvc *services.WorkflowService, jwtSecret string) *Server {
	return &Server{
		workflowSvc: workflowSvc,
		jwtSecret:   []byte(jwtSecret),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireUser)
		r.Route("/workflows", func(r chi.Router) {
			r.Get("/", s.listWorkflows)
			r.Get("/{id}", s.getWorkflow)
			r.Patch("/{id}", s.updateWorkflow)
			r.Post("/{id}/activate", s.activateWorkflow)
			r.Post("/{id}/deactivate", s.deactivateWorkflow)
		})
	})
	return r
}
