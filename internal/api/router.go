package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	if s.recorder != nil {
		r.Use(s.metricsMiddleware)
	}

	r.Get("/health", s.handleHealth)
	if s.recorder != nil && s.metricsCfg.Enabled {
		path := s.metricsCfg.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, s.recorder.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/routines", func(r chi.Router) {
			r.Get("/", s.handleListRoutines)
			r.Get("/{id}", s.handleGetRoutine)
			r.With(s.authMiddleware).Post("/{id}/run", s.handleRunRoutine)
			r.With(s.authMiddleware).Post("/{id}/abort", s.handleAbortRoutine)
		})

		r.Route("/triggers", func(r chi.Router) {
			r.Get("/", s.handleListTriggers)
			r.Get("/{id}", s.handleGetTrigger)
			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)
				r.Post("/{id}/arm", s.handleArmTrigger)
				r.Post("/{id}/disarm", s.handleDisarmTrigger)
				r.Post("/{id}/fire", s.handleFireTrigger)
			})
		})

		r.With(s.authMiddleware).Post("/hooks/{id}", s.handleHook)

		r.Route("/executions", func(r chi.Router) {
			r.Get("/", s.handleListExecutions)
			r.Get("/{id}", s.handleGetExecution)
		})

		// WebSocket auth is checked in the handler: browsers cannot set headers.
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"ws_clients": s.hub.ClientCount(),
	})
}
