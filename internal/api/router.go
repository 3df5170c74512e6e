package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
//
// The route layout follows the Web of Things REST protocol for a single
// thing: the description at the root, then properties, actions and
// events beneath it.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Health check for deployment probes; not part of the WoT surface.
	r.Get("/health", s.handleHealth)

	r.Get("/", s.handleThingDescription)

	r.Route("/properties", func(r chi.Router) {
		r.Get("/", s.handleListProperties)
		r.Get("/{name}", s.handleGetProperty)
		r.Put("/{name}", s.handleSetProperty)
	})

	r.Route("/actions", func(r chi.Router) {
		r.Get("/", s.handleListActions)
		r.Post("/", s.handleRequestAction)
		r.Get("/{name}", s.handleListActionsByName)
		r.Post("/{name}", s.handleRequestAction)

		r.Route("/{name}/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetAction)
			r.Delete("/", s.handleCancelAction)
		})
	})

	r.Route("/events", func(r chi.Router) {
		r.Get("/", s.handleListEvents)
		r.Get("/{name}", s.handleListEventsByName)
		r.Get("/{name}/history", s.handleEventHistory)
	})

	// WebSocket push channel
	r.Get("/ws", s.handleWebSocket)

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
