package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Account endpoints (no session required)
		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/forgot", s.handleForgot)
		r.Post("/auth/reset", s.handleReset)
		r.Post("/auth/delete", s.handleDelete)

		// WebSocket upgrade authenticates with a single-use ticket in the
		// query string; browser clients cannot send an Authorization header
		// on the upgrade request.
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires a valid session
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Deletes are routed twice: DELETE for native clients, and a
			// POST alias for browsers, since the CORS preflight only
			// allows GET and POST.
			r.Route("/switches", func(r chi.Router) {
				r.Get("/", s.handleListSwitches)
				r.Post("/", s.handleSetSwitch)
				r.Get("/{name}", s.handleGetSwitch)
				r.Delete("/{name}", s.handleDeleteSwitch)
				r.Post("/{name}/delete", s.handleDeleteSwitch)
			})

			r.Route("/connections", func(r chi.Router) {
				r.Get("/", s.handleListConnections)
				r.Post("/", s.handleUpsertConnection)
				r.Delete("/{deviceID}", s.handleDeleteConnection)
				r.Post("/{deviceID}/delete", s.handleDeleteConnection)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
