package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(middleware.RequestSize(maxRequestBodySize))

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, r.Method+" not allowed on "+r.URL.Path)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Macro library, addressed by name
		r.Route("/macros", func(r chi.Router) {
			r.Get("/", s.handleListMacros)
			r.Post("/", s.handleSaveMacro)
			r.Delete("/", s.handleClearLibrary)
			r.Get("/export", s.handleExportLibrary)
			r.Post("/import", s.handleImportLibrary)
			r.Get("/{name}", s.handleGetMacro)
		})

		// Library entries, addressed by stable ID
		r.Route("/entries/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetEntry)
			r.Patch("/", s.handleRenameEntry)
			r.Delete("/", s.handleRemoveEntry)
			r.Post("/select", s.handleSelectEntry)
		})

		// Engine control for the local vessel
		r.Route("/engine", func(r chi.Router) {
			r.Get("/", s.handleEngineSnapshot)
			r.Post("/load", s.handleEngineLoad)
			r.Post("/abort", s.handleEngineAbort)
			r.Post("/reset", s.handleEngineReset)
			r.Delete("/", s.handleEngineUnload)
			r.Get("/runs", s.handleListRuns)
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"vessel_id": s.engine.VesselID(),
		"macros":    s.library.Count(),
	})
}
