// Package web provides the HTTP surface for the resource engine. Routing and
// status-code mapping live here; authentication is left to whatever sits in
// front (the principal arrives as a header).
package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kamostudio/restack/app"
)

// PrincipalHeader carries the acting principal's id. An absent header means
// the action runs unauthenticated.
const PrincipalHeader = "X-Restack-User"

// Handler provides the resource API endpoints.
type Handler struct {
	engine *app.Engine
	logger zerolog.Logger
}

// New creates a web handler.
func New(engine *app.Engine, logger zerolog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// Routes builds the router.
func (h *Handler) Routes(metricsEnabled bool) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/apps/{app}/resources/{type}", func(r chi.Router) {
		r.Get("/", h.Query)
		r.Post("/", h.Create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Put("/", h.Update)
			r.Patch("/", h.Patch)
			r.Delete("/", h.Delete)
			r.Get("/versions", h.Versions)
		})
	})

	return r
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
