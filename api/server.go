/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for external dashboards

ROUTES:
  /                     HTML dashboard
  /ws                   WebSocket reload channel
  /api/*                JSON API (see handlers.go)
  /metrics              Prometheus exposition
  /static/*             Dashboard assets

SECURITY NOTE:
  No authentication middleware. Write endpoints only affect how the pool is
  split between members, never the bank itself.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures optional routes and CORS.
type RouterOptions struct {
	AllowedOrigins []string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/", h.Dashboard)
	r.Get("/ws", h.Hub.ServeHTTP)
	r.Handle("/static/*", staticHandler())
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/ledger", h.GetLedger)
		r.Get("/members", h.ListMembers)
		r.Get("/journal", h.GetJournal)
		r.Get("/runs", h.ListRuns)
		r.Post("/reconcile", h.TriggerReconcile)
		r.Post("/transfers", h.CreateTransfer)
	})

	return r
}
