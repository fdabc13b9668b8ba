// Package api wires the HTTP surface of the service.
package api

import (
	"github.com/elizandromoreira/feed-control-sub000/internal/api/handlers"
	"github.com/elizandromoreira/feed-control-sub000/internal/api/middleware"
	"github.com/elizandromoreira/feed-control-sub000/pkg/interfaces"
	"github.com/go-chi/chi/v5"
)

// RouterOptions toggles the optional middleware.
type RouterOptions struct {
	AuthEnabled bool
	JWTSecret   string
}

// NewRouter assembles the chi router with the ambient middleware chain
// and the store routes.
func NewRouter(h *handlers.StoreHandler, logger interfaces.LoggerPort, opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Metrics)

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		if opts.AuthEnabled {
			r.Use(middleware.Auth(opts.JWTSecret))
		}

		r.Route("/stores", func(r chi.Router) {
			r.Get("/", h.ListStores)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetStore)
				r.Post("/sync", h.StartSync)
				r.Post("/sync/cancel", h.CancelSync)
				r.Get("/progress", h.GetProgress)
				r.Post("/schedule", h.ActivateSchedule)
				r.Delete("/schedule", h.CancelSchedule)
				r.Get("/submissions", h.ListSubmissions)
			})
		})
	})

	return r
}
