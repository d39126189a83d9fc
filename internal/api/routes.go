package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/health", h.Health)

		// Protected routes (auth required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))

			r.Get("/field-types", h.FieldTypes)
			r.Get("/snapshot", h.Snapshot)

			r.Route("/schemas", func(r chi.Router) {
				r.Post("/", h.CreateSchema)
				r.Get("/", h.ListSchemas)
				r.Route("/{schemaID}", func(r chi.Router) {
					r.Get("/", h.GetSchema)
					r.Put("/", h.PutSchema)
					r.Post("/operations", h.ApplyOperations)
					r.Post("/evaluate", h.EvaluateSchema)
					r.Get("/responses", h.ListResponses)
				})
			})

			r.Get("/responses/{responseID}", h.GetResponse)

			r.Post("/sessions", h.OpenSession)
			r.Route("/sessions/{sessionID}", func(r chi.Router) {
				r.Use(SessionMiddleware(h.sessions))
				r.Get("/", h.GetSession)
				r.Delete("/", h.CloseSession)
				r.Put("/values/{fieldID}", h.SetValue)
				r.Post("/validate", h.ValidateSession)
				r.Post("/submit", h.SubmitSession)
				r.Post("/retry", h.RetrySession)
			})
		})
	})

	return r
}
