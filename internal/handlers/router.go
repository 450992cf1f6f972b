package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter wires every handler under CORS for the given origins.
func NewRouter(views *ViewHandler, routes *RouteHandler, health *HealthHandler, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/health", health.Health)
	r.Get("/healthz", health.Live)

	r.Route("/api", func(r chi.Router) {
		r.Get("/routes", routes.GetRoutes)
		r.Get("/routes.geojson", routes.GetGeoJSON)

		r.Route("/views", func(r chi.Router) {
			r.Get("/", views.List)
			r.Post("/", views.Mount)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", views.Get)
				r.Delete("/", views.Unmount)
				r.Put("/location", views.Location)
				r.Post("/enter", views.Enter)
				r.Post("/leave", views.Leave)
				r.Get("/markers", views.Markers)
				r.Get("/ws", views.Stream)
			})
		})
	})
	return r
}
