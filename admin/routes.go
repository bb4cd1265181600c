package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/maxpert/powder/telemetry"
)

// RegisterRoutes registers the admin API, Prometheus metrics and pprof on mux
func RegisterRoutes(mux *http.ServeMux, handlers *AdminHandlers, secret string) {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(secret))

	// Health is the only endpoint load balancers need
	r.Get("/health", handlers.handleHealth)
	r.Get("/stats", handlers.handleStats)

	r.Get("/databases", handlers.handleListDatabases)
	r.Get("/databases/{database}/schemas", handlers.handleListSchemas)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", handlers.handleListSessions)
		r.Get("/{sessionID}", handlers.handleGetSession)
		r.Delete("/{sessionID}", handlers.handleCloseSession)
	})

	r.Route("/queries", func(r chi.Router) {
		r.Get("/", handlers.handleListQueries)
		r.Get("/{queryID}", handlers.handleGetQuery)
		r.Post("/{queryID}/abort", handlers.handleAbortQuery)
	})

	// Mount chi router under /admin
	mux.Handle("/admin", http.RedirectHandler("/admin/", http.StatusMovedPermanently))
	mux.Handle("/admin/", http.StripPrefix("/admin", r))

	if metrics := telemetry.GetMetricsHandler(); metrics != nil {
		mux.Handle("/metrics", metrics)
	}

	profiler := chi.NewRouter()
	profiler.Use(AuthMiddleware(secret))
	profiler.Mount("/", middleware.Profiler())
	mux.Handle("/debug/", http.StripPrefix("/debug", profiler))

	log.Info().Msg("Admin endpoints enabled at /admin/*")
}
