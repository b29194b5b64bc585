/**
 * @description
 * HTTP router setup for the membership scheduler's operations surface using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new Chi router and registers the scheduler routes.
func NewRouter(h *Handler, internalKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Membership scheduler is healthy"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalKey))
		r.Get("/jobs", h.handleListJobs)
		r.Post("/jobs/{job}/run", h.handleRunJob)
		r.Get("/levels/{levelID}/counts", h.handleGetLevelCounts)
		r.Get("/members/{memberID}", h.handleGetMember)
	})

	return r
}
