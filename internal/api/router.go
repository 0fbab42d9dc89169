package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/iomjobs/internal/api/middleware"
	"github.com/kiranshivaraju/iomjobs/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	// Metrics serves the Prometheus exposition format. Optional.
	Metrics http.Handler

	HealthHandler  http.HandlerFunc
	ListJobs       http.HandlerFunc
	GetJob         http.HandlerFunc
	ScrapeHandler  http.HandlerFunc
	EnrichHandler  http.HandlerFunc
	ReparseHandler http.HandlerFunc
	ListScrapeLogs http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public endpoints
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(mw.ScopeRead))

			r.Get("/api/v1/jobs", orNotImplemented(deps.ListJobs))
			r.Get("/api/v1/jobs/{guid}", orNotImplemented(deps.GetJob))
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(mw.ScopeAdmin))

			r.Post("/api/v1/admin/scrape", orNotImplemented(deps.ScrapeHandler))
			r.Post("/api/v1/admin/enrich", orNotImplemented(deps.EnrichHandler))
			r.Post("/api/v1/admin/reparse", orNotImplemented(deps.ReparseHandler))
			r.Get("/api/v1/admin/scrape-logs", orNotImplemented(deps.ListScrapeLogs))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
