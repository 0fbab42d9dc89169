package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/kiranshivaraju/iomjobs/internal/api/response"
	"github.com/kiranshivaraju/iomjobs/internal/pipeline"
	"github.com/kiranshivaraju/iomjobs/internal/store"
	"github.com/kiranshivaraju/iomjobs/pkg/models"
)

// Pinger checks connectivity to a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health.
// Database or cache failures give 503. Scrape health is reported alongside
// and never changes the status code.
func NewHealthHandler(db Pinger, c Pinger, logs LogReader, now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		recent, err := logs.ListScrapeLogs(r.Context(), store.ScrapeLogFilter{
			URLTypes: []string{models.URLTypeFull, models.URLTypeRecent},
			Limit:    pipeline.HealthWindow + 1,
		})
		if err != nil {
			slog.Warn("health: listing scrape logs failed", "error", err)
		}
		scrape := pipeline.CheckHealth(recent, now())

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
			"scrape":   scrape,
		})
	}
}
