package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/iomjobs/internal/api/response"
	"github.com/kiranshivaraju/iomjobs/internal/store"
	"github.com/kiranshivaraju/iomjobs/pkg/models"
)

// LogReader lists scrape logs, newest first.
type LogReader interface {
	ListScrapeLogs(ctx context.Context, filter store.ScrapeLogFilter) ([]*models.ScrapeLog, error)
}

var knownURLTypes = map[string]bool{
	models.URLTypeFull:       true,
	models.URLTypeRecent:     true,
	models.URLTypeEnrichment: true,
	models.URLTypeReparse:    true,
}

// NewListScrapeLogsHandler returns an http.HandlerFunc for
// GET /api/v1/admin/scrape-logs. ?type= takes a comma separated list.
func NewListScrapeLogsHandler(logs LogReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var filter store.ScrapeLogFilter
		if v := r.URL.Query().Get("type"); v != "" {
			for _, t := range strings.Split(v, ",") {
				t = strings.TrimSpace(t)
				if !knownURLTypes[t] {
					response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
						"unknown scrape log type", map[string]string{"type": t})
					return
				}
				filter.URLTypes = append(filter.URLTypes, t)
			}
		}

		limit, ok := intParam(r.URL.Query().Get("limit"), defaultPageSize, 1, maxPageSize)
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be between 1 and 100", nil)
			return
		}
		filter.Limit = limit

		list, err := logs.ListScrapeLogs(r.Context(), filter)
		if err != nil {
			slog.Error("list scrape logs failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		if list == nil {
			list = []*models.ScrapeLog{}
		}
		response.JSON(w, list)
	}
}
