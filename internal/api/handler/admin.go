package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	mw "github.com/kiranshivaraju/iomjobs/internal/api/middleware"
	"github.com/kiranshivaraju/iomjobs/internal/api/response"
	"github.com/kiranshivaraju/iomjobs/internal/pipeline"
	"github.com/kiranshivaraju/iomjobs/pkg/models"
)

const maxReparseLimit = 1000

// ScrapeRunner runs the listing scrape.
type ScrapeRunner interface {
	Run(ctx context.Context, mode string) (*pipeline.Result, error)
}

// Enricher runs an enrichment-only batch.
type Enricher interface {
	Enrich(ctx context.Context) (*pipeline.EnrichResult, error)
}

// Reparser re-parses stored detail pages.
type Reparser interface {
	Reparse(ctx context.Context, limit int) (*pipeline.ReparseResult, error)
}

// NewScrapeHandler returns an http.HandlerFunc for POST /api/v1/admin/scrape.
// The run is synchronous and keeps going if the caller disconnects.
func NewScrapeHandler(runner ScrapeRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Type string `json:"type"`
		}
		if err := response.DecodeJSON(r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		switch req.Type {
		case "", models.URLTypeFull, models.URLTypeRecent:
		default:
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				`type must be "full" or "recent"`, map[string]string{"type": req.Type})
			return
		}

		slog.Info("scrape triggered", "type", req.Type, "key_name", mw.KeyName(r))
		result, err := runner.Run(context.WithoutCancel(r.Context()), req.Type)
		if err != nil {
			writeRunError(w, err)
			return
		}
		response.JSON(w, result)
	}
}

// NewEnrichHandler returns an http.HandlerFunc for POST /api/v1/admin/enrich.
func NewEnrichHandler(enricher Enricher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("enrichment triggered", "key_name", mw.KeyName(r))
		result, err := enricher.Enrich(context.WithoutCancel(r.Context()))
		if err != nil {
			writeRunError(w, err)
			return
		}
		response.JSON(w, result)
	}
}

// NewReparseHandler returns an http.HandlerFunc for POST /api/v1/admin/reparse.
// An optional ?limit= caps the number of jobs.
func NewReparseHandler(reparser Reparser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxReparseLimit {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"limit must be between 1 and 1000", nil)
				return
			}
			limit = n
		}

		slog.Info("reparse triggered", "limit", limit, "key_name", mw.KeyName(r))
		result, err := reparser.Reparse(context.WithoutCancel(r.Context()), limit)
		if err != nil {
			writeRunError(w, err)
			return
		}
		response.JSON(w, result)
	}
}

func writeRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		response.Error(w, http.StatusConflict, "RUN_IN_PROGRESS",
			"Another scrape run is in progress", nil)
	case errors.Is(err, pipeline.ErrInvalidMode):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	default:
		slog.Error("run failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
