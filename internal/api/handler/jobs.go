package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/iomjobs/internal/api/response"
	"github.com/kiranshivaraju/iomjobs/internal/cache"
	"github.com/kiranshivaraju/iomjobs/internal/store"
	"github.com/kiranshivaraju/iomjobs/pkg/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	JobCacheTTL     = 5 * time.Minute
)

// JobReader is the read side of the job store.
type JobReader interface {
	GetJob(ctx context.Context, guid string) (*models.JobRecord, error)
	ListJobs(ctx context.Context, filter store.JobFilter) ([]*models.JobRecord, int, error)
}

// JobCache holds serialized jobs.
type JobCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs.
// Query parameters: active (default true, "all" for both), classification,
// employer, page, limit.
func NewListJobsHandler(jobs JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := store.JobFilter{
			Classification: q.Get("classification"),
			Employer:       q.Get("employer"),
		}

		switch v := q.Get("active"); v {
		case "", "true":
			active := true
			filter.Active = &active
		case "false":
			active := false
			filter.Active = &active
		case "all":
		default:
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				`active must be "true", "false" or "all"`, nil)
			return
		}

		var ok bool
		if filter.Page, ok = intParam(q.Get("page"), 1, 1, 1<<20); !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "page must be a positive integer", nil)
			return
		}
		if filter.Limit, ok = intParam(q.Get("limit"), defaultPageSize, 1, maxPageSize); !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be between 1 and 100", nil)
			return
		}

		list, total, err := jobs.ListJobs(r.Context(), filter)
		if err != nil {
			slog.Error("list jobs failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		if list == nil {
			list = []*models.JobRecord{}
		}
		response.Collection(w, list, response.NewMeta(filter.Page, filter.Limit, total))
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{guid}.
// Jobs are served from the cache when present; cache errors fall through
// to the store and undecodable entries are evicted.
func NewGetJobHandler(jobs JobReader, c JobCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guid := chi.URLParam(r, "guid")
		key := cache.JobKey(guid)

		if c != nil {
			if b, ok, err := c.Get(r.Context(), key); err == nil && ok {
				var job models.JobRecord
				if err := json.Unmarshal(b, &job); err == nil {
					response.JSON(w, &job)
					return
				}
				if err := c.Delete(r.Context(), key); err != nil {
					slog.Warn("job cache evict failed", "guid", guid, "error", err)
				}
			}
		}

		job, err := jobs.GetJob(r.Context(), guid)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
			return
		}
		if err != nil {
			slog.Error("get job failed", "guid", guid, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		if c != nil {
			if b, err := json.Marshal(job); err == nil {
				if err := c.Set(r.Context(), key, b, JobCacheTTL); err != nil {
					slog.Warn("job cache write failed", "guid", guid, "error", err)
				}
			}
		}
		response.JSON(w, job)
	}
}

// intParam parses an optional integer query parameter within [lo, hi].
func intParam(v string, def, lo, hi int) (int, bool) {
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}
