package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/iomjobs/internal/parser"
	"github.com/kiranshivaraju/iomjobs/internal/store"
	"github.com/kiranshivaraju/iomjobs/pkg/models"
	"github.com/kiranshivaraju/iomjobs/pkg/normalize"
)

// Stats summarises a scrape run.
type Stats struct {
	Found    int    `json:"found"`
	Inserted int    `json:"inserted"`
	Updated  int    `json:"updated"`
	Duration string `json:"duration"`
	FetchStats
}

// Result is what Run reports back to its caller. Cause carries the failure
// category for failed runs.
type Result struct {
	Success    bool          `json:"success"`
	Message    string        `json:"message,omitempty"`
	Error      string        `json:"error,omitempty"`
	Mode       string        `json:"mode"`
	Status     string        `json:"status"`
	LogID      uuid.UUID     `json:"log_id"`
	Stats      Stats         `json:"stats"`
	Enrichment *EnrichResult `json:"enrichment,omitempty"`
	Expired    int           `json:"expired"`
	Notes      []string      `json:"notes,omitempty"`
	Cause      error         `json:"-"`
}

// crawlState accumulates a listing crawl.
type crawlState struct {
	stats       FetchStats
	totals      store.UpsertResult
	found       int
	sample      string
	fetchFailed bool
}

// Run performs a listing scrape followed by enrichment and the expiry sweep.
// mode is "full", "recent" or "" for automatic selection; an empty store
// always forces a full scrape. The returned error is non-nil only when the
// run could not be carried out at all (lock held, store unavailable); a
// crawl that fails classification returns a Result with Success false.
func (p *Pipeline) Run(ctx context.Context, mode string) (*Result, error) {
	var res *Result
	err := p.withLock(ctx, func() error {
		var err error
		res, err = p.run(ctx, mode)
		return err
	})
	return res, err
}

func (p *Pipeline) run(ctx context.Context, requested string) (*Result, error) {
	start := p.now()

	mode, err := p.resolveMode(ctx, requested)
	if err != nil {
		return nil, err
	}
	startURL := p.cfg.RecentURL
	if mode == models.URLTypeFull {
		startURL = p.cfg.FullURL
	}

	runLog := &models.ScrapeLog{
		ID:        uuid.New(),
		StartedAt: start,
		URLType:   mode,
		Status:    models.ScrapeStatusRunning,
	}
	if err := p.store.CreateScrapeLog(ctx, runLog); err != nil {
		return nil, fmt.Errorf("creating scrape log: %w", err)
	}
	slog.Info("scrape started", "log_id", runLog.ID, "mode", mode, "url", startURL)

	cs := &crawlState{}
	res := &Result{Mode: mode, LogID: runLog.ID}

	if err := p.crawl(ctx, startURL, runLog.ID, cs); err != nil {
		p.finalize(ctx, runLog, models.ScrapeStatusFailed, cs, err.Error())
		p.metrics.ObserveRun(mode, models.ScrapeStatusFailed, p.now().Sub(start))
		return nil, err
	}
	res.Stats = p.stats(cs, start)

	if cause := cs.stats.Classify(cs.found); cause != nil {
		slog.Error("scrape failed", "log_id", runLog.ID, "mode", mode, "error", cause,
			"fetch_attempts", cs.stats.Attempts, "waf_blocks", cs.stats.Blocks, "fetch_errors", cs.stats.Errors)
		p.finalize(ctx, runLog, models.ScrapeStatusFailed, cs, cause.Error())
		p.metrics.ObserveRun(mode, models.ScrapeStatusFailed, p.now().Sub(start))
		res.Status = models.ScrapeStatusFailed
		res.Error = cause.Error()
		res.Cause = cause
		return res, nil
	}

	status := models.ScrapeStatusSuccess
	if cs.fetchFailed {
		status = models.ScrapeStatusPartial
		res.Notes = append(res.Notes, "listing crawl stopped after a failed fetch")
	}

	remaining := p.cfg.FetchBudget - cs.stats.Attempts
	if remaining > 0 {
		er, err := p.enrichBatch(ctx, min(p.cfg.EnrichBatch, remaining), remaining)
		res.Enrichment = er
		switch {
		case err != nil:
			slog.Error("enrichment aborted", "log_id", runLog.ID, "error", err)
			status = models.ScrapeStatusPartial
			res.Notes = append(res.Notes, "enrichment aborted: "+err.Error())
		case er.Failed > 0:
			status = models.ScrapeStatusPartial
			res.Notes = append(res.Notes, fmt.Sprintf("%d of %d enrichments failed", er.Failed, er.Attempted))
		}
	} else {
		slog.Info("fetch budget exhausted, enrichment deferred", "log_id", runLog.ID, "fetch_attempts", cs.stats.Attempts)
		res.Notes = append(res.Notes, "fetch budget exhausted; run enrichment separately")
	}

	expired, err := p.expire(ctx)
	if err != nil {
		slog.Error("expiry sweep failed", "log_id", runLog.ID, "error", err)
		status = models.ScrapeStatusPartial
		res.Notes = append(res.Notes, "expiry sweep failed: "+err.Error())
	}
	res.Expired = expired

	p.finalize(ctx, runLog, status, cs, strings.Join(res.Notes, "; "))
	res.Stats = p.stats(cs, start)
	res.Status = status
	res.Success = true
	res.Message = fmt.Sprintf("%s scrape complete: %d found, %d inserted, %d updated",
		mode, cs.found, cs.totals.Inserted, cs.totals.Updated)
	p.metrics.ObserveRun(mode, status, p.now().Sub(start))

	slog.Info("scrape finished", "log_id", runLog.ID, "status", status,
		"jobs_found", cs.found, "jobs_inserted", cs.totals.Inserted, "jobs_updated", cs.totals.Updated,
		"expired", expired, "duration", res.Stats.Duration)
	return res, nil
}

func (p *Pipeline) resolveMode(ctx context.Context, requested string) (string, error) {
	switch requested {
	case "", models.URLTypeFull, models.URLTypeRecent:
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, requested)
	}

	n, err := p.store.CountJobs(ctx)
	if err != nil {
		return "", fmt.Errorf("counting jobs: %w", err)
	}
	if n == 0 {
		return models.URLTypeFull, nil
	}
	if requested == "" {
		return models.URLTypeRecent, nil
	}
	return requested, nil
}

// crawl walks the listing pages from startURL. Each page is upserted as soon
// as it is parsed. A failed fetch ends the pagination chain without failing
// the crawl; only store errors are returned.
func (p *Pipeline) crawl(ctx context.Context, startURL string, logID uuid.UUID, cs *crawlState) error {
	next := startURL
	seen := make(map[string]bool)

	for page := 1; next != "" && page <= p.cfg.MaxPages; page++ {
		if cs.stats.Attempts >= p.cfg.FetchBudget {
			slog.Warn("fetch budget reached during listing crawl", "page", page, "budget", p.cfg.FetchBudget)
			break
		}
		if seen[next] {
			slog.Warn("pagination loop detected", "url", next)
			break
		}
		seen[next] = true

		if page > 1 {
			if err := p.wait(ctx); err != nil {
				return err
			}
		}

		pg, err := p.fetch(ctx, next, &cs.stats)
		if cs.sample == "" && pg != nil {
			cs.sample = truncateString(pg.Body, p.cfg.SampleHTMLBytes)
		}
		if err != nil {
			slog.Warn("listing fetch failed", "url", next, "page", page, "error", err)
			cs.fetchFailed = true
			break
		}

		jobs, err := parser.ParseListing(pg.HTML, pg.URL)
		if err != nil {
			slog.Warn("listing parse failed", "url", next, "page", page, "error", err)
			break
		}
		cs.found += len(jobs)

		if len(jobs) > 0 {
			res, err := p.store.UpsertJobs(ctx, jobs)
			if err != nil {
				return fmt.Errorf("upserting listing page %d: %w", page, err)
			}
			cs.totals.Add(res)
			p.metrics.ObserveUpsert(res.Inserted, res.Updated)

			if err := p.store.UpdateScrapeLogProgress(ctx, logID, cs.found, cs.totals.Inserted, cs.totals.Updated); err != nil {
				slog.Warn("failed to update scrape progress", "log_id", logID, "error", err)
			}
		}
		slog.Info("listing page scraped", "page", page, "jobs_found", len(jobs), "url", next)

		pag, err := parser.ParsePagination(pg.HTML, pg.URL)
		if err != nil || !pag.HasMore {
			break
		}
		next = pag.NextURL
	}
	return nil
}

func (p *Pipeline) expire(ctx context.Context) (int, error) {
	today := p.now().Format(normalize.ISODate)
	n, err := p.store.ExpireJobs(ctx, today)
	if err != nil {
		return 0, err
	}
	p.metrics.ObserveExpired(n)
	if n > 0 {
		slog.Info("expired jobs deactivated", "count", n, "today", today)
	}
	return n, nil
}

// finalize closes the run's log row. It runs on a context detached from
// cancellation so an aborted run still leaves a terminal row behind.
func (p *Pipeline) finalize(ctx context.Context, runLog *models.ScrapeLog, status string, cs *crawlState, msg string) {
	opts := []store.ScrapeLogOption{
		store.WithCounts(cs.found, cs.totals.Inserted, cs.totals.Updated),
		store.WithSampleHTML(cs.sample),
	}
	if msg != "" {
		opts = append(opts, store.WithErrorMessage(msg))
	}
	err := p.store.FinalizeScrapeLog(context.WithoutCancel(ctx), runLog.ID, status, opts...)
	if err != nil && !errors.Is(err, store.ErrInvalidTransition) {
		slog.Error("failed to finalize scrape log", "log_id", runLog.ID, "status", status, "error", err)
	}
}

func (p *Pipeline) stats(cs *crawlState, start time.Time) Stats {
	return Stats{
		Found:      cs.found,
		Inserted:   cs.totals.Inserted,
		Updated:    cs.totals.Updated,
		Duration:   p.now().Sub(start).Round(time.Millisecond).String(),
		FetchStats: cs.stats,
	}
}
