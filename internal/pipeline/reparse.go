package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/iomjobs/internal/parser"
	"github.com/kiranshivaraju/iomjobs/internal/store"
	"github.com/kiranshivaraju/iomjobs/pkg/models"
)

// ReparseResult counts a reparse run.
type ReparseResult struct {
	Reparsed  int    `json:"reparsed"`
	Attempted int    `json:"attempted"`
	Failed    int    `json:"failed"`
	Status    string `json:"status"`
}

// Reparse runs the detail parser again over stored raw HTML for up to limit
// active jobs and merges the results. No requests are made. A stub
// description never replaces a different stored one.
func (p *Pipeline) Reparse(ctx context.Context, limit int) (*ReparseResult, error) {
	if limit <= 0 {
		limit = p.cfg.EnrichBatch
	}
	start := p.now()
	runLog := &models.ScrapeLog{
		ID:        uuid.New(),
		StartedAt: start,
		URLType:   models.URLTypeReparse,
		Status:    models.ScrapeStatusRunning,
	}
	if err := p.store.CreateScrapeLog(ctx, runLog); err != nil {
		return nil, fmt.Errorf("creating scrape log: %w", err)
	}

	jobs, err := p.store.ListReparseCandidates(ctx, limit)
	if err != nil {
		if ferr := p.store.FinalizeScrapeLog(context.WithoutCancel(ctx), runLog.ID, models.ScrapeStatusFailed,
			store.WithErrorMessage(err.Error())); ferr != nil {
			slog.Error("failed to finalize reparse log", "log_id", runLog.ID, "error", ferr)
		}
		return nil, fmt.Errorf("listing reparse candidates: %w", err)
	}

	res := &ReparseResult{}
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			break
		}
		res.Attempted++
		if err := p.reparseOne(ctx, *job); err != nil {
			res.Failed++
			slog.Warn("reparse failed", "guid", job.GUID, "error", err)
			continue
		}
		res.Reparsed++
	}

	res.Status = batchStatus(res.Attempted, res.Failed)
	if err := p.store.FinalizeScrapeLog(context.WithoutCancel(ctx), runLog.ID, res.Status,
		store.WithCounts(res.Attempted, 0, res.Reparsed)); err != nil {
		slog.Error("failed to finalize reparse log", "log_id", runLog.ID, "error", err)
	}
	p.metrics.ObserveRun(models.URLTypeReparse, res.Status, p.now().Sub(start))
	slog.Info("reparse finished", "log_id", runLog.ID, "status", res.Status,
		"reparsed", res.Reparsed, "attempted", res.Attempted)
	return res, ctx.Err()
}

func (p *Pipeline) reparseOne(ctx context.Context, job models.JobRecord) error {
	raw := models.Deref(job.RawHTML)
	if raw == "" {
		return fmt.Errorf("no stored html")
	}
	detail, err := parser.ParseDetail(raw, job.SourceURL)
	if err != nil {
		return err
	}

	rec := recordFromDetail(job, detail)
	if parser.IsStubRedirect(detail.Description, p.cfg.StubThreshold) &&
		job.Description != nil && *job.Description != detail.Description {
		rec.Description = nil
	}
	deriveFields(&rec, p.cfg.Salary)

	if _, err := p.store.UpsertJob(ctx, rec); err != nil {
		return fmt.Errorf("storing reparsed job: %w", err)
	}
	return nil
}
