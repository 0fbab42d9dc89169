// Package scheduler triggers the scrape and the enrichment catch-up on two
// offset cron cadences.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/iomjobs/internal/pipeline"
	"github.com/robfig/cron/v3"
)

// Runner is the part of the pipeline the scheduler drives.
type Runner interface {
	Run(ctx context.Context, mode string) (*pipeline.Result, error)
	Enrich(ctx context.Context) (*pipeline.EnrichResult, error)
}

// Scheduler wraps robfig/cron. Runs that are still going when their next
// tick fires are skipped.
type Scheduler struct {
	cron       *cron.Cron
	runner     Runner
	scrapeSpec string
	enrichSpec string
}

// New creates a Scheduler. Specs use the standard five-field cron format.
func New(runner Runner, scrapeSpec, enrichSpec string) *Scheduler {
	logger := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		runner:     runner,
		scrapeSpec: scrapeSpec,
		enrichSpec: enrichSpec,
	}
}

// Start registers both jobs and starts the cron loop. Jobs run with ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.scrapeSpec, func() { s.runScrape(ctx) }); err != nil {
		return fmt.Errorf("adding scrape job %q: %w", s.scrapeSpec, err)
	}
	if _, err := s.cron.AddFunc(s.enrichSpec, func() { s.runEnrich(ctx) }); err != nil {
		return fmt.Errorf("adding enrichment job %q: %w", s.enrichSpec, err)
	}

	s.cron.Start()
	slog.Info("scheduler started", "scrape_cron", s.scrapeSpec, "enrich_cron", s.enrichSpec)
	return nil
}

// Stop stops the cron loop. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	slog.Info("scheduler stopping")
	return s.cron.Stop()
}

func (s *Scheduler) runScrape(ctx context.Context) {
	res, err := s.runner.Run(ctx, "")
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		slog.Info("scheduled scrape skipped, run in progress")
	case err != nil:
		slog.Error("scheduled scrape failed", "error", err)
	case !res.Success:
		slog.Error("scheduled scrape unsuccessful", "error", res.Error, "log_id", res.LogID)
	default:
		slog.Info("scheduled scrape done", "status", res.Status, "jobs_found", res.Stats.Found)
	}
}

func (s *Scheduler) runEnrich(ctx context.Context) {
	res, err := s.runner.Enrich(ctx)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		slog.Info("scheduled enrichment skipped, run in progress")
	case err != nil:
		slog.Error("scheduled enrichment failed", "error", err)
	default:
		slog.Info("scheduled enrichment done", "status", res.Status, "enriched", res.Enriched, "failed", res.Failed)
	}
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
