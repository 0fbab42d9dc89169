// Package pipeline drives the scrape: the listing crawl, detail enrichment,
// re-parsing of stored pages and the expiry sweep. Every outbound request
// is made sequentially with a fixed delay in between.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/iomjobs/internal/cache"
	"github.com/kiranshivaraju/iomjobs/internal/fetcher"
	"github.com/kiranshivaraju/iomjobs/internal/metrics"
	"github.com/kiranshivaraju/iomjobs/internal/store"
	"github.com/kiranshivaraju/iomjobs/pkg/normalize"
)

// Config controls a Pipeline.
type Config struct {
	FullURL         string
	RecentURL       string
	RequestDelay    time.Duration
	MaxPages        int
	FetchBudget     int
	EnrichBatch     int
	StubThreshold   int
	SampleHTMLBytes int
	LockTTL         time.Duration
	Salary          normalize.SalaryParser
}

// Locker guards against overlapping runs. cache.RedisCache implements it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Unlock(ctx context.Context, key, token string) error
}

// Pipeline owns the scrape workflow. It is safe to share between the
// scheduler and the admin handlers; overlapping runs are rejected when a
// Locker is configured.
type Pipeline struct {
	store   store.Store
	fetcher fetcher.Fetcher
	locker  Locker
	metrics *metrics.Metrics
	cfg     Config
	now     func() time.Time
}

// Option configures optional Pipeline collaborators.
type Option func(*Pipeline)

// WithLocker enables the run lock.
func WithLocker(l Locker) Option {
	return func(p *Pipeline) { p.locker = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock overrides time.Now, mainly for tests of the expiry sweep.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline. Zero limits in cfg fall back to defaults.
func New(s store.Store, f fetcher.Fetcher, cfg Config, opts ...Option) *Pipeline {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 20
	}
	if cfg.FetchBudget <= 0 {
		cfg.FetchBudget = 40
	}
	if cfg.EnrichBatch <= 0 {
		cfg.EnrichBatch = 100
	}
	if cfg.SampleHTMLBytes <= 0 {
		cfg.SampleHTMLBytes = 5000
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	p := &Pipeline{store: s, fetcher: f, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// withLock runs fn while holding the scrape lock.
func (p *Pipeline) withLock(ctx context.Context, fn func() error) error {
	if p.locker == nil {
		return fn()
	}

	token, ok, err := p.locker.TryLock(ctx, cache.ScrapeLockKey, p.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("acquiring run lock: %w", err)
	}
	if !ok {
		return ErrRunInProgress
	}
	defer func() {
		if err := p.locker.Unlock(context.WithoutCancel(ctx), cache.ScrapeLockKey, token); err != nil {
			slog.Warn("failed to release run lock", "error", err)
		}
	}()
	return fn()
}

// fetch performs one request and records its outcome.
func (p *Pipeline) fetch(ctx context.Context, pageURL string, stats *FetchStats) (*fetcher.Page, error) {
	page, err := p.fetcher.Fetch(ctx, pageURL)
	outcome := fetcher.OutcomeOf(page, err)
	if stats != nil {
		stats.Record(outcome)
	}
	p.metrics.ObserveFetch(string(outcome))
	return page, err
}

// wait sleeps for the inter-request delay or until ctx is done.
func (p *Pipeline) wait(ctx context.Context) error {
	if p.cfg.RequestDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.cfg.RequestDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
