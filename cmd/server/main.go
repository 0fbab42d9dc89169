// Package main is the entrypoint for the iomjobs scraper and API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kiranshivaraju/iomjobs/internal/api"
	"github.com/kiranshivaraju/iomjobs/internal/api/handler"
	mw "github.com/kiranshivaraju/iomjobs/internal/api/middleware"
	"github.com/kiranshivaraju/iomjobs/internal/cache"
	"github.com/kiranshivaraju/iomjobs/internal/config"
	"github.com/kiranshivaraju/iomjobs/internal/fetcher"
	"github.com/kiranshivaraju/iomjobs/internal/metrics"
	"github.com/kiranshivaraju/iomjobs/internal/pipeline"
	"github.com/kiranshivaraju/iomjobs/internal/scheduler"
	"github.com/kiranshivaraju/iomjobs/internal/store"
	"github.com/kiranshivaraju/iomjobs/pkg/models"
	"github.com/kiranshivaraju/iomjobs/pkg/normalize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"fetch_budget", cfg.Scraper.FetchBudget,
		"schedule_enabled", cfg.Schedule.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and seed the admin key
	pgStore := store.NewPostgresStore(pool)

	if cfg.Auth.BootstrapAdminKey != "" {
		if err := bootstrapAdminKey(ctx, pgStore, cfg.Auth.BootstrapAdminKey); err != nil {
			return fmt.Errorf("bootstrap admin key: %w", err)
		}
	}

	// 6. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	// 7. Build the pipeline
	sc := cfg.Scraper
	p := pipeline.New(pgStore, fetcher.NewHTTPFetcher(sc.UserAgent, sc.RequestTimeout), pipeline.Config{
		FullURL:         sc.FullURL,
		RecentURL:       sc.RecentURL,
		RequestDelay:    sc.RequestDelay,
		MaxPages:        sc.MaxPages,
		FetchBudget:     sc.FetchBudget,
		EnrichBatch:     sc.EnrichBatch,
		StubThreshold:   sc.StubThreshold,
		SampleHTMLBytes: sc.SampleHTMLBytes,
		LockTTL:         sc.LockTTL,
		Salary:          normalize.SalaryParser{AnnualThousands: sc.AnnualThousands},
	}, pipeline.WithLocker(redisCache), pipeline.WithMetrics(m))

	// 8. Scheduler
	var sched *scheduler.Scheduler
	if cfg.Schedule.Enabled {
		sched = scheduler.New(p, cfg.Schedule.ScrapeCron, cfg.Schedule.EnrichCron)
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	// 9. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(pgStore),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Auth.RateLimitPerMin),
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),

		HealthHandler:  handler.NewHealthHandler(pgStore, redisCache, pgStore, nil),
		ListJobs:       handler.NewListJobsHandler(pgStore),
		GetJob:         handler.NewGetJobHandler(pgStore, redisCache),
		ScrapeHandler:  handler.NewScrapeHandler(p),
		EnrichHandler:  handler.NewEnrichHandler(p),
		ReparseHandler: handler.NewReparseHandler(p),
		ListScrapeLogs: handler.NewListScrapeLogsHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 10. Start HTTP server. Admin triggers run synchronously, so the write
	// timeout has to cover a full crawl.
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if sched != nil {
		select {
		case <-sched.Stop().Done():
		case <-shutdownCtx.Done():
			slog.Warn("scheduled run still in progress at shutdown")
		}
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

type keyCreator interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
}

// bootstrapAdminKey stores the configured admin key so a fresh database has
// a way in. An existing key with the same name is left alone.
func bootstrapAdminKey(ctx context.Context, s keyCreator, rawKey string) error {
	if len(rawKey) < mw.KeyPrefixLen {
		return fmt.Errorf("key shorter than %d characters", mw.KeyPrefixLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing key: %w", err)
	}

	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      "bootstrap-admin",
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:mw.KeyPrefixLen],
		Scopes:    []string{mw.ScopeRead, mw.ScopeAdmin},
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.CreateAPIKey(ctx, key)
	if errors.Is(err, store.ErrDuplicateKey) {
		slog.Info("bootstrap admin key already present", "key_prefix", key.KeyPrefix)
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("bootstrap admin key created", "key_prefix", key.KeyPrefix)
	return nil
}
