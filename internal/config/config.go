package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all configuration for the iomjobs server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Scraper  ScraperConfig
	Schedule ScheduleConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// ScraperConfig controls the crawl. FetchBudget caps outbound requests per
// run; enrichment only runs inline while the listing crawl left budget over.
type ScraperConfig struct {
	FullURL         string
	RecentURL       string
	UserAgent       string
	RequestDelay    time.Duration
	RequestTimeout  time.Duration
	MaxPages        int
	FetchBudget     int
	EnrichBatch     int
	StubThreshold   int
	AnnualThousands bool
	SampleHTMLBytes int
	LockTTL         time.Duration
}

type ScheduleConfig struct {
	Enabled    bool
	ScrapeCron string
	EnrichCron string
}

type AuthConfig struct {
	BootstrapAdminKey string
	RateLimitPerMin   int
}

const (
	defaultFullURL   = "https://services.gov.im/job-search/results?SearchText=&AreaId=0&ClassificationId=0&HoursOptionId=0"
	defaultRecentURL = "https://services.gov.im/job-search/results?SearchText=&AreaId=0&ClassificationId=0&HoursOptionId=0&RecentJobs=true"
)

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("IOMJOBS_PORT", 8080),
			Env:  envString("IOMJOBS_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Scraper: ScraperConfig{
			FullURL:         envString("SCRAPER_FULL_URL", defaultFullURL),
			RecentURL:       envString("SCRAPER_RECENT_URL", defaultRecentURL),
			UserAgent:       os.Getenv("SCRAPER_USER_AGENT"),
			RequestDelay:    envDuration("SCRAPER_REQUEST_DELAY", 1500*time.Millisecond),
			RequestTimeout:  envDuration("SCRAPER_REQUEST_TIMEOUT", 20*time.Second),
			MaxPages:        envInt("SCRAPER_MAX_PAGES", 20),
			FetchBudget:     envInt("SCRAPER_FETCH_BUDGET", 40),
			EnrichBatch:     envInt("SCRAPER_ENRICH_BATCH", 100),
			StubThreshold:   envInt("SCRAPER_STUB_THRESHOLD", 500),
			AnnualThousands: envBool("SCRAPER_ANNUAL_THOUSANDS", true),
			SampleHTMLBytes: envInt("SCRAPER_SAMPLE_HTML_BYTES", 5000),
			LockTTL:         envDuration("SCRAPER_LOCK_TTL", 30*time.Minute),
		},
		Schedule: ScheduleConfig{
			Enabled:    envBool("SCHEDULE_ENABLED", true),
			ScrapeCron: envString("SCHEDULE_SCRAPE_CRON", "0 6,18 * * *"),
			EnrichCron: envString("SCHEDULE_ENRICH_CRON", "30 7,19 * * *"),
		},
		Auth: AuthConfig{
			BootstrapAdminKey: os.Getenv("BOOTSTRAP_ADMIN_KEY"),
			RateLimitPerMin:   envInt("API_RATE_LIMIT_PER_MIN", 60),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	for name, u := range map[string]string{"SCRAPER_FULL_URL": c.Scraper.FullURL, "SCRAPER_RECENT_URL": c.Scraper.RecentURL} {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("%s must start with http:// or https://, got %q", name, u)
		}
	}

	if c.Scraper.FetchBudget < 1 {
		return fmt.Errorf("SCRAPER_FETCH_BUDGET must be at least 1, got %d", c.Scraper.FetchBudget)
	}
	if c.Scraper.MaxPages < 1 {
		return fmt.Errorf("SCRAPER_MAX_PAGES must be at least 1, got %d", c.Scraper.MaxPages)
	}
	if c.Scraper.EnrichBatch < 1 {
		return fmt.Errorf("SCRAPER_ENRICH_BATCH must be at least 1, got %d", c.Scraper.EnrichBatch)
	}
	if c.Scraper.RequestDelay < 0 {
		return fmt.Errorf("SCRAPER_REQUEST_DELAY must not be negative")
	}

	if c.Schedule.Enabled {
		if _, err := cron.ParseStandard(c.Schedule.ScrapeCron); err != nil {
			return fmt.Errorf("SCHEDULE_SCRAPE_CRON is invalid: %w", err)
		}
		if _, err := cron.ParseStandard(c.Schedule.EnrichCron); err != nil {
			return fmt.Errorf("SCHEDULE_ENRICH_CRON is invalid: %w", err)
		}
	}

	if k := c.Auth.BootstrapAdminKey; k != "" && len(k) < 16 {
		return fmt.Errorf("BOOTSTRAP_ADMIN_KEY must be at least 16 characters")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
