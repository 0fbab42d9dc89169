package pipeline

import (
	"time"

	"github.com/kiranshivaraju/iomjobs/pkg/models"
)

const (
	StaleAfter         = 48 * time.Hour
	HealthWindow       = 10
	failureRateTrigger = 0.5
)

// ScrapeHealth summarises recent listing runs for the health endpoint.
type ScrapeHealth struct {
	Status          string     `json:"status"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	LastStatus      string     `json:"last_status,omitempty"`
	Stale           bool       `json:"stale"`
	LastFailed      bool       `json:"last_failed"`
	HighFailureRate bool       `json:"high_failure_rate"`
	RecentRuns      int        `json:"recent_runs"`
	RecentFailures  int        `json:"recent_failures"`
}

// CheckHealth evaluates logs, newest first. Running rows count towards
// staleness but not towards the failure checks.
func CheckHealth(logs []*models.ScrapeLog, now time.Time) ScrapeHealth {
	h := ScrapeHealth{Status: "healthy"}

	if len(logs) == 0 {
		h.Stale = true
	} else {
		last := logs[0].StartedAt
		h.LastRunAt = &last
		h.Stale = now.Sub(last) > StaleAfter
	}

	for _, l := range logs {
		if !l.IsTerminal() {
			continue
		}
		if h.RecentRuns == HealthWindow {
			break
		}
		if h.LastStatus == "" {
			h.LastStatus = l.Status
			h.LastFailed = l.Status == models.ScrapeStatusFailed
		}
		h.RecentRuns++
		if l.Status == models.ScrapeStatusFailed {
			h.RecentFailures++
		}
	}
	h.HighFailureRate = h.RecentRuns > 0 &&
		float64(h.RecentFailures)/float64(h.RecentRuns) >= failureRateTrigger

	if h.Stale || h.LastFailed || h.HighFailureRate {
		h.Status = "degraded"
	}
	return h
}
