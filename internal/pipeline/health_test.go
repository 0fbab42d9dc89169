package pipeline

import (
	"testing"
	"time"

	"github.com/kiranshivaraju/iomjobs/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logAt(status string, ago time.Duration) *models.ScrapeLog {
	return &models.ScrapeLog{Status: status, StartedAt: testNow.Add(-ago), URLType: models.URLTypeRecent}
}

func TestCheckHealth(t *testing.T) {
	ok, failed, running := models.ScrapeStatusSuccess, models.ScrapeStatusFailed, models.ScrapeStatusRunning

	tests := []struct {
		name       string
		logs       []*models.ScrapeLog
		wantStatus string
		stale      bool
		lastFailed bool
		highRate   bool
	}{
		{"no runs", nil, "degraded", true, false, false},
		{"recent success", []*models.ScrapeLog{logAt(ok, time.Hour), logAt(ok, 13*time.Hour)}, "healthy", false, false, false},
		{"stale", []*models.ScrapeLog{logAt(ok, 49*time.Hour)}, "degraded", true, false, false},
		{"last failed", []*models.ScrapeLog{logAt(failed, time.Hour), logAt(ok, 12*time.Hour), logAt(ok, 24*time.Hour)}, "degraded", false, true, false},
		{"half of recent failed", []*models.ScrapeLog{logAt(ok, time.Hour), logAt(failed, 12*time.Hour), logAt(failed, 24*time.Hour), logAt(ok, 36*time.Hour)}, "degraded", false, false, true},
		{"running row skipped for last status", []*models.ScrapeLog{logAt(running, time.Minute), logAt(ok, 12*time.Hour)}, "healthy", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := CheckHealth(tt.logs, testNow)
			assert.Equal(t, tt.wantStatus, h.Status)
			assert.Equal(t, tt.stale, h.Stale)
			assert.Equal(t, tt.lastFailed, h.LastFailed)
			assert.Equal(t, tt.highRate, h.HighFailureRate)
		})
	}
}

func TestCheckHealth_WindowIsBounded(t *testing.T) {
	var logs []*models.ScrapeLog
	for i := 0; i < HealthWindow; i++ {
		logs = append(logs, logAt(models.ScrapeStatusSuccess, time.Duration(i)*time.Hour))
	}
	for i := 0; i < 20; i++ {
		logs = append(logs, logAt(models.ScrapeStatusFailed, time.Duration(HealthWindow+i)*time.Hour))
	}

	h := CheckHealth(logs, testNow)
	require.Equal(t, HealthWindow, h.RecentRuns)
	assert.Equal(t, 0, h.RecentFailures)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, models.ScrapeStatusSuccess, h.LastStatus)
}
