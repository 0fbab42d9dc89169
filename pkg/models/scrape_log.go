package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ScrapeStatusRunning = "running"
	ScrapeStatusSuccess = "success"
	ScrapeStatusPartial = "partial"
	ScrapeStatusFailed  = "failed"
)

const (
	URLTypeFull       = "full"
	URLTypeRecent     = "recent"
	URLTypeEnrichment = "enrichment"
	URLTypeReparse    = "reparse"
)

// ScrapeLog is the append-only audit row for one scrape, enrichment or reparse run.
// It is created as running, updated with progress counters, and finalized once.
type ScrapeLog struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	StartedAt    time.Time  `db:"started_at"    json:"started_at"`
	CompletedAt  *time.Time `db:"completed_at"  json:"completed_at,omitempty"`
	URLType      string     `db:"url_type"      json:"url_type"`
	JobsFound    int        `db:"jobs_found"    json:"jobs_found"`
	JobsInserted int        `db:"jobs_inserted" json:"jobs_inserted"`
	JobsUpdated  int        `db:"jobs_updated"  json:"jobs_updated"`
	Status       string     `db:"status"        json:"status"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	SampleHTML   *string    `db:"sample_html"   json:"-"`
}

// IsTerminal reports whether the log has been finalized.
func (l *ScrapeLog) IsTerminal() bool {
	return l.Status != ScrapeStatusRunning
}
