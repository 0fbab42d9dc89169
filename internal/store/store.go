package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/iomjobs/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid scrape log status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CountJobs(ctx context.Context) (int, error)
	UpsertJobs(ctx context.Context, jobs []models.JobRecord) (UpsertResult, error)
	UpsertJob(ctx context.Context, job models.JobRecord) (inserted bool, err error)
	GetJob(ctx context.Context, guid string) (*models.JobRecord, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.JobRecord, int, error)
	ListEnrichmentCandidates(ctx context.Context, q EnrichmentQuery) ([]*models.JobRecord, error)
	ListReparseCandidates(ctx context.Context, limit int) ([]*models.JobRecord, error)
	ExpireJobs(ctx context.Context, today string) (int, error)

	CreateScrapeLog(ctx context.Context, log *models.ScrapeLog) error
	UpdateScrapeLogProgress(ctx context.Context, id uuid.UUID, found, inserted, updated int) error
	FinalizeScrapeLog(ctx context.Context, id uuid.UUID, status string, opts ...ScrapeLogOption) error
	ListScrapeLogs(ctx context.Context, filter ScrapeLogFilter) ([]*models.ScrapeLog, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
}

// UpsertResult counts what a batch upsert did. The counts are per call; the
// final table state does not depend on how often a batch is applied.
type UpsertResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// Add accumulates another result.
func (r *UpsertResult) Add(o UpsertResult) {
	r.Inserted += o.Inserted
	r.Updated += o.Updated
}

type JobFilter struct {
	Active         *bool
	Classification string
	Employer       string
	Page           int
	Limit          int
}

// EnrichmentQuery selects active jobs that still need a detail fetch: no
// description yet, or a description that is only a short link to
// SecondaryDomain.
type EnrichmentQuery struct {
	Limit           int
	StubThreshold   int
	SecondaryDomain string
}

type ScrapeLogFilter struct {
	URLTypes []string
	Limit    int
}

type scrapeLogParams struct {
	ErrorMessage *string
	SampleHTML   *string
	Counts       *[3]int
}

type ScrapeLogOption func(*scrapeLogParams)

func WithErrorMessage(msg string) ScrapeLogOption {
	return func(p *scrapeLogParams) {
		p.ErrorMessage = &msg
	}
}

func WithSampleHTML(html string) ScrapeLogOption {
	return func(p *scrapeLogParams) {
		if html != "" {
			p.SampleHTML = &html
		}
	}
}

// WithCounts sets the final found/inserted/updated counters.
func WithCounts(found, inserted, updated int) ScrapeLogOption {
	return func(p *scrapeLogParams) {
		p.Counts = &[3]int{found, inserted, updated}
	}
}

// ApplyScrapeLogOptions resolves options onto a log row. Store
// implementations outside this package use it to honour the options.
func ApplyScrapeLogOptions(l *models.ScrapeLog, opts ...ScrapeLogOption) {
	p := &scrapeLogParams{}
	for _, opt := range opts {
		opt(p)
	}
	if p.ErrorMessage != nil {
		l.ErrorMessage = p.ErrorMessage
	}
	if p.SampleHTML != nil {
		l.SampleHTML = p.SampleHTML
	}
	if p.Counts != nil {
		l.JobsFound, l.JobsInserted, l.JobsUpdated = p.Counts[0], p.Counts[1], p.Counts[2]
	}
}

var validTransitions = map[string][]string{
	models.ScrapeStatusRunning: {models.ScrapeStatusSuccess, models.ScrapeStatusPartial, models.ScrapeStatusFailed},
}

// CanTransition reports whether a scrape log may move from one status to another.
func CanTransition(from, to string) bool {
	for _, a := range validTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}
