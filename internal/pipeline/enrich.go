package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/iomjobs/internal/parser"
	"github.com/kiranshivaraju/iomjobs/internal/store"
	"github.com/kiranshivaraju/iomjobs/pkg/models"
	"github.com/kiranshivaraju/iomjobs/pkg/normalize"
)

// EnrichResult counts one enrichment batch.
type EnrichResult struct {
	Enriched  int    `json:"enriched"`
	Attempted int    `json:"attempted"`
	Failed    int    `json:"failed"`
	Status    string `json:"status,omitempty"`
}

// Enrich runs an enrichment batch on its own, logged as an enrichment run.
// It is the catch-up path for runs whose listing crawl used the whole fetch
// budget.
func (p *Pipeline) Enrich(ctx context.Context) (*EnrichResult, error) {
	var res *EnrichResult
	err := p.withLock(ctx, func() error {
		var err error
		res, err = p.enrichRun(ctx)
		return err
	})
	return res, err
}

func (p *Pipeline) enrichRun(ctx context.Context) (*EnrichResult, error) {
	start := p.now()
	runLog := &models.ScrapeLog{
		ID:        uuid.New(),
		StartedAt: start,
		URLType:   models.URLTypeEnrichment,
		Status:    models.ScrapeStatusRunning,
	}
	if err := p.store.CreateScrapeLog(ctx, runLog); err != nil {
		return nil, fmt.Errorf("creating scrape log: %w", err)
	}

	res, err := p.enrichBatch(ctx, p.cfg.EnrichBatch, p.cfg.FetchBudget)
	status := batchStatus(res.Attempted, res.Failed)
	opts := []store.ScrapeLogOption{store.WithCounts(res.Attempted, 0, res.Enriched)}
	if err != nil {
		status = models.ScrapeStatusFailed
		opts = append(opts, store.WithErrorMessage(err.Error()))
	} else if res.Failed > 0 {
		opts = append(opts, store.WithErrorMessage(fmt.Sprintf("%d of %d enrichments failed", res.Failed, res.Attempted)))
	}
	res.Status = status

	if ferr := p.store.FinalizeScrapeLog(context.WithoutCancel(ctx), runLog.ID, status, opts...); ferr != nil {
		slog.Error("failed to finalize enrichment log", "log_id", runLog.ID, "error", ferr)
	}
	p.metrics.ObserveRun(models.URLTypeEnrichment, status, p.now().Sub(start))
	slog.Info("enrichment finished", "log_id", runLog.ID, "status", status,
		"enriched", res.Enriched, "attempted", res.Attempted, "failed", res.Failed)
	return res, err
}

// enrichBatch enriches up to limit candidates using at most budget fetches.
// Per-record failures are counted and skipped. The returned result is never
// nil; the error is set only when the batch could not continue.
func (p *Pipeline) enrichBatch(ctx context.Context, limit, budget int) (*EnrichResult, error) {
	res := &EnrichResult{}
	candidates, err := p.store.ListEnrichmentCandidates(ctx, store.EnrichmentQuery{
		Limit:           limit,
		StubThreshold:   p.cfg.StubThreshold,
		SecondaryDomain: parser.SecondaryDomain,
	})
	if err != nil {
		return res, fmt.Errorf("listing enrichment candidates: %w", err)
	}

	used := 0
	for i, job := range candidates {
		if used >= budget {
			slog.Info("enrichment stopped at fetch budget", "budget", budget, "remaining", len(candidates)-i)
			break
		}
		if i > 0 {
			if err := p.wait(ctx); err != nil {
				return res, err
			}
		}

		res.Attempted++
		n, err := p.enrichOne(ctx, *job, budget-used)
		used += n
		if err != nil {
			res.Failed++
			p.metrics.ObserveEnrichment("failed")
			slog.Warn("enrichment failed", "guid", job.GUID, "url", job.SourceURL, "error", err)
			continue
		}
		res.Enriched++
		p.metrics.ObserveEnrichment("enriched")
	}
	return res, nil
}

// enrichOne fetches a job's detail page, follows a stub redirect to the
// secondary board when budget allows, and stores the merged result. It
// returns the number of fetches made.
func (p *Pipeline) enrichOne(ctx context.Context, job models.JobRecord, budget int) (int, error) {
	fetches := 1
	pg, err := p.fetch(ctx, job.SourceURL, nil)
	if err != nil {
		return fetches, fmt.Errorf("fetching detail page: %w", err)
	}

	detail, err := parser.ParseDetail(pg.HTML, pg.URL)
	if err != nil {
		return fetches, fmt.Errorf("parsing detail page: %w", err)
	}

	rec := recordFromDetail(job, detail)
	rec.RawHTML = models.StringPtr(pg.HTML)

	if parser.IsStubRedirect(detail.Description, p.cfg.StubThreshold) {
		if secURL := parser.SecondaryURL(detail.Description); secURL != "" && budget > fetches {
			if err := p.wait(ctx); err != nil {
				return fetches, err
			}
			fetches++
			if err := p.followSecondary(ctx, &rec, secURL); err != nil {
				slog.Warn("secondary board fetch failed", "guid", job.GUID, "url", secURL, "error", err)
				p.metrics.ObserveEnrichment("secondary_failed")
			} else {
				p.metrics.ObserveEnrichment("secondary")
			}
		}
	}

	deriveFields(&rec, p.cfg.Salary)
	if _, err := p.store.UpsertJob(ctx, rec); err != nil {
		return fetches, fmt.Errorf("storing enriched job: %w", err)
	}
	return fetches, nil
}

func (p *Pipeline) followSecondary(ctx context.Context, rec *models.JobRecord, secURL string) error {
	pg, err := p.fetch(ctx, secURL, nil)
	if err != nil {
		return err
	}
	sd, err := parser.ParseSecondary(pg.HTML)
	if err != nil {
		return err
	}
	applySecondary(rec, sd, secURL)
	return nil
}

// recordFromDetail builds the incoming side of a merge from a parsed detail
// page. Identity and title come from the stored job.
func recordFromDetail(job models.JobRecord, d *parser.Detail) models.JobRecord {
	rec := models.JobRecord{
		GUID:           job.GUID,
		Title:          job.Title,
		SourceURL:      job.SourceURL,
		Employer:       models.StringPtr(d.Get(parser.FieldEmployer)),
		Location:       models.StringPtr(d.Get(parser.FieldLocation)),
		Area:           models.StringPtr(d.Get(parser.FieldArea)),
		JobType:        models.StringPtr(d.Get(parser.FieldJobType)),
		HoursOption:    models.StringPtr(d.Get(parser.FieldHours)),
		SalaryText:     models.StringPtr(d.Get(parser.FieldSalary)),
		PostedDate:     normalize.ParseDate(d.Get(parser.FieldPostedDate)),
		ClosingDate:    normalize.ParseDate(d.Get(parser.FieldClosingDate)),
		StartDate:      normalize.ParseDate(d.Get(parser.FieldStartDate)),
		Summary:        models.StringPtr(d.Get(parser.FieldSummary)),
		Description:    models.StringPtr(d.Description),
		Reference:      models.StringPtr(d.Get(parser.FieldReference)),
		ContactName:    models.StringPtr(d.Get(parser.FieldContactName)),
		ContactEmail:   models.StringPtr(d.Get(parser.FieldContactEmail)),
		ContactPhone:   models.StringPtr(d.Get(parser.FieldContactPhone)),
		Qualifications: models.StringPtr(d.Get(parser.FieldQualifications)),
		Experience:     models.StringPtr(d.Get(parser.FieldExperience)),
		Benefits:       models.StringPtr(d.Get(parser.FieldBenefits)),
		HowToApply:     models.StringPtr(d.Get(parser.FieldHowToApply)),
		ApplyURL:       models.StringPtr(d.ApplyURL),
		AdditionalInfo: d.Extras(),
		FieldLabels:    d.Labels,
	}
	if c := d.Get(parser.FieldClassification); c != "" {
		rec.Classification = models.StringPtr(normalize.Classification(c))
	}
	return rec
}

// applySecondary fills fields the primary page lacked and replaces the stub
// description with the secondary board's content.
func applySecondary(rec *models.JobRecord, sd *parser.SecondaryDetail, secURL string) {
	if rec.Title == "" {
		rec.Title = sd.Title
	}
	rec.Employer = fill(rec.Employer, sd.Employer)
	rec.Location = fill(rec.Location, sd.Location)
	rec.JobType = fill(rec.JobType, sd.JobType)
	rec.SalaryText = fill(rec.SalaryText, sd.Salary)
	rec.ClosingDate = fill(rec.ClosingDate, sd.ClosingDate)
	rec.PostedDate = fill(rec.PostedDate, sd.PostedDate)
	rec.ApplyURL = fill(rec.ApplyURL, secURL)

	if strings.TrimSpace(sd.Description) != "" {
		desc := WithAttribution(sd.Description, secURL, models.Deref(rec.ApplyURL))
		rec.Description = &desc
	}
}

// WithAttribution appends the source and apply links to secondary board content.
func WithAttribution(content, sourceURL, applyURL string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(content))
	b.WriteString(parser.AttributionMarker)
	b.WriteString(sourceURL)
	if applyURL != "" {
		b.WriteString("\nApply: ")
		b.WriteString(applyURL)
	}
	return b.String()
}

func fill(current *string, v string) *string {
	if current != nil && *current != "" {
		return current
	}
	return models.StringPtr(strings.TrimSpace(v))
}

// deriveFields recomputes the salary range and hours type.
func deriveFields(rec *models.JobRecord, sp normalize.SalaryParser) {
	if rec.SalaryText != nil {
		s := sp.Parse(*rec.SalaryText)
		rec.SalaryMin, rec.SalaryMax, rec.SalaryType = s.Min, s.Max, s.Type
	}
	if rec.HoursOption != nil {
		rec.HoursType = normalize.HoursType(*rec.HoursOption)
	}
}
