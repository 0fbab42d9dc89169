package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kiranshivaraju/iomjobs/internal/fetcher"
	"github.com/kiranshivaraju/iomjobs/internal/metrics"
	"github.com/kiranshivaraju/iomjobs/pkg/models"
	"github.com/kiranshivaraju/iomjobs/pkg/normalize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	fullURL    = "https://services.gov.im/job-search/results?AreaId=0"
	recentURL  = "https://services.gov.im/job-search/results?AreaId=0&RecentJobs=true"
	page2URL   = "https://services.gov.im/job-search/results?AreaId=0&page=2"
	vacancyURL = "https://services.gov.im/job-search/vacancy?jobId="
	jobtrain   = "https://www.jobtrain.co.uk/manxcare/displayjob.aspx?jobid=555"
)

const listingPage1 = `<html><body>
<p>Page 1 of 2</p>
<h3>Health and Care</h3>
<table>
  <tr><td>1001</td><td><a href="/job-search/vacancy?jobId=1001">Staff Nurse</a></td><td>Manx Care</td><td>Full Time</td></tr>
  <tr><td>1002</td><td><a href="/job-search/vacancy?jobId=1002">Care Assistant</a></td><td>Cummal Mooar</td><td>Part Time</td></tr>
</table>
<a class="next" href="/job-search/results?AreaId=0&amp;page=2">Next</a>
</body></html>`

const listingPage2 = `<html><body>
<p>Page 2 of 2</p>
<h3>Finance</h3>
<table>
  <tr><td>1003</td><td><a href="/job-search/vacancy?jobId=1003">Accounts Clerk</a></td><td>Treasury</td><td>Full Time</td></tr>
</table>
</body></html>`

const driftedListing = `<html><body><h1>Job Search</h1><div class="cards"><div class="card">Staff Nurse</div></div></body></html>`

const stubDetail = `<html><body>
<table>
  <tr><td>Firm</td><td>Manx Care</td></tr>
  <tr><td>Salary</td><td>£31,000 - £37,000 per annum</td></tr>
  <tr><td>Hours</td><td>Full Time</td></tr>
  <tr><td>Notes</td><td>Please see <a href="` + jobtrain + `">Jobtrain</a></td></tr>
</table>
<a class="apply-button" href="/apply/1001">Start</a>
</body></html>`

const fullDetail = `<html><body>
<table>
  <tr><td>Employer</td><td>Treasury</td><td>Location</td><td>Government Office, Douglas</td></tr>
  <tr><td>Salary</td><td>£12.50 per hour</td></tr>
  <tr><td>Closing Date</td><td>31/12/2025</td></tr>
  <tr><td>Ref. No.</td><td>TR-77</td></tr>
  <tr><td>Shift Pattern</td><td>Mornings</td></tr>
  <tr><td>Notes</td><td><p>Process supplier invoices for the finance team.</p></td></tr>
</table>
</body></html>`

const jobtrainPage = `<html><head>
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"JobPosting","title":"Band 5 Staff Nurse",
 "description":"<p>We are looking for a nurse.</p>",
 "datePosted":"2025-06-01","validThrough":"2025-07-31",
 "hiringOrganization":{"@type":"Organization","name":"Manx Care Recruitment"},
 "jobLocation":{"@type":"Place","address":{"addressLocality":"Braddan"}}}
</script></head><body></body></html>`

var testNow = time.Date(2025, 6, 15, 6, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		FullURL:       fullURL,
		RecentURL:     recentURL,
		MaxPages:      5,
		FetchBudget:   2,
		EnrichBatch:   100,
		StubThreshold: 500,
		Salary:        normalize.DefaultSalaryParser,
	}
}

func newTestPipeline(s *memStore, f *fakeFetcher, cfg Config, opts ...Option) *Pipeline {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return New(s, f, cfg, opts...)
}

func TestRun_EmptyStoreForcesFullAndPaginates(t *testing.T) {
	s := newMemStore()
	f := newFakeFetcher().ok(fullURL, listingPage1).ok(page2URL, listingPage2)
	p := newTestPipeline(s, f, testConfig())

	res, err := p.Run(context.Background(), models.URLTypeRecent)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, models.URLTypeFull, res.Mode)
	assert.Equal(t, models.ScrapeStatusSuccess, res.Status)
	assert.Equal(t, 3, res.Stats.Found)
	assert.Equal(t, 3, res.Stats.Inserted)
	assert.Equal(t, 0, res.Stats.Updated)
	assert.Equal(t, 2, res.Stats.Attempts)
	assert.Equal(t, 2, res.Stats.Successes)
	assert.Nil(t, res.Enrichment)
	assert.Contains(t, res.Notes, "fetch budget exhausted; run enrichment separately")

	assert.Equal(t, 2, s.progress)
	l := s.lastLog()
	require.NotNil(t, l)
	assert.Equal(t, models.ScrapeStatusSuccess, l.Status)
	assert.Equal(t, models.URLTypeFull, l.URLType)
	assert.Equal(t, 3, l.JobsFound)
	assert.Equal(t, 3, l.JobsInserted)
	require.NotNil(t, l.SampleHTML)
	assert.Contains(t, *l.SampleHTML, "Page 1 of 2")
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	s := newMemStore()
	f := newFakeFetcher().ok(fullURL, listingPage1).ok(recentURL, listingPage1).ok(page2URL, listingPage2)
	p := newTestPipeline(s, f, testConfig())

	_, err := p.Run(context.Background(), "")
	require.NoError(t, err)
	before := s.sorted(func(models.JobRecord) bool { return true })

	res, err := p.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, models.URLTypeRecent, res.Mode)
	assert.Equal(t, 0, res.Stats.Inserted)
	assert.Equal(t, 3, res.Stats.Updated)
	assert.Equal(t, 1, f.callCount(recentURL))

	after := s.sorted(func(models.JobRecord) bool { return true })
	assert.Equal(t, before, after)
}

func TestRun_AllBlocked(t *testing.T) {
	s := newMemStore()
	f := newFakeFetcher().blocked(fullURL)
	p := newTestPipeline(s, f, testConfig())

	res, err := p.Run(context.Background(), "")
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Cause, ErrAllBlocked)
	assert.Equal(t, ErrAllBlocked.Error(), res.Error)
	assert.Equal(t, 1, res.Stats.Blocks)
	assert.Empty(t, s.jobs)

	l := s.lastLog()
	assert.Equal(t, models.ScrapeStatusFailed, l.Status)
	require.NotNil(t, l.SampleHTML)
	assert.Contains(t, *l.SampleHTML, "Request Rejected")
}

func TestRun_StructuralDriftIsDistinctFromBlocking(t *testing.T) {
	s := newMemStore()
	f := newFakeFetcher().ok(fullURL, driftedListing)
	p := newTestPipeline(s, f, testConfig())

	res, err := p.Run(context.Background(), "")
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Cause, ErrStructuralDrift)
	assert.NotErrorIs(t, res.Cause, ErrAllBlocked)
	assert.Equal(t, 1, res.Stats.Successes)
	assert.Empty(t, s.jobs)
	assert.Equal(t, models.ScrapeStatusFailed, s.lastLog().Status)
	require.NotNil(t, s.lastLog().ErrorMessage)
	assert.Equal(t, ErrStructuralDrift.Error(), *s.lastLog().ErrorMessage)
}

func TestRun_NetworkFailureIsHighFailureRate(t *testing.T) {
	s := newMemStore()
	p := newTestPipeline(s, newFakeFetcher(), testConfig())

	res, err := p.Run(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Cause, ErrHighFailureRate)
	assert.Equal(t, 1, res.Stats.Errors)
	assert.Nil(t, s.lastLog().SampleHTML)
}

func TestRun_LaterPageFailureIsPartial(t *testing.T) {
	s := newMemStore()
	f := newFakeFetcher().ok(fullURL, listingPage1)
	p := newTestPipeline(s, f, testConfig())

	res, err := p.Run(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, models.ScrapeStatusPartial, res.Status)
	assert.Equal(t, 2, res.Stats.Found)
	assert.Equal(t, 1, res.Stats.Errors)
	assert.Equal(t, models.ScrapeStatusPartial, s.lastLog().Status)
}

func TestRun_MaxPagesStopsCrawl(t *testing.T) {
	s := newMemStore()
	f := newFakeFetcher().ok(fullURL, listingPage1).ok(page2URL, listingPage2)
	cfg := testConfig()
	cfg.MaxPages = 1
	p := newTestPipeline(s, f, cfg)

	res, err := p.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats.Found)
	assert.Equal(t, 0, f.callCount(page2URL))
}

func TestRun_InvalidMode(t *testing.T) {
	p := newTestPipeline(newMemStore(), newFakeFetcher(), testConfig())
	_, err := p.Run(context.Background(), "weekly")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestRun_LockHeld(t *testing.T) {
	s := newMemStore()
	f := newFakeFetcher().ok(fullURL, listingPage1)
	lock := &fakeLocker{held: true}
	p := newTestPipeline(s, f, testConfig(), WithLocker(lock))

	_, err := p.Run(context.Background(), "")
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Empty(t, s.logs)
	assert.Empty(t, f.calls)
}

func TestRun_LockReleased(t *testing.T) {
	lock := &fakeLocker{}
	f := newFakeFetcher().ok(fullURL, listingPage1).ok(page2URL, listingPage2)
	p := newTestPipeline(newMemStore(), f, testConfig(), WithLocker(lock))

	_, err := p.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, lock.locked)
	assert.Equal(t, 1, lock.unlocked)
}

func TestRun_UpsertErrorFailsRun(t *testing.T) {
	s := newMemStore()
	s.upsertErr = errors.New("connection reset")
	f := newFakeFetcher().ok(fullURL, listingPage1)
	p := newTestPipeline(s, f, testConfig())

	_, err := p.Run(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upserting listing page 1")
	assert.Equal(t, models.ScrapeStatusFailed, s.lastLog().Status)
}

func TestRun_ExpirySweep(t *testing.T) {
	s := newMemStore()
	yesterday := testNow.AddDate(0, 0, -1).Format(normalize.ISODate)
	tomorrow := testNow.AddDate(0, 0, 1).Format(normalize.ISODate)
	desc := "Already enriched"
	s.jobs["old"] = models.JobRecord{GUID: "old", Title: "Old", SourceURL: "x", ClosingDate: &yesterday, Description: &desc, IsActive: true}
	s.jobs["new"] = models.JobRecord{GUID: "new", Title: "New", SourceURL: "y", ClosingDate: &tomorrow, Description: &desc, IsActive: true}

	f := newFakeFetcher().ok(recentURL, listingPage2)
	cfg := testConfig()
	cfg.FetchBudget = 10
	p := newTestPipeline(s, f, cfg)

	res, err := p.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)
	assert.False(t, s.jobs["old"].IsActive)
	assert.True(t, s.jobs["new"].IsActive)
}

func TestRun_EnrichmentCappedByRemainingBudget(t *testing.T) {
	s := newMemStore()
	f := newFakeFetcher().ok(fullURL, listingPage2)
	for _, id := range []string{"1001", "1002", "1003"} {
		f.ok(vacancyURL+id, fullDetail)
	}
	s.jobs["a"] = models.JobRecord{GUID: "a", Title: "A", SourceURL: vacancyURL + "1001", IsActive: true}
	s.jobs["b"] = models.JobRecord{GUID: "b", Title: "B", SourceURL: vacancyURL + "1002", IsActive: true}

	cfg := testConfig()
	cfg.FetchBudget = 3
	p := newTestPipeline(s, f, cfg)

	res, err := p.Run(context.Background(), models.URLTypeFull)
	require.NoError(t, err)
	require.NotNil(t, res.Enrichment)
	assert.Equal(t, 2, res.Enrichment.Attempted)
	assert.Equal(t, 2, res.Enrichment.Enriched)
	assert.Equal(t, models.ScrapeStatusSuccess, res.Status)
	assert.Equal(t, 3, len(f.calls))
}

func TestRun_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	f := newFakeFetcher().ok(fullURL, listingPage1).ok(page2URL, listingPage2)
	p := newTestPipeline(newMemStore(), f, testConfig(), WithMetrics(m))

	_, err := p.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues(string(fetcher.OutcomeSuccess))))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.JobsUpsertedTotal.WithLabelValues("insert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScrapeRunsTotal.WithLabelValues(models.URLTypeFull, models.ScrapeStatusSuccess)))
}

func TestFetchStats_Classify(t *testing.T) {
	tests := []struct {
		name  string
		stats FetchStats
		found int
		want  error
	}{
		{"all blocked", FetchStats{Attempts: 3, Blocks: 3}, 0, ErrAllBlocked},
		{"mostly failing, nothing found", FetchStats{Attempts: 3, Successes: 1, Blocks: 1, Errors: 1}, 0, ErrHighFailureRate},
		{"mostly failing, jobs found", FetchStats{Attempts: 3, Successes: 1, Errors: 2}, 5, nil},
		{"loaded but nothing parsed", FetchStats{Attempts: 2, Successes: 2}, 0, ErrStructuralDrift},
		{"half failing is not high", FetchStats{Attempts: 2, Successes: 1, Errors: 1}, 0, ErrStructuralDrift},
		{"healthy", FetchStats{Attempts: 2, Successes: 2}, 40, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.stats.Classify(tt.found)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFetchStats_Record(t *testing.T) {
	var s FetchStats
	for _, o := range []fetcher.Outcome{fetcher.OutcomeSuccess, fetcher.OutcomeBlocked, fetcher.OutcomeHTTPError, fetcher.OutcomeNetworkError} {
		s.Record(o)
	}
	assert.Equal(t, FetchStats{Attempts: 4, Successes: 1, Blocks: 1, Errors: 2}, s)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", truncateString("abc", 10))
	assert.Equal(t, "ab", truncateString("abc", 2))
	assert.Equal(t, "", truncateString("£", 1))
	assert.Equal(t, "abc", truncateString("abc", 0))
}
