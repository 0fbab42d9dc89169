package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/iomjobs/internal/fetcher"
	"github.com/kiranshivaraju/iomjobs/internal/parser"
	"github.com/kiranshivaraju/iomjobs/internal/store"
	"github.com/kiranshivaraju/iomjobs/pkg/models"
	"github.com/kiranshivaraju/iomjobs/pkg/normalize"
)

// --- in-memory store ---

type memStore struct {
	mu        sync.Mutex
	jobs      map[string]models.JobRecord
	logs      []*models.ScrapeLog
	progress  int
	upsertErr error
	listErr   error
	now       time.Time
}

func newMemStore() *memStore {
	return &memStore{jobs: map[string]models.JobRecord{}, now: time.Date(2025, 6, 15, 6, 0, 0, 0, time.UTC)}
}

var _ store.Store = (*memStore)(nil)

func (s *memStore) Ping(context.Context) error { return nil }

func (s *memStore) CountJobs(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs), nil
}

func (s *memStore) UpsertJobs(ctx context.Context, jobs []models.JobRecord) (store.UpsertResult, error) {
	var (
		res  store.UpsertResult
		errs []error
	)
	for _, j := range jobs {
		inserted, err := s.UpsertJob(ctx, j)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
	return res, errors.Join(errs...)
}

func (s *memStore) UpsertJob(_ context.Context, job models.JobRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return false, s.upsertErr
	}
	if existing, ok := s.jobs[job.GUID]; ok {
		s.jobs[job.GUID] = store.Merge(existing, job, s.now)
		return false, nil
	}
	job.IsActive = true
	job.ScrapedAt, job.UpdatedAt = s.now, s.now
	s.jobs[job.GUID] = job
	return true, nil
}

func (s *memStore) GetJob(_ context.Context, guid string) (*models.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[guid]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &j, nil
}

func (s *memStore) ListJobs(context.Context, store.JobFilter) ([]*models.JobRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sorted(func(models.JobRecord) bool { return true })
	return out, len(out), nil
}

func (s *memStore) ListEnrichmentCandidates(_ context.Context, q store.EnrichmentQuery) ([]*models.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sorted(func(j models.JobRecord) bool {
		if !j.IsActive || j.SourceURL == "" {
			return false
		}
		return j.Description == nil || parser.IsStubRedirect(*j.Description, q.StubThreshold)
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *memStore) ListReparseCandidates(_ context.Context, limit int) ([]*models.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := s.sorted(func(j models.JobRecord) bool { return j.IsActive && j.RawHTML != nil })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ExpireJobs(_ context.Context, today string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for guid, j := range s.jobs {
		if j.IsActive && j.ClosingDate != nil && normalize.DateBefore(*j.ClosingDate, today) {
			j.IsActive = false
			s.jobs[guid] = j
			n++
		}
	}
	return n, nil
}

func (s *memStore) CreateScrapeLog(_ context.Context, l *models.ScrapeLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	s.logs = append(s.logs, &cp)
	return nil
}

func (s *memStore) UpdateScrapeLogProgress(_ context.Context, id uuid.UUID, found, inserted, updated int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.log(id)
	if l == nil || l.Status != models.ScrapeStatusRunning {
		return store.ErrNotFound
	}
	l.JobsFound, l.JobsInserted, l.JobsUpdated = found, inserted, updated
	s.progress++
	return nil
}

func (s *memStore) FinalizeScrapeLog(_ context.Context, id uuid.UUID, status string, opts ...store.ScrapeLogOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.log(id)
	if l == nil {
		return store.ErrNotFound
	}
	if !store.CanTransition(l.Status, status) {
		return store.ErrInvalidTransition
	}
	now := s.now
	l.Status = status
	l.CompletedAt = &now
	store.ApplyScrapeLogOptions(l, opts...)
	return nil
}

func (s *memStore) ListScrapeLogs(context.Context, store.ScrapeLogFilter) ([]*models.ScrapeLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logs, nil
}

func (s *memStore) GetAPIKeyByPrefix(context.Context, string) ([]*models.APIKey, error) {
	return nil, nil
}

func (s *memStore) UpdateAPIKeyLastUsed(context.Context, uuid.UUID) error { return nil }

func (s *memStore) CreateAPIKey(context.Context, *models.APIKey) error { return nil }

func (s *memStore) log(id uuid.UUID) *models.ScrapeLog {
	for _, l := range s.logs {
		if l.ID == id {
			return l
		}
	}
	return nil
}

func (s *memStore) lastLog() *models.ScrapeLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.logs) == 0 {
		return nil
	}
	return s.logs[len(s.logs)-1]
}

func (s *memStore) sorted(keep func(models.JobRecord) bool) []*models.JobRecord {
	guids := make([]string, 0, len(s.jobs))
	for g := range s.jobs {
		guids = append(guids, g)
	}
	sort.Strings(guids)
	var out []*models.JobRecord
	for _, g := range guids {
		j := s.jobs[g]
		if keep(j) {
			out = append(out, &j)
		}
	}
	return out
}

// --- scripted fetcher ---

type route struct {
	body    string
	outcome fetcher.Outcome
}

type fakeFetcher struct {
	mu     sync.Mutex
	routes map[string]route
	calls  []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{routes: map[string]route{}}
}

func (f *fakeFetcher) ok(u, body string) *fakeFetcher {
	f.routes[u] = route{body: body, outcome: fetcher.OutcomeSuccess}
	return f
}

func (f *fakeFetcher) blocked(u string) *fakeFetcher {
	f.routes[u] = route{body: "<html><body>Request Rejected. Your support ID is 123</body></html>", outcome: fetcher.OutcomeBlocked}
	return f
}

// Fetch serves scripted routes. Unknown URLs fail as network errors.
func (f *fakeFetcher) Fetch(_ context.Context, u string) (*fetcher.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, u)

	r, ok := f.routes[u]
	if !ok {
		return nil, fmt.Errorf("%w: connection refused", fetcher.ErrNetwork)
	}
	page := &fetcher.Page{URL: u, StatusCode: 200, Outcome: r.outcome, Body: r.body}
	switch r.outcome {
	case fetcher.OutcomeBlocked:
		page.StatusCode = 403
		return page, fmt.Errorf("%w: status 403", fetcher.ErrBlocked)
	case fetcher.OutcomeHTTPError:
		page.StatusCode = 500
		return page, fmt.Errorf("%w: status 500", fetcher.ErrHTTPStatus)
	}
	page.HTML = r.body
	return page, nil
}

func (f *fakeFetcher) callCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// --- locker ---

type fakeLocker struct {
	held     bool
	locked   int
	unlocked int
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (string, bool, error) {
	if l.held {
		return "", false, nil
	}
	l.locked++
	return "token", true, nil
}

func (l *fakeLocker) Unlock(context.Context, string, string) error {
	l.unlocked++
	return nil
}
