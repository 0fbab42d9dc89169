package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/iomjobs/internal/pipeline"
	"github.com/kiranshivaraju/iomjobs/internal/store"
	"github.com/kiranshivaraju/iomjobs/pkg/models"
	"github.com/stretchr/testify/require"
)

// --- pipeline fakes ---

type fakeRunner struct {
	mode   string
	result *pipeline.Result
	err    error
	ctxErr error
}

func (f *fakeRunner) Run(ctx context.Context, mode string) (*pipeline.Result, error) {
	f.mode = mode
	f.ctxErr = ctx.Err()
	return f.result, f.err
}

type fakeEnricher struct {
	result *pipeline.EnrichResult
	err    error
}

func (f *fakeEnricher) Enrich(_ context.Context) (*pipeline.EnrichResult, error) {
	return f.result, f.err
}

type fakeReparser struct {
	limit  int
	result *pipeline.ReparseResult
	err    error
}

func (f *fakeReparser) Reparse(_ context.Context, limit int) (*pipeline.ReparseResult, error) {
	f.limit = limit
	return f.result, f.err
}

// --- store fakes ---

type fakeJobs struct {
	jobs    map[string]*models.JobRecord
	list    []*models.JobRecord
	total   int
	err     error
	filter  store.JobFilter
	getCall int
}

func (f *fakeJobs) GetJob(_ context.Context, guid string) (*models.JobRecord, error) {
	f.getCall++
	if f.err != nil {
		return nil, f.err
	}
	j, ok := f.jobs[guid]
	if !ok {
		return nil, store.ErrNotFound
	}
	return j, nil
}

func (f *fakeJobs) ListJobs(_ context.Context, filter store.JobFilter) ([]*models.JobRecord, int, error) {
	f.filter = filter
	return f.list, f.total, f.err
}

type fakeLogs struct {
	logs   []*models.ScrapeLog
	err    error
	filter store.ScrapeLogFilter
}

func (f *fakeLogs) ListScrapeLogs(_ context.Context, filter store.ScrapeLogFilter) ([]*models.ScrapeLog, error) {
	f.filter = filter
	return f.logs, f.err
}

// --- cache fakes ---

type fakeCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	b, ok := c.data[key]
	return b, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(_ context.Context) error { return p.err }

// --- helpers ---

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Error.Code
}

func strPtr(s string) *string { return &s }
