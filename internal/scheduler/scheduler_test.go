package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/kiranshivaraju/iomjobs/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRunner struct {
	runs     []string
	enriches int
	runErr   error
	result   *pipeline.Result
}

func (m *mockRunner) Run(_ context.Context, mode string) (*pipeline.Result, error) {
	m.runs = append(m.runs, mode)
	if m.runErr != nil {
		return nil, m.runErr
	}
	return m.result, nil
}

func (m *mockRunner) Enrich(context.Context) (*pipeline.EnrichResult, error) {
	m.enriches++
	if m.runErr != nil {
		return nil, m.runErr
	}
	return &pipeline.EnrichResult{Status: "success"}, nil
}

func TestStart_RegistersBothJobs(t *testing.T) {
	s := New(&mockRunner{}, "0 6,18 * * *", "30 7,19 * * *")
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Len(t, s.cron.Entries(), 2)
}

func TestStart_InvalidSpec(t *testing.T) {
	tests := []struct {
		name    string
		scrape  string
		enrich  string
		wantErr string
	}{
		{"bad scrape", "whenever", "30 7,19 * * *", "adding scrape job"},
		{"bad enrich", "0 6,18 * * *", "99 * * * *", "adding enrichment job"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&mockRunner{}, tt.scrape, tt.enrich)
			err := s.Start(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunScrape_UsesAutoMode(t *testing.T) {
	m := &mockRunner{result: &pipeline.Result{Success: true, Status: "success"}}
	s := New(m, "@daily", "@daily")

	s.runScrape(context.Background())
	assert.Equal(t, []string{""}, m.runs)
}

func TestRunJobs_ErrorsAreNotFatal(t *testing.T) {
	for _, err := range []error{pipeline.ErrRunInProgress, errors.New("db down")} {
		m := &mockRunner{runErr: err}
		s := New(m, "@daily", "@daily")

		assert.NotPanics(t, func() {
			s.runScrape(context.Background())
			s.runEnrich(context.Background())
		})
		assert.Len(t, m.runs, 1)
		assert.Equal(t, 1, m.enriches)
	}
}

func TestRunScrape_UnsuccessfulResult(t *testing.T) {
	m := &mockRunner{result: &pipeline.Result{Success: false, Error: pipeline.ErrAllBlocked.Error()}}
	s := New(m, "@daily", "@daily")

	assert.NotPanics(t, func() { s.runScrape(context.Background()) })
}
