package pipeline

import (
	"unicode/utf8"

	"github.com/kiranshivaraju/iomjobs/internal/fetcher"
	"github.com/kiranshivaraju/iomjobs/pkg/models"
)

// FetchStats counts listing fetch outcomes for one run.
type FetchStats struct {
	Attempts  int `json:"fetch_attempts"`
	Successes int `json:"fetch_successes"`
	Blocks    int `json:"waf_blocks"`
	Errors    int `json:"fetch_errors"`
}

// Record counts one fetch outcome. HTTP and network errors both count as errors.
func (s *FetchStats) Record(o fetcher.Outcome) {
	s.Attempts++
	switch o {
	case fetcher.OutcomeSuccess:
		s.Successes++
	case fetcher.OutcomeBlocked:
		s.Blocks++
	default:
		s.Errors++
	}
}

// Classify returns the failure category for a finished listing crawl, or nil
// when the run may proceed. Checks are applied in order: every attempt
// blocked, then more than half failing with nothing found, then nothing
// parsed from pages that did load.
func (s FetchStats) Classify(found int) error {
	if s.Attempts > 0 && s.Blocks == s.Attempts {
		return ErrAllBlocked
	}
	if found == 0 && (s.Blocks+s.Errors)*2 > s.Attempts {
		return ErrHighFailureRate
	}
	if found == 0 && s.Successes > 0 {
		return ErrStructuralDrift
	}
	return nil
}

// batchStatus maps per-item failures onto a run status: failed only when
// every attempt failed.
func batchStatus(attempted, failed int) string {
	switch {
	case failed == 0:
		return models.ScrapeStatusSuccess
	case failed >= attempted:
		return models.ScrapeStatusFailed
	default:
		return models.ScrapeStatusPartial
	}
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
