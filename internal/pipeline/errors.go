package pipeline

import "errors"

// Run-level failure categories. A listing crawl that ends in one of the
// first three is finalized as failed; everything else degrades to success
// or partial.
var (
	ErrAllBlocked      = errors.New("all fetch attempts were blocked")
	ErrHighFailureRate = errors.New("high failure rate and no jobs found")
	ErrStructuralDrift = errors.New("parser found nothing despite successful fetch")
)

var (
	ErrRunInProgress = errors.New("a scrape run is already in progress")
	ErrInvalidMode   = errors.New("invalid scrape mode")
)
