// Package fetcher retrieves pages from the job portal and classifies every
// response as usable HTML, an anti-bot block, an HTTP error or a network error.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sentinel errors for fetch failures.
var (
	ErrNetwork    = errors.New("network error")
	ErrBlocked    = errors.New("blocked by anti-bot protection")
	ErrHTTPStatus = errors.New("unexpected http status")
)

// Outcome is the classification of one fetch.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeBlocked      Outcome = "blocked"
	OutcomeHTTPError    Outcome = "http_error"
	OutcomeNetworkError Outcome = "network_error"
)

// DefaultUserAgent is a current desktop Chrome string.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

const maxBodyBytes = 10 << 20

// blockSignatures are phrases that only appear on WAF rejection pages.
var blockSignatures = []string{
	"Access Denied",
	"Request Rejected",
	"The requested URL was rejected",
	"Please enable JavaScript and cookies",
	"Attention Required! | Cloudflare",
	"Your support ID is",
}

// Page is the result of a fetch. Body always holds whatever the server sent
// so block pages can be captured for diagnosis; HTML is empty unless the
// outcome is OutcomeSuccess.
type Page struct {
	URL        string
	StatusCode int
	Outcome    Outcome
	Body       string
	HTML       string
}

// Fetcher retrieves a single page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*Page, error)
}

// HTTPFetcher implements Fetcher over net/http with browser-like headers.
type HTTPFetcher struct {
	userAgent string
	client    *http.Client
}

// NewHTTPFetcher creates a fetcher whose requests time out after timeout.
func NewHTTPFetcher(userAgent string, timeout time.Duration) *HTTPFetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPFetcher{
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

// Fetch GETs pageURL. A non-nil Page is returned for every outcome except a
// network error or an unbuildable request; the error wraps ErrBlocked,
// ErrHTTPStatus or ErrNetwork when the outcome is not a success.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrNetwork, err)
	}
	f.setHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classifyError(err)
	}

	page := &Page{URL: pageURL, StatusCode: resp.StatusCode, Body: string(raw)}
	switch {
	case IsBlockPage(page.Body):
		page.Outcome = OutcomeBlocked
		return page, fmt.Errorf("%w: status %d", ErrBlocked, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		page.Outcome = OutcomeHTTPError
		return page, fmt.Errorf("%w: status %d", ErrHTTPStatus, resp.StatusCode)
	}

	page.Outcome = OutcomeSuccess
	page.HTML = page.Body
	return page, nil
}

// IsBlockPage reports whether body carries a known block-page signature.
func IsBlockPage(body string) bool {
	for _, sig := range blockSignatures {
		if strings.Contains(body, sig) {
			return true
		}
	}
	return false
}

// OutcomeOf classifies a Fetch result.
func OutcomeOf(page *Page, err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrBlocked):
		return OutcomeBlocked
	case errors.Is(err, ErrHTTPStatus):
		return OutcomeHTTPError
	case page != nil && page.Outcome != "":
		return page.Outcome
	}
	return OutcomeNetworkError
}

// setHeaders mimics a browser navigation. The portal's WAF checks Referer
// and Origin against its own origin.
func (f *HTTPFetcher) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	if origin := originOf(req.URL); origin != "" {
		req.Header.Set("Origin", origin)
		req.Header.Set("Referer", origin+"/")
	}
}

func originOf(u *url.URL) string {
	if u == nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// classifyError maps transport-level errors to ErrNetwork, keeping timeouts
// distinguishable in the message.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: timeout: %v", ErrNetwork, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: timeout: %v", ErrNetwork, err)
	}

	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

// Compile-time check that HTTPFetcher implements Fetcher.
var _ Fetcher = (*HTTPFetcher)(nil)
