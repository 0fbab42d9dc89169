// Package parser extracts job data from the portal's listing and detail pages
// and from the secondary job board the portal sometimes redirects to.
//
// Each extraction rule is a named strategy tried in order. Parsers tolerate
// malformed markup: a broken section or row is logged and skipped, and the
// top-level functions only fail when the document cannot be read at all.
package parser

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	// ErrNoDocument is returned when the input cannot be parsed as HTML.
	ErrNoDocument = errors.New("unreadable html document")
	// ErrParse marks a malformed section or row. It is logged per item and
	// never returned from the package's top-level functions.
	ErrParse = errors.New("malformed html segment")
)

func loadDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDocument, err)
	}
	return doc, nil
}

// parseBase parses the page URL used to resolve relative links. A bad or
// empty base leaves links as found.
func parseBase(pageURL string) *url.URL {
	if pageURL == "" {
		return nil
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	return u
}

// resolveURL makes href absolute against base.
func resolveURL(base *url.URL, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", fmt.Errorf("%w: unusable href %q", ErrParse, href)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrParse, err)
	}
	if base == nil {
		return ref.String(), nil
	}
	return base.ResolveReference(ref).String(), nil
}

// normalizeURL gives the dedup form of a link: lower-cased scheme and host,
// no fragment, no trailing slash.
func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

func cleanText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
