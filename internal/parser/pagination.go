package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Pagination describes where a listing page sits in the result set. The next
// link and the page counters are read independently; either may be missing,
// in which case NextURL is empty or the counters are zero.
type Pagination struct {
	HasMore     bool   `json:"has_more"`
	NextURL     string `json:"next_url,omitempty"`
	CurrentPage int    `json:"current_page,omitempty"`
	TotalPages  int    `json:"total_pages,omitempty"`
}

var (
	pageOfRe       = regexp.MustCompile(`(?i)page\s+(\d+)\s+of\s+(\d+)`)
	nextLinkLabels = map[string]bool{
		"next": true, "next page": true, "next »": true, "next ›": true, "next >": true,
		"›": true, "»": true, ">": true, ">>": true,
	}
)

// ParsePagination reads the next-page link and "page X of Y" counters.
func ParsePagination(page, pageURL string) (Pagination, error) {
	doc, err := loadDocument(page)
	if err != nil {
		return Pagination{}, err
	}
	base := parseBase(pageURL)

	var p Pagination
	if href := findNextLink(doc); href != "" {
		if next, err := resolveURL(base, href); err == nil {
			p.NextURL = next
			p.HasMore = true
		}
	}

	if m := pageOfRe.FindStringSubmatch(doc.Text()); m != nil {
		p.CurrentPage, _ = strconv.Atoi(m[1])
		p.TotalPages, _ = strconv.Atoi(m[2])
	}
	return p, nil
}

func findNextLink(doc *goquery.Document) string {
	selectors := []string{
		"a[rel~='next'][href]",
		"link[rel='next'][href]",
		"a[class*='next'][href]",
		"li[class*='next'] a[href]",
	}
	for _, sel := range selectors {
		if href, ok := doc.Find(sel).First().Attr("href"); ok && usableHref(href) {
			return href
		}
	}

	var href string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		label := strings.ToLower(cleanText(a))
		if label == "" {
			label = strings.ToLower(strings.TrimSpace(a.AttrOr("aria-label", "")))
		}
		if !nextLinkLabels[label] {
			return true
		}
		if h := a.AttrOr("href", ""); usableHref(h) {
			href = h
			return false
		}
		return true
	})
	return href
}

func usableHref(href string) bool {
	h := strings.TrimSpace(href)
	return h != "" && !strings.HasPrefix(h, "#") && !strings.HasPrefix(strings.ToLower(h), "javascript:")
}
