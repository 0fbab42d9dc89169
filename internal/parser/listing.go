package parser

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/kiranshivaraju/iomjobs/pkg/models"
	"github.com/kiranshivaraju/iomjobs/pkg/normalize"
)

// ListingStrategy extracts partial job records from a search-results page.
type ListingStrategy struct {
	Name    string
	Extract func(doc *goquery.Document, base *url.URL) []models.JobRecord
}

// ListingStrategies are tried in order; the first to yield records wins.
var ListingStrategies = []ListingStrategy{
	{Name: "grouped", Extract: extractGrouped},
	{Name: "link_scan", Extract: extractLinkScan},
}

// ParseListing extracts job records from a listing page. Only title,
// employer, classification, hours, source URL and GUID are populated.
// An empty result with a nil error means the page parsed but no strategy
// matched, which callers treat as structural drift.
func ParseListing(page, pageURL string) ([]models.JobRecord, error) {
	doc, err := loadDocument(page)
	if err != nil {
		return nil, err
	}
	base := parseBase(pageURL)

	for _, s := range ListingStrategies {
		records := s.Extract(doc, base)
		if len(records) > 0 {
			slog.Debug("listing parsed", "strategy", s.Name, "jobs", len(records), "url", pageURL)
			return records, nil
		}
	}
	return []models.JobRecord{}, nil
}

const sectionHeaderSelector = "h2, h3, h4, .classification, .job-classification, caption"

// extractGrouped walks classification headers and tables in document order.
// Each table takes the classification of the nearest header before it.
func extractGrouped(doc *goquery.Document, base *url.URL) []models.JobRecord {
	var (
		records        []models.JobRecord
		classification string
		seen           = map[string]bool{}
	)

	doc.Find(sectionHeaderSelector + ", table").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) != "table" {
			if text := cleanText(s); text != "" && !inJobTable(s) {
				classification = normalize.Classification(text)
			}
			return
		}
		if caption := cleanText(s.ChildrenFiltered("caption")); caption != "" {
			classification = normalize.Classification(caption)
		}

		rows, err := parseSection(s, base, classification)
		if err != nil {
			slog.Warn("skipping listing section", "classification", classification, "error", err)
			return
		}
		for _, r := range rows {
			if seen[r.GUID] {
				continue
			}
			seen[r.GUID] = true
			records = append(records, r)
		}
	})
	return records
}

// inJobTable reports whether a header sits inside a table that has job rows
// of its own. Headers inside layout tables still count.
func inJobTable(header *goquery.Selection) bool {
	table := header.Closest("table")
	if table.Length() == 0 {
		return false
	}
	found := false
	table.Find("tr").EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		if tr.Closest("table").Get(0) != table.Get(0) || tr.Find("table").Length() > 0 {
			return true
		}
		found = tr.ChildrenFiltered("td").Find("a").Length() > 0
		return !found
	})
	return found
}

// parseSection extracts the rows of one classification table. A panic from
// malformed markup is reported as ErrParse for this section only.
func parseSection(table *goquery.Selection, base *url.URL, classification string) (rows []models.JobRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("%w: %v", ErrParse, r)
		}
	}()

	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.Closest("table").Get(0) != table.Get(0) {
			return
		}
		rec, rowErr := parseRow(tr, base, classification)
		if rowErr != nil {
			slog.Warn("skipping listing row", "classification", classification, "error", rowErr)
			return
		}
		if rec != nil {
			rows = append(rows, *rec)
		}
	})
	return rows, nil
}

// parseRow reads one table row laid out as id, linked title, employer, hours.
// The cell before the link is kept as the job reference.
// Rows without a link (headers, spacers) yield nil without error.
func parseRow(tr *goquery.Selection, base *url.URL, classification string) (*models.JobRecord, error) {
	cells := tr.ChildrenFiltered("td")
	if cells.Length() == 0 || tr.Find("table").Length() > 0 {
		return nil, nil
	}

	linkCell := -1
	cells.EachWithBreak(func(i int, td *goquery.Selection) bool {
		if td.Find("a").Length() > 0 {
			linkCell = i
			return false
		}
		return true
	})
	if linkCell < 0 {
		return nil, nil
	}

	link := cells.Eq(linkCell).Find("a").First()
	title := cleanText(link)
	if title == "" {
		return nil, fmt.Errorf("%w: link without title", ErrParse)
	}
	href, _ := link.Attr("href")
	sourceURL, err := resolveURL(base, href)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec := &models.JobRecord{
		GUID:      normalize.GUID(normalizeURL(sourceURL)),
		Title:     title,
		SourceURL: sourceURL,
		ScrapedAt: now,
		UpdatedAt: now,
		IsActive:  true,
	}
	if linkCell > 0 {
		if ref := cleanText(cells.Eq(linkCell - 1)); ref != "" {
			rec.Reference = &ref
		}
	}
	if classification != "" {
		rec.Classification = &classification
	}
	if linkCell+1 < cells.Length() {
		rec.Employer = models.StringPtr(cleanText(cells.Eq(linkCell + 1)))
	}
	if linkCell+2 < cells.Length() {
		hours := cleanText(cells.Eq(linkCell + 2))
		rec.HoursOption = models.StringPtr(hours)
		rec.HoursType = normalize.HoursType(hours)
	}
	return rec, nil
}

var (
	jobLinkKeywords = []string{"job", "vacanc"}
	detailLinkRe    = regexp.MustCompile(`(?i)(/vacanc(?:y|ies)/|/jobs?/|/jobsearch/)[^?#]*\d|[?&](?:jobid|vacancyid|vacancy|id)=\d+`)
	navLabels       = map[string]bool{
		"jobs": true, "all jobs": true, "search jobs": true, "job search": true,
		"view all jobs": true, "more jobs": true, "job alerts": true, "next": true,
		"previous": true, "back to results": true, "back to search results": true,
		"apply": true, "apply now": true, "vacancies": true, "current vacancies": true,
	}
)

const (
	minLinkTitle = 5
	maxLinkTitle = 200
)

// extractLinkScan is the fallback for pages whose grouped sections have
// disappeared: any anchor that looks like a job detail link is taken as a job.
func extractLinkScan(doc *goquery.Document, base *url.URL) []models.JobRecord {
	var records []models.JobRecord
	seen := map[string]bool{}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !hasJobKeyword(href) || !detailLinkRe.MatchString(href) {
			return
		}
		title := cleanText(a)
		if n := len([]rune(title)); n < minLinkTitle || n > maxLinkTitle {
			return
		}
		if navLabels[strings.ToLower(title)] {
			return
		}
		sourceURL, err := resolveURL(base, href)
		if err != nil {
			slog.Warn("skipping job link", "href", href, "error", err)
			return
		}
		key := normalizeURL(sourceURL)
		if seen[key] {
			return
		}
		seen[key] = true

		now := time.Now().UTC()
		records = append(records, models.JobRecord{
			GUID:      normalize.GUID(key),
			Title:     title,
			SourceURL: sourceURL,
			ScrapedAt: now,
			UpdatedAt: now,
			IsActive:  true,
		})
	})
	return records
}

func hasJobKeyword(href string) bool {
	h := strings.ToLower(href)
	for _, kw := range jobLinkKeywords {
		if strings.Contains(h, kw) {
			return true
		}
	}
	return false
}
