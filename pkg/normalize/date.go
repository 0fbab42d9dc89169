package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ISODate is the layout stored for every date column.
const ISODate = "2006-01-02"

var genericDateLayouts = []string{
	ISODate,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123,
	time.RFC1123Z,
	"January 2, 2006",
	"Jan 2, 2006",
	"Monday, January 2, 2006",
	"Mon, 2 Jan 2006",
}

var (
	numericDateRe = regexp.MustCompile(`\b(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{4})\b`)
	namedDateRe   = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?([a-z]+)\.?,?\s+(\d{4})\b`)
)

var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// ParseDate converts free text into a YYYY-MM-DD string. It returns nil when
// no date can be recognised. Numeric dates are read day-first.
func ParseDate(text string) *string {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil
	}

	for _, layout := range genericDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return formatDate(t)
		}
	}

	if m := numericDateRe.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[2])
		if d := buildDate(m[3], time.Month(month), m[1]); d != nil {
			return d
		}
	}

	for _, m := range namedDateRe.FindAllStringSubmatch(s, -1) {
		month, ok := monthNames[strings.ToLower(m[2])]
		if !ok {
			continue
		}
		if d := buildDate(m[3], month, m[1]); d != nil {
			return d
		}
	}

	return nil
}

// buildDate rejects out-of-range components rather than letting time.Date
// roll 31/02 over into March.
func buildDate(year string, month time.Month, day string) *string {
	y, err := strconv.Atoi(year)
	if err != nil {
		return nil
	}
	d, err := strconv.Atoi(day)
	if err != nil || month < time.January || month > time.December || d < 1 {
		return nil
	}
	t := time.Date(y, month, d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || t.Month() != month {
		return nil
	}
	return formatDate(t)
}

func formatDate(t time.Time) *string {
	s := t.Format(ISODate)
	return &s
}

// DateBefore reports whether the ISO date a falls before b. Unparseable
// inputs compare as not-before.
func DateBefore(a, b string) bool {
	ta, err := time.Parse(ISODate, a)
	if err != nil {
		return false
	}
	tb, err := time.Parse(ISODate, b)
	if err != nil {
		return false
	}
	return ta.Before(tb)
}
