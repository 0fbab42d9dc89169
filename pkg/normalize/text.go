package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/kiranshivaraju/iomjobs/pkg/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonKeyCharsRe = regexp.MustCompile(`[^a-z0-9]+`)
	spaceRunRe    = regexp.MustCompile(`\s+`)
	upper         = cases.Upper(language.BritishEnglish)
)

// foldDiacritics strips combining marks so "Rèsumé" becomes "Resume".
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// LabelKey turns a detail-page label such as "Closing Date:" into the
// snake_case key "closing_date".
func LabelKey(label string) string {
	s := strings.ToLower(foldDiacritics(label))
	s = nonKeyCharsRe.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// CollapseSpace trims s and reduces internal whitespace runs to one space.
func CollapseSpace(s string) string {
	return strings.TrimSpace(spaceRunRe.ReplaceAllString(s, " "))
}

// Classification upper-cases a section heading.
func Classification(s string) string {
	return upper.String(CollapseSpace(s))
}

// HoursType derives full-time or part-time from hours text. It returns nil
// when neither is mentioned.
func HoursType(hours string) *string {
	s := strings.ToLower(hours)
	var v string
	switch {
	case strings.Contains(s, "full time"), strings.Contains(s, "full-time"), strings.Contains(s, "fulltime"):
		v = models.HoursFullTime
	case strings.Contains(s, "part time"), strings.Contains(s, "part-time"), strings.Contains(s, "parttime"):
		v = models.HoursPartTime
	default:
		return nil
	}
	return &v
}
