// Package normalize converts free-text job fields into typed values.
// Every function is pure and never panics on unexpected input.
package normalize

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/iomjobs/pkg/models"
)

// Salary is the parsed form of a salary string. All fields are nil when
// no number could be found.
type Salary struct {
	Min  *float64
	Max  *float64
	Type *string
}

// SalaryParser parses salary text.
//
// AnnualThousands enables the heuristic where a bare integer below 1000 in an
// annual salary is read as thousands ("£25 - £30 per annum" is 25000-30000).
// It can misread genuine small figures, so callers may switch it off.
type SalaryParser struct {
	AnnualThousands bool
}

// DefaultSalaryParser matches the behaviour the listing data has always been
// parsed with.
var DefaultSalaryParser = SalaryParser{AnnualThousands: true}

// ParseSalary parses text with DefaultSalaryParser.
func ParseSalary(text string) Salary {
	return DefaultSalaryParser.Parse(text)
}

var (
	salaryNumberRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)(k\b)?`)
	thousandsSepRe    = regexp.MustCompile(`(\d),(\d{3})`)
	currencySymbolsRe = regexp.MustCompile(`[£$€]|gbp`)
)

var salaryUnits = []struct {
	salaryType string
	keywords   []string
}{
	{models.SalaryHourly, []string{"per hour", "hourly", "/hour", "/hr", "p.h.", "ph"}},
	{models.SalaryDaily, []string{"per day", "daily", "/day"}},
	{models.SalaryWeekly, []string{"per week", "weekly", "/week", "p.w."}},
	{models.SalaryAnnual, []string{"per annum", "p.a.", "pa", "annual", "per year", "a year"}},
}

// Parse extracts the min, max and type from a salary string.
func (p SalaryParser) Parse(text string) Salary {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return Salary{}
	}

	salaryType := classifySalary(s)

	s = currencySymbolsRe.ReplaceAllString(s, "")
	for thousandsSepRe.MatchString(s) {
		s = thousandsSepRe.ReplaceAllString(s, "$1$2")
	}

	var values []float64
	for _, m := range salaryNumberRe.FindAllStringSubmatch(s, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		switch {
		case m[2] != "":
			v *= 1000
		case p.AnnualThousands && (salaryType == "" || salaryType == models.SalaryAnnual) &&
			!strings.Contains(m[1], ".") && v > 0 && v < 1000:
			v *= 1000
		}
		values = append(values, v)
	}

	if len(values) == 0 {
		return Salary{}
	}
	if salaryType == "" {
		salaryType = models.SalaryAnnual
	}

	sort.Float64s(values)
	lo, hi := values[0], values[len(values)-1]
	return Salary{Min: &lo, Max: &hi, Type: &salaryType}
}

func classifySalary(s string) string {
	for _, u := range salaryUnits {
		for _, kw := range u.keywords {
			if containsKeyword(s, kw) {
				return u.salaryType
			}
		}
	}
	return ""
}

// containsKeyword matches short alphabetic keywords ("pa", "ph") only as whole
// words so that "pay" or "graph" do not classify the salary.
func containsKeyword(s, kw string) bool {
	if len(kw) > 2 {
		return strings.Contains(s, kw)
	}
	for _, f := range strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	}) {
		if f == kw {
			return true
		}
	}
	return false
}
