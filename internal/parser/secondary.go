package parser

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kiranshivaraju/iomjobs/pkg/models"
	"github.com/kiranshivaraju/iomjobs/pkg/normalize"
)

// SecondaryDetail is what the secondary job board exposes for a posting.
// Dates are ISO formatted; fields the page does not provide are empty.
type SecondaryDetail struct {
	Title       string
	Description string
	Salary      string
	Employer    string
	Location    string
	JobType     string
	ClosingDate string
	PostedDate  string
}

// ParseSecondary extracts a posting from a secondary board page. The
// schema.org JobPosting block is preferred; description containers are the
// fallback when it is missing or has no description.
func ParseSecondary(page string) (*SecondaryDetail, error) {
	doc, err := loadDocument(page)
	if err != nil {
		return nil, err
	}

	sd := &SecondaryDetail{}
	if posting := findJobPosting(doc); posting != nil {
		applyJobPosting(sd, posting)
	}

	if sd.Description == "" {
		doc.Find("[class*='description'], [class*='line-item'], [class*='lineitem']").EachWithBreak(
			func(_ int, s *goquery.Selection) bool {
				sd.Description = cellText(s)
				return sd.Description == ""
			})
	}
	if sd.Title == "" {
		sd.Title = cleanText(doc.Find("h1").First())
	}
	return sd, nil
}

// findJobPosting returns the first JobPosting object among the page's
// JSON-LD blocks. Blocks may be single objects, arrays or @graph wrappers.
func findJobPosting(doc *goquery.Document) map[string]any {
	var posting map[string]any
	doc.Find("script[type='application/ld+json']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return true
		}
		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return true
		}
		posting = searchJobPosting(data)
		return posting == nil
	})
	return posting
}

func searchJobPosting(v any) map[string]any {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if p := searchJobPosting(item); p != nil {
				return p
			}
		}
	case map[string]any:
		if isType(t["@type"], "JobPosting") {
			return t
		}
		if graph, ok := t["@graph"]; ok {
			return searchJobPosting(graph)
		}
	}
	return nil
}

func isType(v any, want string) bool {
	switch t := v.(type) {
	case string:
		return t == want
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func applyJobPosting(sd *SecondaryDetail, p map[string]any) {
	sd.Title = strings.TrimSpace(stringValue(p["title"]))
	if desc := stringValue(p["description"]); desc != "" {
		sd.Description = HTMLToText(desc)
	}
	sd.Salary = formatSalary(p["baseSalary"])
	sd.JobType = strings.Join(stringList(p["employmentType"]), ", ")
	sd.ClosingDate = models.Deref(normalize.ParseDate(stringValue(p["validThrough"])))
	sd.PostedDate = models.Deref(normalize.ParseDate(stringValue(p["datePosted"])))
	sd.Employer = nameOf(p["hiringOrganization"])
	sd.Location = formatLocation(p["jobLocation"])
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		if t != "" {
			return []string{strings.ReplaceAll(t, "_", " ")}
		}
	case []any:
		var out []string
		for _, item := range t {
			if s := stringValue(item); s != "" {
				out = append(out, strings.ReplaceAll(s, "_", " "))
			}
		}
		return out
	}
	return nil
}

func nameOf(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		return strings.TrimSpace(stringValue(t["name"]))
	}
	return ""
}

func formatLocation(v any) string {
	switch t := v.(type) {
	case []any:
		var parts []string
		for _, item := range t {
			if s := formatLocation(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		addr, ok := t["address"]
		if !ok {
			return nameOf(t)
		}
		if s, ok := addr.(string); ok {
			return strings.TrimSpace(s)
		}
		a, ok := addr.(map[string]any)
		if !ok {
			return ""
		}
		var parts []string
		for _, key := range []string{"streetAddress", "addressLocality", "addressRegion", "postalCode", "addressCountry"} {
			s := strings.TrimSpace(stringValue(a[key]))
			if s == "" {
				s = nameOf(a[key])
			}
			if s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case string:
		return strings.TrimSpace(t)
	}
	return ""
}

var currencySymbols = map[string]string{"GBP": "£", "USD": "$", "EUR": "€"}

var salaryUnitText = map[string]string{
	"YEAR": "per annum",
	"WEEK": "per week",
	"DAY":  "per day",
	"HOUR": "per hour",
}

// Monthly amounts have no salary type of their own; they are annualised.
const monthsPerYear = 12

// annualise multiplies a numeric amount by twelve. Non-numeric text is
// returned unchanged.
func annualise(amount string) string {
	n, err := strconv.ParseFloat(strings.ReplaceAll(amount, ",", ""), 64)
	if err != nil {
		return amount
	}
	return strconv.FormatFloat(n*monthsPerYear, 'f', -1, 64)
}

// formatSalary renders a schema.org baseSalary as text the salary parser
// understands, e.g. "£25000 - £30000 per annum". Monthly figures come out
// as annual ones.
func formatSalary(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return stringValue(t)
	case map[string]any:
		symbol := ""
		if cur := strings.ToUpper(stringValue(t["currency"])); cur != "" {
			symbol = currencySymbols[cur]
			if symbol == "" {
				symbol = cur + " "
			}
		}

		unit := stringValue(t["unitText"])
		amount := ""
		switch val := t["value"].(type) {
		case map[string]any:
			if u := stringValue(val["unitText"]); u != "" {
				unit = u
			}
			lo, hi := stringValue(val["minValue"]), stringValue(val["maxValue"])
			single := stringValue(val["value"])
			if strings.EqualFold(unit, "MONTH") {
				lo, hi, single = annualise(lo), annualise(hi), annualise(single)
				unit = "YEAR"
			}
			switch {
			case lo != "" && hi != "" && lo != hi:
				amount = fmt.Sprintf("%s%s - %s%s", symbol, lo, symbol, hi)
			case lo != "":
				amount = symbol + lo
			case hi != "":
				amount = symbol + hi
			case single != "":
				amount = symbol + single
			}
		default:
			if s := stringValue(val); s != "" {
				if strings.EqualFold(unit, "MONTH") {
					s, unit = annualise(s), "YEAR"
				}
				amount = symbol + s
			}
		}
		if amount == "" {
			return ""
		}
		if u, ok := salaryUnitText[strings.ToUpper(unit)]; ok {
			amount += " " + u
		}
		return amount
	}
	return ""
}
