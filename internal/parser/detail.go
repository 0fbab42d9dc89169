package parser

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kiranshivaraju/iomjobs/pkg/normalize"
)

// Canonical field keys. Detail labels are mapped onto these through
// fieldSynonyms; they are the "promoted" keys that also fill job columns.
const (
	FieldTitle          = "title"
	FieldEmployer       = "employer"
	FieldLocation       = "location"
	FieldArea           = "area"
	FieldClassification = "classification"
	FieldSalary         = "salary"
	FieldHours          = "hours"
	FieldJobType        = "job_type"
	FieldPostedDate     = "posted_date"
	FieldClosingDate    = "closing_date"
	FieldStartDate      = "start_date"
	FieldReference      = "reference"
	FieldContactName    = "contact_name"
	FieldContactEmail   = "contact_email"
	FieldContactPhone   = "contact_phone"
	FieldQualifications = "qualifications"
	FieldExperience     = "experience"
	FieldBenefits       = "benefits"
	FieldHowToApply     = "how_to_apply"
	FieldDescription    = "description"
	FieldSummary        = "summary"
)

var fieldSynonyms = buildSynonyms(map[string][]string{
	FieldTitle:          {"title", "job_title", "position", "vacancy", "post"},
	FieldEmployer:       {"firm", "employer", "organisation", "organization", "department", "company", "employer_name"},
	FieldLocation:       {"address", "location", "work_location", "place_of_work", "workplace", "based_at"},
	FieldArea:           {"area", "region", "district", "town"},
	FieldClassification: {"classification", "category", "sector", "job_category"},
	FieldSalary:         {"salary", "pay", "wage", "wages", "rate_of_pay", "salary_range", "remuneration", "salary_grade"},
	FieldHours:          {"hours", "hours_of_work", "working_hours", "hours_option", "hours_per_week"},
	FieldJobType:        {"job_type", "type", "contract_type", "employment_type", "contract", "duration", "permanent_temporary"},
	FieldPostedDate:     {"posted_date", "date_posted", "posted", "advertised", "date_advertised", "published", "date_published"},
	FieldClosingDate:    {"closing_date", "closing", "close_date", "deadline", "application_deadline", "expiry_date", "closing_date_for_applications"},
	FieldStartDate:      {"start_date", "start", "commencement_date", "starting_date"},
	FieldReference:      {"reference", "ref", "ref_no", "reference_number", "job_reference", "vacancy_reference", "job_ref", "vacancy_number", "job_id"},
	FieldContactName:    {"contact", "contact_name", "contact_person", "enquiries_to"},
	FieldContactEmail:   {"email", "contact_email", "e_mail", "email_address"},
	FieldContactPhone:   {"telephone", "phone", "contact_phone", "tel", "telephone_number", "contact_number", "phone_number"},
	FieldQualifications: {"qualifications", "qualifications_required", "essential_qualifications", "requirements", "skills"},
	FieldExperience:     {"experience", "experience_required"},
	FieldBenefits:       {"benefits", "perks"},
	FieldHowToApply:     {"how_to_apply", "application_method", "to_apply", "applications"},
	FieldDescription:    {"notes", "description", "job_description", "details", "duties", "job_details", "further_details"},
	FieldSummary:        {"summary", "overview"},
})

func buildSynonyms(groups map[string][]string) map[string]string {
	m := make(map[string]string)
	for field, keys := range groups {
		for _, k := range keys {
			m[k] = field
		}
	}
	return m
}

// maxExtraKeyLen bounds the keys kept for unrecognised labels; longer "labels"
// are almost always prose that landed in a label cell.
const maxExtraKeyLen = 40

// Detail is the result of parsing a job detail page.
//
// Info holds every extracted value keyed by canonical field (for recognised
// labels) or by the snake_case label (for everything else). Labels maps the
// same keys to the label text as it appeared on the page.
type Detail struct {
	Description string
	ApplyURL    string
	Info        map[string]string
	Labels      map[string]string
}

// Get returns the value for a canonical field.
func (d *Detail) Get(field string) string {
	return d.Info[field]
}

// Extras returns the entries of Info that are not promoted to a canonical field.
func (d *Detail) Extras() map[string]string {
	extras := make(map[string]string)
	for k, v := range d.Info {
		if !IsPromoted(k) {
			extras[k] = v
		}
	}
	return extras
}

var promotedFields = func() map[string]bool {
	m := make(map[string]bool)
	for _, f := range fieldSynonyms {
		m[f] = true
	}
	return m
}()

// IsPromoted reports whether key is a canonical field.
func IsPromoted(key string) bool {
	return promotedFields[key]
}

type detailStrategy struct {
	name    string
	extract func(doc *goquery.Document, d *Detail)
}

var detailStrategies = []detailStrategy{
	{name: "table_rows", extract: extractTableRows},
	{name: "definition_list", extract: extractDefinitionList},
	{name: "heading_value", extract: extractHeadingValue},
}

// ParseDetail extracts labelled fields, the description and an apply link
// from a job detail page.
func ParseDetail(page, pageURL string) (*Detail, error) {
	doc, err := loadDocument(page)
	if err != nil {
		return nil, err
	}

	d := &Detail{Info: map[string]string{}, Labels: map[string]string{}}
	for _, s := range detailStrategies {
		s.extract(doc, d)
		if len(d.Info) > 0 {
			slog.Debug("detail parsed", "strategy", s.name, "fields", len(d.Info), "url", pageURL)
			break
		}
	}

	d.Description = d.Info[FieldDescription]
	if d.Description == "" {
		d.Description = descriptionContainer(doc)
	}
	d.ApplyURL = findApplyURL(doc, parseBase(pageURL))
	return d, nil
}

// add records a label/value pair. The first value seen for a key wins.
func (d *Detail) add(label, value string) {
	label = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(label), ":"))
	value = strings.TrimSpace(value)
	key := normalize.LabelKey(label)
	if key == "" || value == "" {
		return
	}
	if field, ok := fieldSynonyms[key]; ok {
		key = field
	} else if len(key) > maxExtraKeyLen {
		return
	}
	if _, exists := d.Info[key]; exists {
		return
	}
	d.Info[key] = value
	d.Labels[key] = label
}

// extractTableRows reads every row as label, value, label, value, ...
func extractTableRows(doc *goquery.Document, d *Detail) {
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("th, td")
		for i := 0; i+1 < cells.Length(); i += 2 {
			d.add(cleanText(cells.Eq(i)), cellText(cells.Eq(i+1)))
		}
	})
}

func extractDefinitionList(doc *goquery.Document, d *Detail) {
	doc.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		dd := dt.NextFiltered("dd")
		if dd.Length() == 0 {
			return
		}
		d.add(cleanText(dt), cellText(dd))
	})
}

// extractHeadingValue pairs a heading or bold label with the element after it.
func extractHeadingValue(doc *goquery.Document, d *Detail) {
	doc.Find("h2, h3, h4, strong, b, label").Each(func(_ int, h *goquery.Selection) {
		label := cleanText(h)
		if label == "" || len(label) > 80 {
			return
		}
		if next := h.Next(); next.Length() > 0 {
			d.add(label, cellText(next))
			return
		}
		// <p><strong>Salary:</strong> £20,000</p>
		parentText := cleanText(h.Parent())
		if rest := strings.TrimSpace(strings.TrimPrefix(parentText, label)); rest != parentText {
			d.add(label, rest)
		}
	})
}

func cellText(s *goquery.Selection) string {
	inner, err := s.Html()
	if err != nil {
		return cleanText(s)
	}
	return HTMLToText(inner)
}

func descriptionContainer(doc *goquery.Document) string {
	var text string
	doc.Find("#description, .job-description, .description, [class*='description']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text = cellText(s)
		return text == ""
	})
	return text
}

// findApplyURL tries, in order: a link whose class mentions apply, a link
// whose text mentions apply, a link whose href mentions apply.
func findApplyURL(doc *goquery.Document, base *url.URL) string {
	matchers := []func(a *goquery.Selection) bool{
		func(a *goquery.Selection) bool {
			return strings.Contains(strings.ToLower(a.AttrOr("class", "")), "apply")
		},
		func(a *goquery.Selection) bool {
			return strings.Contains(strings.ToLower(a.Text()), "apply")
		},
		func(a *goquery.Selection) bool {
			return strings.Contains(strings.ToLower(a.AttrOr("href", "")), "apply")
		},
	}

	anchors := doc.Find("a[href]")
	for _, match := range matchers {
		var found string
		anchors.EachWithBreak(func(_ int, a *goquery.Selection) bool {
			if !match(a) {
				return true
			}
			u, err := resolveURL(base, a.AttrOr("href", ""))
			if err != nil {
				return true
			}
			found = u
			return false
		})
		if found != "" {
			return found
		}
	}
	return ""
}
