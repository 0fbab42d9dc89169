// Package models contains shared data models used across the iomjobs codebase.
package models

import "time"

// Salary types recognised by the normalizers.
const (
	SalaryAnnual = "annual"
	SalaryHourly = "hourly"
	SalaryDaily  = "daily"
	SalaryWeekly = "weekly"
)

// Hours types derived from the listing's hours text.
const (
	HoursFullTime = "full-time"
	HoursPartTime = "part-time"
)

// JobRecord is the canonical job listing. GUID is the sole identity key:
// it is derived from the source URL and never changes after creation.
//
// Optional fields are pointers; nil means "unknown", which the merge
// treats as "keep whatever is already stored".
type JobRecord struct {
	GUID           string            `db:"guid"            json:"guid"`
	Title          string            `db:"title"           json:"title"`
	Employer       *string           `db:"employer"        json:"employer,omitempty"`
	Location       *string           `db:"location"        json:"location,omitempty"`
	Classification *string           `db:"classification"  json:"classification,omitempty"`
	Area           *string           `db:"area"            json:"area,omitempty"`
	JobType        *string           `db:"job_type"        json:"job_type,omitempty"`
	HoursOption    *string           `db:"hours_option"    json:"hours_option,omitempty"`
	HoursType      *string           `db:"hours_type"      json:"hours_type,omitempty"`
	SalaryText     *string           `db:"salary_text"     json:"salary_text,omitempty"`
	SalaryMin      *float64          `db:"salary_min"      json:"salary_min,omitempty"`
	SalaryMax      *float64          `db:"salary_max"      json:"salary_max,omitempty"`
	SalaryType     *string           `db:"salary_type"     json:"salary_type,omitempty"`
	PostedDate     *string           `db:"posted_date"     json:"posted_date,omitempty"`
	ClosingDate    *string           `db:"closing_date"    json:"closing_date,omitempty"`
	StartDate      *string           `db:"start_date"      json:"start_date,omitempty"`
	Summary        *string           `db:"summary"         json:"summary,omitempty"`
	Description    *string           `db:"description"     json:"description,omitempty"`
	RawHTML        *string           `db:"raw_html"        json:"-"`
	Reference      *string           `db:"reference"       json:"reference,omitempty"`
	ContactName    *string           `db:"contact_name"    json:"contact_name,omitempty"`
	ContactEmail   *string           `db:"contact_email"   json:"contact_email,omitempty"`
	ContactPhone   *string           `db:"contact_phone"   json:"contact_phone,omitempty"`
	Qualifications *string           `db:"qualifications"  json:"qualifications,omitempty"`
	Experience     *string           `db:"experience"      json:"experience,omitempty"`
	Benefits       *string           `db:"benefits"        json:"benefits,omitempty"`
	HowToApply     *string           `db:"how_to_apply"    json:"how_to_apply,omitempty"`
	AdditionalInfo map[string]string `db:"additional_info" json:"additional_info,omitempty"`
	FieldLabels    map[string]string `db:"field_labels"    json:"field_labels,omitempty"`
	SourceURL      string            `db:"source_url"      json:"source_url"`
	ApplyURL       *string           `db:"apply_url"       json:"apply_url,omitempty"`
	ScrapedAt      time.Time         `db:"scraped_at"      json:"scraped_at"`
	UpdatedAt      time.Time         `db:"updated_at"      json:"updated_at"`
	IsActive       bool              `db:"is_active"       json:"is_active"`
}

// StringPtr returns a pointer to s, or nil when s is blank.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
