package store

import (
	"time"

	"github.com/kiranshivaraju/iomjobs/pkg/models"
)

// Merge reconciles a freshly scraped record with the stored one.
//
// Every optional field keeps its existing value unless incoming carries a
// non-empty one, so a later scrape never erases known data. Title is taken
// from incoming whenever it is non-empty; IsActive becomes true and
// UpdatedAt becomes now. GUID and ScrapedAt never change. The extras maps
// are merged key by key with incoming values winning.
func Merge(existing, incoming models.JobRecord, now time.Time) models.JobRecord {
	m := existing

	if incoming.Title != "" {
		m.Title = incoming.Title
	}
	if incoming.SourceURL != "" {
		m.SourceURL = incoming.SourceURL
	}

	m.Employer = coalesce(incoming.Employer, existing.Employer)
	m.Location = coalesce(incoming.Location, existing.Location)
	m.Classification = coalesce(incoming.Classification, existing.Classification)
	m.Area = coalesce(incoming.Area, existing.Area)
	m.JobType = coalesce(incoming.JobType, existing.JobType)
	m.HoursOption = coalesce(incoming.HoursOption, existing.HoursOption)
	m.HoursType = coalesce(incoming.HoursType, existing.HoursType)
	m.SalaryText = coalesce(incoming.SalaryText, existing.SalaryText)
	m.SalaryMin = coalesceFloat(incoming.SalaryMin, existing.SalaryMin)
	m.SalaryMax = coalesceFloat(incoming.SalaryMax, existing.SalaryMax)
	m.SalaryType = coalesce(incoming.SalaryType, existing.SalaryType)
	m.PostedDate = coalesce(incoming.PostedDate, existing.PostedDate)
	m.ClosingDate = coalesce(incoming.ClosingDate, existing.ClosingDate)
	m.StartDate = coalesce(incoming.StartDate, existing.StartDate)
	m.Summary = coalesce(incoming.Summary, existing.Summary)
	m.Description = coalesce(incoming.Description, existing.Description)
	m.RawHTML = coalesce(incoming.RawHTML, existing.RawHTML)
	m.Reference = coalesce(incoming.Reference, existing.Reference)
	m.ContactName = coalesce(incoming.ContactName, existing.ContactName)
	m.ContactEmail = coalesce(incoming.ContactEmail, existing.ContactEmail)
	m.ContactPhone = coalesce(incoming.ContactPhone, existing.ContactPhone)
	m.Qualifications = coalesce(incoming.Qualifications, existing.Qualifications)
	m.Experience = coalesce(incoming.Experience, existing.Experience)
	m.Benefits = coalesce(incoming.Benefits, existing.Benefits)
	m.HowToApply = coalesce(incoming.HowToApply, existing.HowToApply)
	m.ApplyURL = coalesce(incoming.ApplyURL, existing.ApplyURL)
	m.AdditionalInfo = mergeMaps(existing.AdditionalInfo, incoming.AdditionalInfo)
	m.FieldLabels = mergeMaps(existing.FieldLabels, incoming.FieldLabels)

	m.IsActive = true
	m.UpdatedAt = now
	return m
}

func coalesce(incoming, existing *string) *string {
	if incoming != nil && *incoming != "" {
		return incoming
	}
	return existing
}

func coalesceFloat(incoming, existing *float64) *float64 {
	if incoming != nil {
		return incoming
	}
	return existing
}

func mergeMaps(existing, incoming map[string]string) map[string]string {
	if len(incoming) == 0 {
		return existing
	}
	out := make(map[string]string, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range incoming {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
