package store_test

import (
	"testing"
	"time"

	"github.com/kiranshivaraju/iomjobs/internal/store"
	"github.com/kiranshivaraju/iomjobs/pkg/models"
	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestMerge_NullNeverErasesExisting(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	existing := models.JobRecord{
		GUID:        "iom-gov-1",
		Title:       "Nurse",
		Location:    ptr("Douglas"),
		SalaryMin:   ptr(25000.0),
		Description: ptr("Full description"),
		ScrapedAt:   now.Add(-72 * time.Hour),
		IsActive:    true,
	}
	incoming := models.JobRecord{GUID: "iom-gov-1", Title: "Nurse"}

	merged := store.Merge(existing, incoming, now)
	assert.Equal(t, "Douglas", models.Deref(merged.Location))
	assert.Equal(t, 25000.0, *merged.SalaryMin)
	assert.Equal(t, "Full description", models.Deref(merged.Description))
	assert.Equal(t, existing.ScrapedAt, merged.ScrapedAt)
	assert.Equal(t, now, merged.UpdatedAt)
}

func TestMerge_NonNullOverwrites(t *testing.T) {
	now := time.Now().UTC()
	existing := models.JobRecord{GUID: "g", Title: "Old title", Location: ptr("Douglas")}
	incoming := models.JobRecord{GUID: "g", Title: "New title", Location: ptr("Peel")}

	merged := store.Merge(existing, incoming, now)
	assert.Equal(t, "Peel", models.Deref(merged.Location))
	assert.Equal(t, "New title", merged.Title)
}

func TestMerge_EmptyStringTreatedAsNull(t *testing.T) {
	existing := models.JobRecord{GUID: "g", Title: "T", Employer: ptr("Manx Care"), Description: ptr("Long text")}
	incoming := models.JobRecord{GUID: "g", Title: "", Employer: ptr(""), Description: ptr("")}

	merged := store.Merge(existing, incoming, time.Now())
	assert.Equal(t, "T", merged.Title)
	assert.Equal(t, "Manx Care", models.Deref(merged.Employer))
	assert.Equal(t, "Long text", models.Deref(merged.Description))
}

func TestMerge_ReactivatesAndKeepsIdentity(t *testing.T) {
	existing := models.JobRecord{GUID: "g", Title: "T", IsActive: false, SourceURL: "https://a"}
	incoming := models.JobRecord{GUID: "other", Title: "T", IsActive: false}

	merged := store.Merge(existing, incoming, time.Now())
	assert.True(t, merged.IsActive)
	assert.Equal(t, "g", merged.GUID)
	assert.Equal(t, "https://a", merged.SourceURL)
}

func TestMerge_ExtrasMergedByKey(t *testing.T) {
	existing := models.JobRecord{
		GUID:           "g",
		AdditionalInfo: map[string]string{"shift_pattern": "Days", "grade": "5"},
		FieldLabels:    map[string]string{"shift_pattern": "Shift Pattern"},
	}
	incoming := models.JobRecord{
		GUID:           "g",
		AdditionalInfo: map[string]string{"grade": "6", "parking": "Yes", "empty": ""},
	}

	merged := store.Merge(existing, incoming, time.Now())
	assert.Equal(t, map[string]string{"shift_pattern": "Days", "grade": "6", "parking": "Yes"}, merged.AdditionalInfo)
	assert.Equal(t, existing.FieldLabels, merged.FieldLabels)
	assert.Equal(t, "5", existing.AdditionalInfo["grade"], "existing map must not be mutated")
}

func TestCanTransition(t *testing.T) {
	assert.True(t, store.CanTransition(models.ScrapeStatusRunning, models.ScrapeStatusSuccess))
	assert.True(t, store.CanTransition(models.ScrapeStatusRunning, models.ScrapeStatusPartial))
	assert.True(t, store.CanTransition(models.ScrapeStatusRunning, models.ScrapeStatusFailed))
	assert.False(t, store.CanTransition(models.ScrapeStatusSuccess, models.ScrapeStatusFailed))
	assert.False(t, store.CanTransition(models.ScrapeStatusRunning, models.ScrapeStatusRunning))
}
