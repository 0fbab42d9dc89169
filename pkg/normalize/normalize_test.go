package normalize_test

import (
	"strings"
	"testing"

	"github.com/kiranshivaraju/iomjobs/pkg/models"
	"github.com/kiranshivaraju/iomjobs/pkg/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSalary(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantMin  float64
		wantMax  float64
		wantType string
	}{
		{"annual range with separators", "£25,000 - £30,000", 25000, 30000, models.SalaryAnnual},
		{"hourly single value", "£12.50 per hour", 12.5, 12.5, models.SalaryHourly},
		{"k suffix range", "£25k-£30k", 25000, 30000, models.SalaryAnnual},
		{"explicit per annum", "£31,500 per annum", 31500, 31500, models.SalaryAnnual},
		{"daily rate", "£350 per day", 350, 350, models.SalaryDaily},
		{"weekly", "£600 weekly", 600, 600, models.SalaryWeekly},
		{"reversed range sorted", "£30,000 - £25,000 p.a.", 25000, 30000, models.SalaryAnnual},
		{"bare small annual read as thousands", "£25 - £28 per annum", 25000, 28000, models.SalaryAnnual},
		{"slash hour", "£11.20/hour", 11.2, 11.2, models.SalaryHourly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalize.ParseSalary(tt.input)
			require.NotNil(t, got.Min)
			require.NotNil(t, got.Max)
			require.NotNil(t, got.Type)
			assert.InDelta(t, tt.wantMin, *got.Min, 0.001)
			assert.InDelta(t, tt.wantMax, *got.Max, 0.001)
			assert.Equal(t, tt.wantType, *got.Type)
		})
	}
}

func TestParseSalary_NoNumbers(t *testing.T) {
	for _, input := range []string{"", "   ", "Competitive", "Negotiable depending on experience"} {
		got := normalize.ParseSalary(input)
		assert.Nil(t, got.Min, input)
		assert.Nil(t, got.Max, input)
		assert.Nil(t, got.Type, input)
	}
}

func TestSalaryParser_AnnualThousandsDisabled(t *testing.T) {
	p := normalize.SalaryParser{AnnualThousands: false}
	got := p.Parse("£85 - £95")
	require.NotNil(t, got.Min)
	assert.Equal(t, 85.0, *got.Min)
	assert.Equal(t, 95.0, *got.Max)

	got = normalize.ParseSalary("£85 - £95")
	assert.Equal(t, 85000.0, *got.Min)
}

func TestParseSalary_HourlyNotScaled(t *testing.T) {
	got := normalize.ParseSalary("£9 per hour")
	require.NotNil(t, got.Min)
	assert.Equal(t, 9.0, *got.Min)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"31/12/2025", "2025-12-31"},
		{"31-12-2025", "2025-12-31"},
		{"1/2/2026", "2026-02-01"},
		{"31 December 2025", "2025-12-31"},
		{"31st Dec 2025", "2025-12-31"},
		{"5 Sept 2025", "2025-09-05"},
		{"Closing date: 14 March 2026 at noon", "2026-03-14"},
		{"2025-06-30", "2025-06-30"},
		{"2025-06-30T23:59:00Z", "2025-06-30"},
		{"June 3, 2025", "2025-06-03"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := normalize.ParseDate(tt.input)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParseDate_Unrecognised(t *testing.T) {
	for _, input := range []string{"", "nonsense", "31/02/2025", "32 January 2025", "12 Smarch 2025"} {
		assert.Nil(t, normalize.ParseDate(input), input)
	}
}

func TestDateBefore(t *testing.T) {
	assert.True(t, normalize.DateBefore("2025-01-01", "2025-01-02"))
	assert.False(t, normalize.DateBefore("2025-01-02", "2025-01-02"))
	assert.False(t, normalize.DateBefore("bad", "2025-01-02"))
}

func TestGUID_Deterministic(t *testing.T) {
	a := normalize.GUID("https://www.gov.im/job/12345")
	b := normalize.GUID("  HTTPS://WWW.GOV.IM/JOB/12345 ")
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "iom-gov-"))
	assert.Len(t, a, len("iom-gov-")+8)

	c := normalize.GUID("https://www.gov.im/job/12346")
	assert.NotEqual(t, a, c)
}

func TestGUID_NoURLIsUnique(t *testing.T) {
	a := normalize.GUID("")
	b := normalize.GUID("")
	assert.True(t, strings.HasPrefix(a, "iom-gov-"))
	assert.NotEqual(t, a, b)
}

func TestLabelKey(t *testing.T) {
	tests := map[string]string{
		"Closing Date:":       "closing_date",
		"  Job Description ":  "job_description",
		"Employer / Firm":     "employer_firm",
		"Résumé requirements": "resume_requirements",
		"Ref. No.":            "ref_no",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalize.LabelKey(in), in)
	}
}

func TestHoursType(t *testing.T) {
	ft := normalize.HoursType("Full Time - 37.5 hours")
	require.NotNil(t, ft)
	assert.Equal(t, models.HoursFullTime, *ft)

	pt := normalize.HoursType("part-time, mornings")
	require.NotNil(t, pt)
	assert.Equal(t, models.HoursPartTime, *pt)

	assert.Nil(t, normalize.HoursType("Flexible"))
}

func TestClassification(t *testing.T) {
	assert.Equal(t, "HEALTH AND CARE", normalize.Classification("  Health   and care "))
}
