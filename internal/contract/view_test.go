package contract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwiesel/vodamon/internal/usage"
)

func i64(v int64) *int64     { return &v }
func f64(v float64) *float64 { return &v }

func viewAt(t *testing.T, data usage.ContractUsage, now time.Time) *View {
	t.Helper()
	v := NewView(data)
	v.now = func() time.Time { return now }
	return v
}

func TestSummarySumsAcrossItems(t *testing.T) {
	v := NewView(usage.ContractUsage{
		ContractID: "123456789",
		Data: []usage.Item{
			{Name: "Datenvolumen", Remaining: i64(4096), Used: i64(1024), Total: i64(5120), LastUpdate: "2024-01-15T08:30:00", Unit: "MB"},
			{Name: "DayFlat", Remaining: i64(500), Total: i64(500), LastUpdate: "2024-01-15T09:00:00", Unit: "MB"},
		},
	})

	summary := v.Summary(usage.CategoryData)

	assert.Equal(t, "Datenvolumen, DayFlat", summary.Names)
	require.NotNil(t, summary.Remaining)
	assert.Equal(t, int64(4596), *summary.Remaining)
	require.NotNil(t, summary.Used)
	assert.Equal(t, int64(1024), *summary.Used, "missing fields are excluded, not zeroed into the sum")
	require.NotNil(t, summary.Total)
	assert.Equal(t, int64(5620), *summary.Total)
	assert.Equal(t, "2024-01-15T09:00:00", summary.LastUpdate, "newest item timestamp wins")
	assert.Equal(t, "MB", summary.Unit)
}

func TestSummaryEmptyCategory(t *testing.T) {
	v := NewView(usage.ContractUsage{ContractID: "123456789"})
	summary := v.Summary(usage.CategorySMS)

	assert.Empty(t, summary.Names)
	assert.Nil(t, summary.Remaining)
	assert.Nil(t, summary.Used)
	assert.Nil(t, summary.Total)
}

func TestBillingCycleDays(t *testing.T) {
	now := time.Date(2024, 1, 29, 17, 45, 0, 0, time.UTC)

	v := viewAt(t, usage.ContractUsage{
		Billing: &usage.BillingSnapshot{CycleEnd: "2024-01-31"},
	}, now)

	days, ok := v.BillingCycleDays()
	require.True(t, ok)
	assert.Equal(t, 2, days)
}

func TestBillingCycleDaysUnsupported(t *testing.T) {
	tests := []struct {
		name    string
		billing *usage.BillingSnapshot
	}{
		{"absent billing block", nil},
		{"empty cycle end", &usage.BillingSnapshot{}},
		{"unparseable cycle end", &usage.BillingSnapshot{CycleEnd: "soonish"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewView(usage.ContractUsage{Billing: tt.billing})
			days, ok := v.BillingCycleDays()
			assert.False(t, ok)
			assert.Zero(t, days)
		})
	}
}

func TestReadings(t *testing.T) {
	now := time.Date(2024, 1, 29, 12, 0, 0, 0, time.UTC)

	v := viewAt(t, usage.ContractUsage{
		ContractID: "123456789",
		Minutes: []usage.Item{
			{Name: "Allnet Flat", Used: i64(320), LastUpdate: "2024-01-29T06:00:00", Unit: "min"},
		},
		Data: []usage.Item{
			{Name: "Datenvolumen", Remaining: i64(4096), Used: i64(1024), Total: i64(5120), Unit: "MB"},
		},
		Billing: &usage.BillingSnapshot{
			CurrentSummary: f64(23.5),
			CycleEnd:       "2024-01-31",
		},
	}, now)

	readings := v.Readings()
	require.Len(t, readings, len(Keys))

	dataRemaining := readings[DataRemaining]
	assert.True(t, dataRemaining.Supported)
	assert.Equal(t, 4096.0, dataRemaining.Value)
	assert.Equal(t, "MB", dataRemaining.Unit)
	assert.Equal(t, "Datenvolumen", dataRemaining.PlanNames)

	minutesUsed := readings[MinutesUsed]
	assert.True(t, minutesUsed.Supported)
	assert.Equal(t, 320.0, minutesUsed.Value)
	assert.Equal(t, time.Date(2024, 1, 29, 6, 0, 0, 0, time.UTC), minutesUsed.LastUpdate)

	// No minutes totals reported: value absent, flag down.
	assert.False(t, readings[MinutesTotal].Supported)

	// SMS category has no items at all.
	assert.False(t, readings[SMSUsed].Supported)

	assert.True(t, readings[BillingCurrentSummary].Supported)
	assert.Equal(t, 23.5, readings[BillingCurrentSummary].Value)
	assert.False(t, readings[BillingLastSummary].Supported)

	cycleDays := readings[BillingCycleDays]
	assert.True(t, cycleDays.Supported)
	assert.Equal(t, 2.0, cycleDays.Value)
}

func TestReadingsZeroValueUnsupported(t *testing.T) {
	v := NewView(usage.ContractUsage{
		SMS: []usage.Item{{Name: "SMS Flat", Used: i64(0)}},
	})

	// Present but zero is not truthy.
	assert.False(t, v.Readings()[SMSUsed].Supported)
}
