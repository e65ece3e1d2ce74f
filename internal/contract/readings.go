package contract

import (
	"time"

	"github.com/mwiesel/vodamon/internal/usage"
)

// Key names one published reading.
type Key string

const (
	MinutesRemaining Key = "minutes_remaining"
	MinutesUsed      Key = "minutes_used"
	MinutesTotal     Key = "minutes_total"
	SMSRemaining     Key = "sms_remaining"
	SMSUsed          Key = "sms_used"
	SMSTotal         Key = "sms_total"
	DataRemaining    Key = "data_remaining"
	DataUsed         Key = "data_used"
	DataTotal        Key = "data_total"

	BillingCurrentSummary Key = "billing_current_summary"
	BillingLastSummary    Key = "billing_last_summary"
	BillingCycleDays      Key = "billing_cycle_days"
)

// Keys lists every reading in stable publish order.
var Keys = []Key{
	MinutesRemaining, MinutesUsed, MinutesTotal,
	SMSRemaining, SMSUsed, SMSTotal,
	DataRemaining, DataUsed, DataTotal,
	BillingCurrentSummary, BillingLastSummary, BillingCycleDays,
}

// Reading is one named value with its supported flag and attributes.
// Supported is true iff the underlying value is present and nonzero; the
// value of an unsupported reading is meaningless.
type Reading struct {
	Key        Key
	Value      float64
	Unit       string
	Supported  bool
	LastUpdate time.Time
	PlanNames  string
}

// Readings builds the full reading set for the view. The mapping is built
// explicitly per key; there is no reflective attribute lookup.
func (v *View) Readings() map[Key]Reading {
	out := make(map[Key]Reading, len(Keys))

	categories := []struct {
		category  usage.Category
		remaining Key
		used      Key
		total     Key
	}{
		{usage.CategoryMinutes, MinutesRemaining, MinutesUsed, MinutesTotal},
		{usage.CategorySMS, SMSRemaining, SMSUsed, SMSTotal},
		{usage.CategoryData, DataRemaining, DataUsed, DataTotal},
	}

	for _, c := range categories {
		summary := v.Summary(c.category)
		lastUpdate := v.parseLastUpdate(summary.LastUpdate)

		out[c.remaining] = summaryReading(c.remaining, summary, summary.Remaining, lastUpdate)
		out[c.used] = summaryReading(c.used, summary, summary.Used, lastUpdate)
		out[c.total] = summaryReading(c.total, summary, summary.Total, lastUpdate)
	}

	now := v.now().UTC()
	out[BillingCurrentSummary] = billingReading(BillingCurrentSummary, v.BillingCurrentSummary, now)
	out[BillingLastSummary] = billingReading(BillingLastSummary, v.BillingLastSummary, now)

	days, ok := v.BillingCycleDays()
	out[BillingCycleDays] = Reading{
		Key:        BillingCycleDays,
		Value:      float64(days),
		Unit:       "d",
		Supported:  ok,
		LastUpdate: now,
	}

	return out
}

func summaryReading(key Key, summary CategorySummary, value *int64, lastUpdate time.Time) Reading {
	r := Reading{
		Key:        key,
		Unit:       summary.Unit,
		LastUpdate: lastUpdate,
		PlanNames:  summary.Names,
	}
	if value != nil {
		r.Value = float64(*value)
		r.Supported = *value != 0
	}
	return r
}

func billingReading(key Key, get func() (float64, bool), now time.Time) Reading {
	value, ok := get()
	return Reading{
		Key:        key,
		Value:      value,
		Unit:       "EUR",
		Supported:  ok && value != 0,
		LastUpdate: now,
	}
}

// lastUpdateLayouts covers the timestamp shapes seen from the API.
var lastUpdateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (v *View) parseLastUpdate(raw string) time.Time {
	for _, layout := range lastUpdateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return v.now().UTC()
}
