// Package contract projects normalized usage data into a read-only query
// surface of named readings. A View is rebuilt from scratch on every
// refresh cycle; it carries no state between cycles.
package contract

import (
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/mwiesel/vodamon/internal/usage"
)

const cycleDateLayout = "2006-01-02"

// View exposes one contract's latest normalized usage. Access is
// summarization-mode only: numeric fields are summed across all items of a
// category, names are joined, and the newest last-update timestamp wins.
type View struct {
	contractID string
	data       usage.ContractUsage
	now        func() time.Time
}

func NewView(data usage.ContractUsage) *View {
	return &View{contractID: data.ContractID, data: data, now: time.Now}
}

func (v *View) ContractID() string { return v.contractID }

// CategorySummary is the single representative value set for a category.
// A numeric field is nil when no item in the category reports it.
type CategorySummary struct {
	Names      string
	Remaining  *int64
	Used       *int64
	Total      *int64
	LastUpdate string
	Unit       string
}

// Summary aggregates all valid items of one category.
func (v *View) Summary(category usage.Category) CategorySummary {
	items := v.data.Items(category)

	names := lo.FilterMap(items, func(item usage.Item, _ int) (string, bool) {
		return item.Name, item.Name != ""
	})

	summary := CategorySummary{
		Names:     strings.Join(names, ", "),
		Remaining: sumField(items, func(i usage.Item) *int64 { return i.Remaining }),
		Used:      sumField(items, func(i usage.Item) *int64 { return i.Used }),
		Total:     sumField(items, func(i usage.Item) *int64 { return i.Total }),
	}

	for _, item := range items {
		if item.LastUpdate > summary.LastUpdate {
			summary.LastUpdate = item.LastUpdate
		}
		if summary.Unit == "" {
			summary.Unit = item.Unit
		}
	}
	return summary
}

// sumField adds a numeric field across items, nil when no item carries it.
func sumField(items []usage.Item, field func(usage.Item) *int64) *int64 {
	values := lo.FilterMap(items, func(item usage.Item, _ int) (int64, bool) {
		if p := field(item); p != nil {
			return *p, true
		}
		return 0, false
	})
	if len(values) == 0 {
		return nil
	}
	total := lo.Sum(values)
	return &total
}

// BillingCurrentSummary returns the running amount of the current cycle.
func (v *View) BillingCurrentSummary() (float64, bool) {
	if v.data.Billing == nil || v.data.Billing.CurrentSummary == nil {
		return 0, false
	}
	return *v.data.Billing.CurrentSummary, true
}

// BillingLastSummary returns the previous cycle's closed amount.
func (v *View) BillingLastSummary() (float64, bool) {
	if v.data.Billing == nil || v.data.Billing.LastSummary == nil {
		return 0, false
	}
	return *v.data.Billing.LastSummary, true
}

func (v *View) BillingCycleStart() string {
	if v.data.Billing == nil {
		return ""
	}
	return v.data.Billing.CycleStart
}

func (v *View) BillingCycleEnd() string {
	if v.data.Billing == nil {
		return ""
	}
	return v.data.Billing.CycleEnd
}

// BillingCycleDays computes the whole days between today (UTC midnight)
// and the cycle end date. An absent or unparseable end date reports
// ok = false rather than zero.
func (v *View) BillingCycleDays() (int, bool) {
	end := v.BillingCycleEnd()
	if end == "" {
		return 0, false
	}
	cycleEnd, err := time.ParseInLocation(cycleDateLayout, end, time.UTC)
	if err != nil {
		return 0, false
	}
	today := v.now().UTC().Truncate(24 * time.Hour)
	return int(cycleEnd.Sub(today).Hours() / 24), true
}
