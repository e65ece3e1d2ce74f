package usage

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultMaxMegabytes is the glitch-guard ceiling for MB-denominated values.
// The upstream API occasionally misreports kilobytes as megabytes, which
// shows up as absurd figures north of ~500 GB.
const DefaultMaxMegabytes int64 = 500000

// containerCategories maps upstream container labels (lowercased) onto the
// internal categories. The table carries both the legacy labels and the
// newer roaming/bundle variants; extend it here rather than branching in
// code when the provider invents another one.
var containerCategories = map[string]Category{
	"minuten":          CategoryMinutes,
	"sms":              CategorySMS,
	"daten":            CategoryData,
	"minutenroaming":   CategoryMinutes,
	"smsroaming":       CategorySMS,
	"datenroaming":     CategoryData,
	"inklusiv-minuten": CategoryMinutes,
	"inklusiv-sms":     CategorySMS,
	"inklusiv-daten":   CategoryData,
	"datenbundle":      CategoryData,
	"sprachbundle":     CategoryMinutes,
}

// Normalizer converts one raw usage document into the internal schema.
// The zero value is not usable; construct with NewNormalizer.
type Normalizer struct {
	// MaxMegabytes drops any MB-denominated value above this ceiling as a
	// known upstream glitch. Zero or negative disables the guard.
	MaxMegabytes int64

	containers map[string]Category
	logger     zerolog.Logger
}

func NewNormalizer(logger zerolog.Logger) *Normalizer {
	return &Normalizer{
		MaxMegabytes: DefaultMaxMegabytes,
		containers:   containerCategories,
		logger:       logger.With().Str("component", "normalizer").Logger(),
	}
}

// Normalize walks the account → usage-group → container structure and
// produces the fixed schema. Missing blocks are tolerated; items with
// unparseable or glitched numbers are dropped, never zeroed.
func (n *Normalizer) Normalize(contractID string, doc Document) ContractUsage {
	out := ContractUsage{ContractID: contractID}

	if bd := doc.ServiceUsage.BillDetails; bd != nil {
		out.Billing = normalizeBilling(bd)
	}

	for _, account := range doc.ServiceUsage.UsageAccounts {
		for _, group := range account.UsageGroups {
			category, ok := n.categoryFor(group.Container)
			if !ok {
				n.logger.Debug().Str("container", group.Container).Msg("skipping unmapped container")
				continue
			}

			if len(group.Usage) > 0 {
				for _, entry := range group.Usage {
					item, ok := n.buildItem(entry.Name, entry.Remaining, entry.Used, entry.Total, entry.LastUpdate, entry.Unit)
					if !ok {
						continue
					}
					out.append(category, item)
				}
				continue
			}

			if agg := group.Aggregate; agg != nil {
				name := agg.Name
				if name == "" {
					name = group.Container
				}
				item, ok := n.buildItem(name, agg.Remaining, agg.Used, agg.Total, agg.LastUpdate, agg.Unit)
				if !ok {
					continue
				}
				out.append(category, item)
			}
		}
	}

	return out
}

func (n *Normalizer) categoryFor(container string) (Category, bool) {
	category, ok := n.containers[strings.ToLower(strings.TrimSpace(container))]
	return category, ok
}

// buildItem validates every numeric field before accepting the item.
// A field that fails to parse as an integer, or an MB value beyond the
// glitch ceiling, invalidates the whole item.
func (n *Normalizer) buildItem(name string, remaining, used, total FlexValue, lastUpdate, unit string) (Item, bool) {
	item := Item{Name: name, LastUpdate: lastUpdate, Unit: unit}

	fields := []struct {
		label string
		raw   FlexValue
		dst   **int64
	}{
		{"remaining", remaining, &item.Remaining},
		{"used", used, &item.Used},
		{"total", total, &item.Total},
	}

	for _, f := range fields {
		if !f.raw.Present() {
			continue
		}
		value, err := strconv.ParseInt(strings.TrimSpace(string(f.raw)), 10, 64)
		if err != nil {
			n.logger.Warn().
				Str("item", name).
				Str("field", f.label).
				Str("value", string(f.raw)).
				Msg("dropping item with non-integer value")
			return Item{}, false
		}
		if n.exceedsGlitchCeiling(unit, value) {
			n.logger.Warn().
				Str("item", name).
				Str("field", f.label).
				Int64("value", value).
				Msg("dropping item with glitched megabyte value")
			return Item{}, false
		}
		*f.dst = &value
	}

	return item, true
}

func (n *Normalizer) exceedsGlitchCeiling(unit string, value int64) bool {
	if n.MaxMegabytes <= 0 {
		return false
	}
	return strings.EqualFold(unit, "MB") && value > n.MaxMegabytes
}

func normalizeBilling(bd *BillDetails) *BillingSnapshot {
	snapshot := &BillingSnapshot{
		CycleStart: bd.CycleStartDate,
		CycleEnd:   bd.CycleEndDate,
	}
	if bd.CurrentSummary != nil {
		snapshot.CurrentSummary = bd.CurrentSummary.Amount
	}
	if bd.LastSummary != nil {
		snapshot.LastSummary = bd.LastSummary.Amount
	}
	return snapshot
}
