package usage

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNormalizer() *Normalizer {
	return NewNormalizer(zerolog.Nop())
}

func decodeDocument(t *testing.T, payload string) Document {
	t.Helper()
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(payload), &doc))
	return doc
}

func TestNormalizeItemizedAndAggregated(t *testing.T) {
	doc := decodeDocument(t, `{
		"serviceUsageVBO": {
			"usageAccounts": [{
				"usageGroup": [
					{
						"container": "Daten",
						"usage": [
							{"name": "Datenvolumen", "remaining": "4096", "used": "1024", "total": "5120", "lastUpdateDate": "2024-01-15T08:30:00", "unit": "MB"},
							{"name": "DayFlat", "remaining": "500", "used": "0", "total": "500", "unit": "MB"}
						]
					},
					{
						"container": "Minuten",
						"vluxgateAgg": {"remaining": "120", "used": "80", "total": "200", "unit": "min"}
					}
				]
			}]
		}
	}`)

	got := testNormalizer().Normalize("123456789", doc)

	require.Len(t, got.Data, 2)
	require.Len(t, got.Minutes, 1)
	assert.Empty(t, got.SMS)

	assert.Equal(t, "Datenvolumen", got.Data[0].Name)
	require.NotNil(t, got.Data[0].Remaining)
	assert.Equal(t, int64(4096), *got.Data[0].Remaining)
	assert.Equal(t, "2024-01-15T08:30:00", got.Data[0].LastUpdate)

	// Aggregated container yields exactly one item named after the container.
	assert.Equal(t, "Minuten", got.Minutes[0].Name)
	require.NotNil(t, got.Minutes[0].Used)
	assert.Equal(t, int64(80), *got.Minutes[0].Used)
}

func TestNormalizeItemizedWinsOverAggregate(t *testing.T) {
	doc := decodeDocument(t, `{
		"serviceUsageVBO": {
			"usageAccounts": [{
				"usageGroup": [{
					"container": "SMS",
					"usage": [{"name": "SMS Flat", "used": "12"}],
					"vluxgateAgg": {"used": "99"}
				}]
			}]
		}
	}`)

	got := testNormalizer().Normalize("123456789", doc)

	require.Len(t, got.SMS, 1)
	assert.Equal(t, "SMS Flat", got.SMS[0].Name)
	assert.Equal(t, int64(12), *got.SMS[0].Used)
}

func TestNormalizeContainerMapping(t *testing.T) {
	tests := []struct {
		container string
		category  Category
	}{
		{"Minuten", CategoryMinutes},
		{"SMS", CategorySMS},
		{"Daten", CategoryData},
		{"DatenRoaming", CategoryData},
		{"MinutenRoaming", CategoryMinutes},
		{"smsroaming", CategorySMS},
		{"Inklusiv-Minuten", CategoryMinutes},
		{"DatenBundle", CategoryData},
	}

	for _, tt := range tests {
		t.Run(tt.container, func(t *testing.T) {
			category, ok := testNormalizer().categoryFor(tt.container)
			require.True(t, ok)
			assert.Equal(t, tt.category, category)
		})
	}
}

func TestNormalizeSkipsUnmappedContainer(t *testing.T) {
	doc := decodeDocument(t, `{
		"serviceUsageVBO": {
			"usageAccounts": [{
				"usageGroup": [{
					"container": "Festnetz",
					"usage": [{"name": "Irrelevant", "used": "10"}]
				}]
			}]
		}
	}`)

	got := testNormalizer().Normalize("123456789", doc)

	assert.Empty(t, got.Minutes)
	assert.Empty(t, got.SMS)
	assert.Empty(t, got.Data)
}

func TestNormalizeDropsNonIntegerValues(t *testing.T) {
	doc := decodeDocument(t, `{
		"serviceUsageVBO": {
			"usageAccounts": [{
				"usageGroup": [{
					"container": "Daten",
					"usage": [
						{"name": "Broken", "remaining": "unlimited", "used": "100"},
						{"name": "Fine", "remaining": "2000", "used": "100"}
					]
				}]
			}]
		}
	}`)

	got := testNormalizer().Normalize("123456789", doc)

	// The broken item is gone entirely, not defaulted to zero.
	require.Len(t, got.Data, 1)
	assert.Equal(t, "Fine", got.Data[0].Name)
}

func TestNormalizeMegabyteGlitchGuard(t *testing.T) {
	payload := `{
		"serviceUsageVBO": {
			"usageAccounts": [{
				"usageGroup": [{
					"container": "Daten",
					"usage": [
						{"name": "Glitched", "remaining": "500001", "unit": "MB"},
						{"name": "AtCeiling", "remaining": "500000", "unit": "MB"},
						{"name": "BigMinutes", "remaining": "600000", "unit": "min"}
					]
				}]
			}]
		}
	}`

	// Wrong category for minutes here, but the point is the unit check:
	// the ceiling only applies to MB values.
	got := testNormalizer().Normalize("123456789", decodeDocument(t, payload))

	require.Len(t, got.Data, 2)
	assert.Equal(t, "AtCeiling", got.Data[0].Name)
	assert.Equal(t, int64(500000), *got.Data[0].Remaining)
	assert.Equal(t, "BigMinutes", got.Data[1].Name)

	// Guard disabled: the glitched value passes through verbatim.
	n := testNormalizer()
	n.MaxMegabytes = 0
	got = n.Normalize("123456789", decodeDocument(t, payload))
	require.Len(t, got.Data, 3)
	assert.Equal(t, int64(500001), *got.Data[0].Remaining)
}

func TestNormalizeBilling(t *testing.T) {
	doc := decodeDocument(t, `{
		"serviceUsageVBO": {
			"billDetails": {
				"currentSummary": {"amount": 23.5},
				"lastSummary": {"amount": 19.99},
				"billCycleStartDate": "2024-01-01",
				"billCycleEndDate": "2024-01-31"
			}
		}
	}`)

	got := testNormalizer().Normalize("123456789", doc)

	require.NotNil(t, got.Billing)
	require.NotNil(t, got.Billing.CurrentSummary)
	assert.Equal(t, 23.5, *got.Billing.CurrentSummary)
	require.NotNil(t, got.Billing.LastSummary)
	assert.Equal(t, 19.99, *got.Billing.LastSummary)
	assert.Equal(t, "2024-01-01", got.Billing.CycleStart)
	assert.Equal(t, "2024-01-31", got.Billing.CycleEnd)
}

func TestNormalizeBillingAbsent(t *testing.T) {
	got := testNormalizer().Normalize("123456789", decodeDocument(t, `{"serviceUsageVBO": {}}`))
	assert.Nil(t, got.Billing)
}

func TestFlexValueDecoding(t *testing.T) {
	var entry UsageEntry
	require.NoError(t, json.Unmarshal([]byte(`{"remaining": "1500", "used": 300, "total": null}`), &entry))

	assert.Equal(t, FlexValue("1500"), entry.Remaining)
	assert.Equal(t, FlexValue("300"), entry.Used)
	assert.False(t, entry.Total.Present())
}
