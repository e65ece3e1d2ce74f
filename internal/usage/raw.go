package usage

import (
	"bytes"
	"encoding/json"
)

// Document is the provider-shaped unbilled-usage response. Only the fields
// the normalizer consumes are declared; everything else in the payload is
// ignored on decode. The document is transient and discarded after
// normalization.
type Document struct {
	ServiceUsage ServiceUsage `json:"serviceUsageVBO"`
}

type ServiceUsage struct {
	BillDetails   *BillDetails   `json:"billDetails"`
	UsageAccounts []UsageAccount `json:"usageAccounts"`
}

type BillDetails struct {
	CurrentSummary *Amount `json:"currentSummary"`
	LastSummary    *Amount `json:"lastSummary"`
	CycleStartDate string  `json:"billCycleStartDate"`
	CycleEndDate   string  `json:"billCycleEndDate"`
}

type Amount struct {
	Amount *float64 `json:"amount"`
}

type UsageAccount struct {
	UsageGroups []UsageGroup `json:"usageGroup"`
}

// UsageGroup is one container. It reports either a sequence of individual
// entries or a single pre-aggregated figure, never meaningfully both.
type UsageGroup struct {
	Container string       `json:"container"`
	Usage     []UsageEntry `json:"usage"`
	Aggregate *Aggregate   `json:"vluxgateAgg"`
}

type UsageEntry struct {
	Name       string    `json:"name"`
	Remaining  FlexValue `json:"remaining"`
	Used       FlexValue `json:"used"`
	Total      FlexValue `json:"total"`
	LastUpdate string    `json:"lastUpdateDate"`
	Unit       string    `json:"unit"`
}

type Aggregate struct {
	Name       string    `json:"name"`
	Remaining  FlexValue `json:"remaining"`
	Used       FlexValue `json:"used"`
	Total      FlexValue `json:"total"`
	LastUpdate string    `json:"lastUpdateDate"`
	Unit       string    `json:"unit"`
}

// FlexValue holds a numeric field the API reports inconsistently as either
// a JSON string or a bare number. The raw text is preserved; whether it
// actually parses as an integer is the normalizer's call.
type FlexValue string

func (v *FlexValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*v = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = FlexValue(s)
		return nil
	}
	*v = FlexValue(b)
	return nil
}

// Present reports whether upstream sent the field at all.
func (v FlexValue) Present() bool { return v != "" }
