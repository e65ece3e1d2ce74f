package usage

// Category identifies one of the three usage buckets a mobile contract
// reports against.
type Category string

const (
	CategoryMinutes Category = "minutes"
	CategorySMS     Category = "sms"
	CategoryData    Category = "data"
)

// Categories lists all buckets in display order.
var Categories = []Category{CategoryMinutes, CategorySMS, CategoryData}

// Item is one normalized plan entry inside a category. Numeric fields are
// nil when upstream omits them; items with unparseable numbers never make
// it into the schema at all.
type Item struct {
	Name       string `json:"name"`
	Remaining  *int64 `json:"remaining,omitempty"`
	Used       *int64 `json:"used,omitempty"`
	Total      *int64 `json:"total,omitempty"`
	LastUpdate string `json:"last_update,omitempty"` // ISO-8601 as reported upstream
	Unit       string `json:"unit,omitempty"`
}

// BillingSnapshot carries the optional billing block of an unbilled-usage
// response. All fields may be absent.
type BillingSnapshot struct {
	CurrentSummary *float64 `json:"current_summary,omitempty"`
	LastSummary    *float64 `json:"last_summary,omitempty"`
	CycleStart     string   `json:"cycle_start,omitempty"` // "2006-01-02"
	CycleEnd       string   `json:"cycle_end,omitempty"`
}

// ContractUsage is the fixed internal schema one raw usage document
// normalizes into. It is rebuilt from scratch on every refresh.
type ContractUsage struct {
	ContractID string           `json:"contract_id"`
	Billing    *BillingSnapshot `json:"billing,omitempty"`
	Minutes    []Item           `json:"minutes"`
	SMS        []Item           `json:"sms"`
	Data       []Item           `json:"data"`
}

// Items returns the item sequence for a category, in upstream order.
func (c ContractUsage) Items(cat Category) []Item {
	switch cat {
	case CategoryMinutes:
		return c.Minutes
	case CategorySMS:
		return c.SMS
	case CategoryData:
		return c.Data
	}
	return nil
}

func (c *ContractUsage) append(cat Category, item Item) {
	switch cat {
	case CategoryMinutes:
		c.Minutes = append(c.Minutes, item)
	case CategorySMS:
		c.SMS = append(c.SMS, item)
	case CategoryData:
		c.Data = append(c.Data, item)
	}
}
