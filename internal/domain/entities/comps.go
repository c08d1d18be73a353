package entities

// CompsStatus is the terminal status of a sold-comparable lookup.
type CompsStatus string

const (
	CompsOK              CompsStatus = "OK"
	CompsNoSoldComps     CompsStatus = "NO_SOLD_COMPS"
	CompsLowConfidence   CompsStatus = "LOW_CONFIDENCE_COMPS"
	CompsThrottled       CompsStatus = "EBAY_THROTTLED"
	CompsAPIFail         CompsStatus = "API_FAIL"
	CompsBudgetExhausted CompsStatus = "BUDGET_EXHAUSTED"
)

// IsValid checks if the status value is one of the defined constants.
func (s CompsStatus) IsValid() bool {
	switch s {
	case CompsOK, CompsNoSoldComps, CompsLowConfidence, CompsThrottled, CompsAPIFail, CompsBudgetExhausted:
		return true
	}
	return false
}

// SampleItem is one of the sold listings kept as evidence alongside the stats.
type SampleItem struct {
	Title string  `json:"title"`
	Price float64 `json:"price"`
}

// PriceStats holds the statistical summary of a set of sold-comp prices.
// Avg, Median, P25 and P75 describe the untrimmed sample; Min and Max the
// IQR-trimmed one.
type PriceStats struct {
	SoldCount         int     `json:"sold_count"`
	Avg               float64 `json:"avg"`
	Median            float64 `json:"median"`
	Min               float64 `json:"min"`
	Max               float64 `json:"max"`
	P25               float64 `json:"p25"`
	P75               float64 `json:"p75"`
	TrimmedCount      int     `json:"trimmed_count"`
	ExpectedSalePrice float64 `json:"expected_sale_price"`
}

// CacheEntry is the persisted form of a comps lookup, keyed by
// "v{schema}:{normalized query}". Entries are replaced wholesale, never
// mutated in place.
type CacheEntry struct {
	Timestamp        int64        `json:"ts"`
	Status           CompsStatus  `json:"status"`
	Stats            PriceStats   `json:"stats"`
	ConfidenceReason string       `json:"confidence_reason,omitempty"`
	SampleItems      []SampleItem `json:"sample_items,omitempty"`
	LastSoldDate     string       `json:"last_sold_date,omitempty"`
}

// CompsResult is what a lookup returns to the pipeline: the terminal
// status plus whatever statistics were recoverable.
type CompsResult struct {
	Status           CompsStatus  `json:"status"`
	Stats            PriceStats   `json:"stats"`
	ConfidenceReason string       `json:"confidence_reason,omitempty"`
	SampleItems      []SampleItem `json:"sample_items,omitempty"`
	LastSoldDate     string       `json:"last_sold_date,omitempty"`
	FromCache        bool         `json:"from_cache"`
}
