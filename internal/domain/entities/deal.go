package entities

import "time"

// Deal is a candidate product as delivered by a feed: a title and the
// price it can be bought at, plus whatever metadata the feed carried.
type Deal struct {
	Title     string  `json:"title"`
	BuyPrice  float64 `json:"buy_price"`
	URL       string  `json:"url,omitempty"`
	Category  string  `json:"category,omitempty"`
	Condition string  `json:"condition,omitempty"`
}

// DealStatus is the pipeline-level disposition of a scanned deal.
type DealStatus string

const (
	DealPassed  DealStatus = "passed"
	DealFailed  DealStatus = "failed"
	DealSkipped DealStatus = "skipped"
	// DealPending marks deals interrupted by throttling or budget
	// exhaustion; a later resume pass picks them up again.
	DealPending DealStatus = "pending"
)

// DealReport is the full per-deal output of a scan: the input deal, the
// confidence scoring, the comps statistics, the evaluation and the
// near-miss flag, ready for persistence or export.
type DealReport struct {
	ID        string  `json:"id" db:"id"`
	Title     string  `json:"title" db:"title"`
	BuyPrice  float64 `json:"buy_price" db:"buy_price"`
	URL       string  `json:"url,omitempty" db:"url"`
	Category  string  `json:"category,omitempty" db:"category"`
	Condition string  `json:"condition,omitempty" db:"condition"`

	Mode              Mode              `json:"mode" db:"mode"`
	Confidence        ConfidenceLevel   `json:"confidence,omitempty" db:"confidence"`
	ConfidenceReasons []string          `json:"confidence_reasons,omitempty" db:"-"`
	Query             string            `json:"query,omitempty" db:"query"`
	Comps             *CompsResult      `json:"comps,omitempty" db:"-"`
	Evaluation        *EvaluationResult `json:"evaluation,omitempty" db:"-"`

	Status   DealStatus `json:"status" db:"status"`
	Reason   string     `json:"reason,omitempty" db:"reason"`
	NearMiss bool       `json:"near_miss" db:"near_miss"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ExpectedSalePrice returns the comps-derived sale estimate, or 0 when
// no usable comps were found.
func (r *DealReport) ExpectedSalePrice() float64 {
	if r.Comps == nil {
		return 0
	}
	return r.Comps.Stats.ExpectedSalePrice
}

// NetProfit returns the evaluated net profit, or 0 when the deal never
// reached evaluation.
func (r *DealReport) NetProfit() float64 {
	if r.Evaluation == nil {
		return 0
	}
	return r.Evaluation.NetProfit
}

// NetROI returns the evaluated net ROI, or 0 when the deal never reached
// evaluation.
func (r *DealReport) NetROI() float64 {
	if r.Evaluation == nil {
		return 0
	}
	return r.Evaluation.NetROI
}

// CompCount returns the trimmed comp count backing the evaluation.
func (r *DealReport) CompCount() int {
	if r.Comps == nil {
		return 0
	}
	return r.Comps.Stats.TrimmedCount
}
