package entities

// Mode names a threshold set for deal evaluation.
type Mode string

const (
	ModeConservative Mode = "conservative"
	ModeHighTicket   Mode = "highticket"
)

// IsValid checks if the mode value is one of the defined constants.
func (m Mode) IsValid() bool {
	switch m {
	case ModeConservative, ModeHighTicket:
		return true
	}
	return false
}

// FeeModel holds the resale cost knobs netted out of the expected sale price.
type FeeModel struct {
	MarketplaceFeePct float64 `json:"marketplace_fee_pct"`
	PaymentFeePct     float64 `json:"payment_fee_pct"`
	FlatShipping      float64 `json:"flat_shipping"`
}

// Thresholds holds the pass criteria a deal is evaluated against.
type Thresholds struct {
	MinNetProfit float64 `json:"min_net_profit"`
	MinNetROI    float64 `json:"min_net_roi"`
	MinCompCount int     `json:"min_comp_count"`
}

// FailDimension identifies which threshold a failed deal missed.
type FailDimension string

const (
	FailNetProfit FailDimension = "net_profit"
	FailNetROI    FailDimension = "net_roi"
	FailCompCount FailDimension = "comp_count"
)

// FailReason records one unmet condition with the measured and required values.
type FailReason struct {
	Dimension FailDimension `json:"dimension"`
	Measured  float64       `json:"measured"`
	Required  float64       `json:"required"`
	Message   string        `json:"message"`
}

// EvaluationStatus is the verdict of a deal evaluation.
type EvaluationStatus string

const (
	EvaluationPassed EvaluationStatus = "passed"
	EvaluationFailed EvaluationStatus = "failed"
)

// EvaluationResult is the full economics of one evaluated deal. All unmet
// conditions are retained in FailReasons, not just the first.
type EvaluationResult struct {
	GrossProfit float64          `json:"gross_profit"`
	Fees        float64          `json:"fees"`
	NetProfit   float64          `json:"net_profit"`
	NetROI      float64          `json:"net_roi"`
	Passed      bool             `json:"passed"`
	Status      EvaluationStatus `json:"status"`
	FailReasons []FailReason     `json:"fail_reasons,omitempty"`
}

// NearMissMargins holds how close a failed deal must come, per dimension,
// to be flagged a near-miss.
type NearMissMargins struct {
	Profit    float64 `json:"profit"`
	ROI       float64 `json:"roi"`
	CompCount int     `json:"comp_count"`
}
