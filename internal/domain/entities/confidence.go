package entities

// ConfidenceLevel grades how well a raw product title is expected to
// translate into a marketplace search query.
type ConfidenceLevel string

const (
	ConfidenceHigh ConfidenceLevel = "high"
	ConfidenceMed  ConfidenceLevel = "med"
	ConfidenceLow  ConfidenceLevel = "low"
)

// ConfidenceResult is the outcome of scoring a product title. Reasons
// are ordered and human-readable; Query is the normalized search string.
type ConfidenceResult struct {
	Level   ConfidenceLevel `json:"level"`
	Reasons []string        `json:"reasons"`
	Query   string          `json:"query"`
}
