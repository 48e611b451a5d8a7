package domain

// RiskCategory is the discrete alert level derived from a probability.
type RiskCategory string

const (
	RiskLow    RiskCategory = "low"
	RiskMedium RiskCategory = "medium"
	RiskHigh   RiskCategory = "high"
)

// PredictionResult is the scored outcome for one lead day.
type PredictionResult struct {
	Day         int          `json:"day"`
	Date        Date         `json:"date"`
	Probability float64      `json:"probability"`
	Alert       RiskCategory `json:"alert"`
	TopFeatures []string     `json:"top_features"`
	// Degraded is set when no classifier produced a probability and the
	// hash fallback was used instead.
	Degraded bool `json:"degraded,omitempty"`
}
