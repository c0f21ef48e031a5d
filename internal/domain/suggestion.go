package domain

// Priority ranks a suggestion by how far the metric deviates from its
// threshold.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// PriorityFromDeviation maps a relative threshold deviation (0..1+) to a
// priority. Larger deviation means higher priority, capped at CRITICAL.
func PriorityFromDeviation(dev float64) Priority {
	switch {
	case dev >= 0.75:
		return PriorityCritical
	case dev >= 0.5:
		return PriorityHigh
	case dev >= 0.25:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Suggestion is a recommended change queued for human approval. Created when
// the corresponding auto-apply flag is off (or the kind is advisory-only);
// consumed exactly once when approved.
type Suggestion struct {
	ID              string
	Kind            ActionKind
	Priority        Priority
	CampaignID      string
	Rationale       string
	EstimatedImpact string
	CreatedAt       int64 // Unix timestamp in milliseconds
	Applied         bool
}
