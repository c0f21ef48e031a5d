package domain

// ActionKind identifies a corrective change the autopilot can make.
type ActionKind string

const (
	ActionPause        ActionKind = "PAUSE"
	ActionScaleBudget  ActionKind = "SCALE_BUDGET"
	ActionCreativeSwap ActionKind = "CREATIVE_SWAP"
)

// PendingAction is a candidate change not yet applied to the ad platform.
type PendingAction struct {
	Kind       ActionKind
	CampaignID string
	Before     string
	After      string
	Reason     string
	Manual     bool // true when triggered by a human approving a suggestion
}

// Action is the recorded outcome of applying a PendingAction. The outcome
// fields are immutable once recorded; failures are data (Success=false),
// not errors. Resolved is bookkeeping for the dedup invariant: an action
// stays open until a later cycle observes that the rule which produced it no
// longer trips for the campaign.
type Action struct {
	ID         string
	Kind       ActionKind
	CampaignID string
	Before     string
	After      string
	ExecutedAt int64 // Unix timestamp in milliseconds
	Success    bool
	Reason     string
	Manual     bool
	Resolved   bool
}
