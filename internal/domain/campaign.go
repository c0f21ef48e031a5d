package domain

// ConversionAction is one itemized conversion row from an insights payload.
// Values arrive as strings on the wire.
type ConversionAction struct {
	Type  string
	Value string
}

// RawAdsetInsights is the unnormalized per-adset slice of an insights payload.
type RawAdsetInsights struct {
	ID           string
	DailyBudget  string
	Spend        string
	Clicks       string
	Impressions  string
	Actions      []ConversionAction
	ActionValues []ConversionAction
}

// RawInsights is the heterogeneous payload returned by the ad platform for
// one campaign. Every numeric field is an optional string; Adsets may be
// empty when the platform returns campaign-level rows only.
type RawInsights struct {
	CampaignID   string
	CampaignName string
	Status       string // ACTIVE, PAUSED, ...
	DailyBudget  string
	Spend        string
	Clicks       string
	Impressions  string
	Actions      []ConversionAction
	ActionValues []ConversionAction
	Adsets       []RawAdsetInsights
}

// CampaignRecord is the canonical, normalized view of one live campaign.
// Recomputed from raw payloads each evaluation cycle; never persisted as
// source of truth.
type CampaignRecord struct {
	ID          string
	Name        string
	Budget      float64
	Spend       float64
	Clicks      int64
	Impressions int64
	Conversions int64
	Revenue     float64
	ROAS        float64 // Revenue/Spend, 0 when Spend is 0
	CTR         float64 // percent
	Active      bool
}
