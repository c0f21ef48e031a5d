package domain

// Stage identifies one step of the launch pipeline.
type Stage string

const (
	StageConfiguring       Stage = "CONFIGURING"
	StageScraping          Stage = "SCRAPING"
	StageAnalyzing         Stage = "ANALYZING"
	StageCreatingProduct   Stage = "CREATING_PRODUCT"
	StageCreatingFunnel    Stage = "CREATING_FUNNEL"
	StageCreatingCreatives Stage = "CREATING_CREATIVES"
	StageCreatingCampaign  Stage = "CREATING_CAMPAIGN"
	StageCompleted         Stage = "COMPLETED"
	StageFailed            Stage = "FAILED"
)

// ExecutionStatus is the lifecycle state of a pipeline execution.
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "RUNNING"
	StatusCompleted ExecutionStatus = "COMPLETED"
	StatusFailed    ExecutionStatus = "FAILED"
)

// Terminal reports whether the status is final.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Product is the created product platform entity.
type Product struct {
	ID          string
	Price       float64
	CheckoutURL string
}

// Funnel holds the page URLs created by the funnel service.
type Funnel struct {
	LandingPageURL  string
	UpsellURL       string
	ThankYouPageURL string
}

// PartialResults accumulates stage outputs. Earlier-stage results survive a
// later-stage failure so callers can see what succeeded.
type PartialResults struct {
	ScrapedOffers []*CandidateOffer
	SelectedOffer *CandidateOffer
	Product       *Product
	Funnel        *Funnel
	CreativeURLs  []string
	CampaignID    string
}

// PipelineExecution is the state of one launch run. Mutated only by the
// orchestrator; terminal at Completed/Failed.
type PipelineExecution struct {
	ID             string
	Config         AutomationConfig
	Stage          Stage
	ProgressPct    int
	Status         ExecutionStatus
	PartialResults PartialResults
	Errors         []string
	StartedAt      int64 // Unix timestamp in milliseconds
	EndedAt        int64 // zero until terminal
}
