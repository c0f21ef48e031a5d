// Package ads defines the contracts the core requires from external
// collaborators: offer discovery, product creation, funnel creation,
// creative generation and the ad platform itself. Wire formats of any
// specific platform stay behind these interfaces.
package ads

import (
	"context"

	"adpilot/internal/domain"
)

// SearchFilters bound an offer search.
type SearchFilters struct {
	MinEngagement int
	MinScore      float64
}

// OfferSource ranks and returns candidate offers for keywords/platforms.
type OfferSource interface {
	// Search returns up to maxResults candidate offers. Results may be
	// unordered; selection sorts them.
	Search(ctx context.Context, keywords []string, platforms []string, maxResults int, filters SearchFilters) ([]*domain.CandidateOffer, error)
}

// ProductPlatform creates sellable products (checkout included).
type ProductPlatform interface {
	CreateProduct(ctx context.Context, spec domain.ProductSpec) (*domain.Product, error)
}

// FunnelService builds the landing/upsell/thank-you page set for a product.
type FunnelService interface {
	CreateFunnel(ctx context.Context, productID string, niche domain.Niche, audience string, price float64) (*domain.Funnel, error)
}

// CreativeSpec describes the creatives to generate for an offer.
type CreativeSpec struct {
	OfferTitle string
	Niche      domain.Niche
	Audience   string
	Count      int
}

// CreativeService generates ad creative images.
type CreativeService interface {
	// Generate returns URLs of the generated creatives.
	Generate(ctx context.Context, spec CreativeSpec) ([]string, error)
}

// CampaignSpec is the input for creating a campaign shell.
type CampaignSpec struct {
	Name      string
	Objective string
	Niche     domain.Niche
}

// AdsetSpec is the input for creating a budget/targeting unit.
type AdsetSpec struct {
	CampaignID  string
	Name        string
	DailyBudget float64
	Audience    string
}

// SetBudgetResult reports the outcome of a budget change.
type SetBudgetResult struct {
	Success bool
	Error   string
}

// AdPlatform is the ads-platform contract: entity creation, control
// operations and insight retrieval.
type AdPlatform interface {
	CreateCampaign(ctx context.Context, spec CampaignSpec) (string, error)
	CreateAdset(ctx context.Context, spec AdsetSpec) (string, error)
	UploadImage(ctx context.Context, imageURL string) (string, error)
	CreateCreative(ctx context.Context, adsetID, imageID, headline string) (string, error)
	CreateAd(ctx context.Context, adsetID, creativeID, name string) (string, error)

	PauseCampaign(ctx context.Context, campaignID string) error
	SetBudget(ctx context.Context, campaignID string, amount float64) (*SetBudgetResult, error)

	// CampaignStatus returns the platform-side status string (ACTIVE,
	// PAUSED, IN_REVIEW, ...) used by the launch readiness poll.
	CampaignStatus(ctx context.Context, campaignID string) (string, error)

	// ListCampaignIDs returns the ids of all campaigns on the account.
	ListCampaignIDs(ctx context.Context) ([]string, error)

	// FetchInsights returns the raw, unnormalized insight payload for one
	// campaign, possibly itemized per adset.
	FetchInsights(ctx context.Context, campaignID string) (*domain.RawInsights, error)
}

// Recommendation is a narrative optimization hint from the insight
// generator.
type Recommendation struct {
	Title  string
	Detail string
	Impact string
}

// InsightGenerator produces narrative recommendations from campaign
// records. Best-effort enrichment: callers must tolerate failure.
type InsightGenerator interface {
	Recommend(ctx context.Context, records []*domain.CampaignRecord) ([]Recommendation, error)
}
