// Package stub provides fixed in-memory collaborator implementations used
// by the server until real adapters are wired, by the one-shot launcher
// and by tests.
package stub

import (
	"context"
	"fmt"
	"sync"

	"adpilot/internal/ads"
	"adpilot/internal/domain"
)

// OfferSource returns fixed offers, optionally failing per keyword.
// Implements ads.OfferSource.
type OfferSource struct {
	Offers []*domain.CandidateOffer
	// FailKeywords lists keywords whose search fails.
	FailKeywords map[string]bool
}

// Search returns copies of offers matching the filters. Keywords listed in
// FailKeywords produce an error so fan-out degradation can be exercised.
func (s *OfferSource) Search(_ context.Context, keywords []string, _ []string, maxResults int, filters ads.SearchFilters) ([]*domain.CandidateOffer, error) {
	for _, kw := range keywords {
		if s.FailKeywords[kw] {
			return nil, fmt.Errorf("offer search unavailable for %q", kw)
		}
	}

	var result []*domain.CandidateOffer
	for _, o := range s.Offers {
		if o.RawMetrics.Likes+o.RawMetrics.Comments+o.RawMetrics.Shares < filters.MinEngagement {
			continue
		}
		cp := *o
		result = append(result, &cp)
		if maxResults > 0 && len(result) >= maxResults {
			break
		}
	}
	return result, nil
}

// ProductPlatform creates deterministic products. Implements
// ads.ProductPlatform.
type ProductPlatform struct {
	Err error // when set, CreateProduct fails

	mu      sync.Mutex
	created int
}

// CreateProduct returns a product with a sequential id.
func (s *ProductPlatform) CreateProduct(_ context.Context, spec domain.ProductSpec) (*domain.Product, error) {
	if s.Err != nil {
		return nil, s.Err
	}

	s.mu.Lock()
	s.created++
	n := s.created
	s.mu.Unlock()

	id := fmt.Sprintf("prod_%d", n)
	return &domain.Product{
		ID:          id,
		Price:       spec.Price,
		CheckoutURL: "https://checkout.example/" + id,
	}, nil
}

// FunnelService builds deterministic funnel URLs. Implements
// ads.FunnelService.
type FunnelService struct {
	Err error
}

// CreateFunnel returns funnel page URLs derived from the product id.
func (s *FunnelService) CreateFunnel(_ context.Context, productID string, _ domain.Niche, _ string, _ float64) (*domain.Funnel, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return &domain.Funnel{
		LandingPageURL:  "https://funnel.example/" + productID,
		UpsellURL:       "https://funnel.example/" + productID + "/upsell",
		ThankYouPageURL: "https://funnel.example/" + productID + "/thanks",
	}, nil
}

// CreativeService generates deterministic creative URLs. Implements
// ads.CreativeService.
type CreativeService struct {
	Err error
}

// Generate returns spec.Count creative URLs.
func (s *CreativeService) Generate(_ context.Context, spec ads.CreativeSpec) ([]string, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	count := spec.Count
	if count <= 0 {
		count = 3
	}
	urls := make([]string, 0, count)
	for i := 0; i < count; i++ {
		urls = append(urls, fmt.Sprintf("https://creatives.example/%s/%d.png", spec.Niche, i+1))
	}
	return urls, nil
}

// campaign is the stub platform's internal campaign state.
type campaign struct {
	status   string
	budget   float64
	insights *domain.RawInsights
	statusAt int // readiness poll countdown
}

// AdPlatform is an in-memory ad platform. Implements ads.AdPlatform.
type AdPlatform struct {
	// ReadyAfterPolls makes CampaignStatus report IN_REVIEW this many
	// times before ACTIVE, to exercise the readiness backoff.
	ReadyAfterPolls int
	// FailSetBudget makes SetBudget report a platform-side failure.
	FailSetBudget bool
	// FailPause makes PauseCampaign return an error.
	FailPause bool

	mu        sync.Mutex
	seq       int
	campaigns map[string]*campaign
}

// NewAdPlatform creates an empty stub ad platform.
func NewAdPlatform() *AdPlatform {
	return &AdPlatform{campaigns: make(map[string]*campaign)}
}

// SeedInsights registers a campaign with a fixed raw insight payload.
func (s *AdPlatform) SeedInsights(raw *domain.RawInsights) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[raw.CampaignID] = &campaign{status: raw.Status, insights: raw}
}

// CreateCampaign registers a campaign shell in PAUSED state.
func (s *AdPlatform) CreateCampaign(_ context.Context, spec ads.CampaignSpec) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	id := fmt.Sprintf("camp_%d", s.seq)
	s.campaigns[id] = &campaign{status: "ACTIVE", statusAt: s.ReadyAfterPolls}
	return id, nil
}

// CreateAdset registers an adset and records its budget on the campaign.
func (s *AdPlatform) CreateAdset(_ context.Context, spec ads.AdsetSpec) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[spec.CampaignID]
	if !ok {
		return "", fmt.Errorf("unknown campaign %s", spec.CampaignID)
	}
	c.budget = spec.DailyBudget
	s.seq++
	return fmt.Sprintf("adset_%d", s.seq), nil
}

// UploadImage returns a deterministic image id.
func (s *AdPlatform) UploadImage(_ context.Context, imageURL string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("img_%d", s.seq), nil
}

// CreateCreative returns a deterministic creative id.
func (s *AdPlatform) CreateCreative(_ context.Context, adsetID, imageID, headline string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("creative_%d", s.seq), nil
}

// CreateAd returns a deterministic ad id.
func (s *AdPlatform) CreateAd(_ context.Context, adsetID, creativeID, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("ad_%d", s.seq), nil
}

// PauseCampaign flips campaign status to PAUSED.
func (s *AdPlatform) PauseCampaign(_ context.Context, campaignID string) error {
	if s.FailPause {
		return fmt.Errorf("platform rejected pause for %s", campaignID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[campaignID]
	if !ok {
		return fmt.Errorf("unknown campaign %s", campaignID)
	}
	// Pausing an already paused campaign is a safe no-op.
	c.status = "PAUSED"
	if c.insights != nil {
		c.insights.Status = "PAUSED"
	}
	return nil
}

// SetBudget records the new budget.
func (s *AdPlatform) SetBudget(_ context.Context, campaignID string, amount float64) (*ads.SetBudgetResult, error) {
	if s.FailSetBudget {
		return &ads.SetBudgetResult{Success: false, Error: "budget change rejected"}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[campaignID]
	if !ok {
		return nil, fmt.Errorf("unknown campaign %s", campaignID)
	}
	c.budget = amount
	return &ads.SetBudgetResult{Success: true}, nil
}

// CampaignStatus reports IN_REVIEW for the configured number of polls, then
// the real status.
func (s *AdPlatform) CampaignStatus(_ context.Context, campaignID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[campaignID]
	if !ok {
		return "", fmt.Errorf("unknown campaign %s", campaignID)
	}
	if c.statusAt > 0 {
		c.statusAt--
		return "IN_REVIEW", nil
	}
	return c.status, nil
}

// ListCampaignIDs returns all registered campaign ids.
func (s *AdPlatform) ListCampaignIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.campaigns))
	for id := range s.campaigns {
		ids = append(ids, id)
	}
	return ids, nil
}

// FetchInsights returns the seeded payload, or a minimal one for campaigns
// created through the stub itself.
func (s *AdPlatform) FetchInsights(_ context.Context, campaignID string) (*domain.RawInsights, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[campaignID]
	if !ok {
		return nil, fmt.Errorf("unknown campaign %s", campaignID)
	}
	if c.insights != nil {
		cp := *c.insights
		return &cp, nil
	}
	return &domain.RawInsights{
		CampaignID:  campaignID,
		Status:      c.status,
		DailyBudget: fmt.Sprintf("%.2f", c.budget),
	}, nil
}

// InsightGenerator returns canned recommendations. Implements
// ads.InsightGenerator.
type InsightGenerator struct {
	Recommendations []ads.Recommendation
	Err             error
}

// Recommend returns the canned recommendations.
func (s *InsightGenerator) Recommend(_ context.Context, _ []*domain.CampaignRecord) ([]ads.Recommendation, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]ads.Recommendation(nil), s.Recommendations...), nil
}

// Compile-time interface checks.
var (
	_ ads.OfferSource      = (*OfferSource)(nil)
	_ ads.ProductPlatform  = (*ProductPlatform)(nil)
	_ ads.FunnelService    = (*FunnelService)(nil)
	_ ads.CreativeService  = (*CreativeService)(nil)
	_ ads.AdPlatform       = (*AdPlatform)(nil)
	_ ads.InsightGenerator = (*InsightGenerator)(nil)
)
