package domain

// OfferMetrics holds the raw engagement numbers scraped with an offer.
type OfferMetrics struct {
	Likes                int
	Comments             int
	Shares               int
	EstimatedImpressions int
}

// CandidateOffer is a scraped offer candidate returned by the offer source.
// Read-only input to selection.
type CandidateOffer struct {
	ID         string
	Title      string
	Score      float64 // success score (0-100)
	Price      float64
	Niche      Niche
	ScrapedAt  int64 // Unix timestamp in milliseconds
	RawMetrics OfferMetrics
}
