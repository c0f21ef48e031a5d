// Package main runs a single launch pipeline end to end against the stub
// collaborators and prints the outcome. Useful for demos and smoke checks
// without a running server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"adpilot/internal/ads/stub"
	"adpilot/internal/domain"
	"adpilot/internal/orchestrator"
	"adpilot/internal/storage/memory"
)

func main() {
	budget := flag.Float64("budget", 150, "Daily budget")
	niche := flag.String("niche", "WHITE", "Niche (WHITE, GREY, BLACK)")
	keywords := flag.String("keywords", "yoga mats", "Comma-separated search keywords")
	audience := flag.String("audience", "fitness 25-45", "Target audience")
	qualityMin := flag.Float64("quality-min", 70, "Minimum offer score (0-100)")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall run timeout")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	var kws []string
	for _, kw := range strings.Split(*keywords, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			kws = append(kws, kw)
		}
	}

	config := domain.AutomationConfig{
		Budget:   *budget,
		Niche:    domain.Niche(strings.ToUpper(*niche)),
		RiskTier: domain.RiskModerate,
		Keywords: kws,
		ScrapingFilters: domain.ScrapingFilters{
			QualityMin: *qualityMin,
		},
		ProductSpec: domain.ProductSpec{
			Audience: *audience,
		},
	}

	orch := orchestrator.New(orchestrator.Options{
		Offers:     &stub.OfferSource{Offers: sampleOffers()},
		Products:   &stub.ProductPlatform{},
		Funnels:    &stub.FunnelService{},
		Creatives:  &stub.CreativeService{},
		Platform:   stub.NewAdPlatform(),
		Executions: memory.NewExecutionStore(),
		Backoff:    orchestrator.BackoffPolicy{MaxAttempts: 3, Delay: 100 * time.Millisecond},
		Logger:     logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	id, err := orch.Start(ctx, config)
	if err != nil {
		logger.Fatal("start launch", zap.Error(err))
	}
	logger.Info("launch started", zap.String("execution_id", id))

	exec := awaitTerminal(ctx, orch, id, logger)
	printSummary(exec)

	if exec.Status != domain.StatusCompleted {
		os.Exit(1)
	}
}

// awaitTerminal polls execution status until it settles.
func awaitTerminal(ctx context.Context, orch *orchestrator.Orchestrator, id string, logger *zap.Logger) *domain.PipelineExecution {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Fatal("timed out waiting for launch", zap.String("execution_id", id))
		case <-ticker.C:
			exec, err := orch.Status(ctx, id)
			if err != nil {
				logger.Fatal("fetch status", zap.Error(err))
			}
			if exec.Status.Terminal() {
				return exec
			}
		}
	}
}

func printSummary(exec *domain.PipelineExecution) {
	fmt.Printf("\nExecution %s\n", exec.ID)
	fmt.Printf("  Status:   %s\n", exec.Status)
	fmt.Printf("  Stage:    %s\n", exec.Stage)
	fmt.Printf("  Progress: %d%%\n", exec.ProgressPct)

	r := exec.PartialResults
	fmt.Printf("  Offers scraped: %d\n", len(r.ScrapedOffers))
	if r.SelectedOffer != nil {
		fmt.Printf("  Selected offer: %s (score %.0f, price %.2f)\n",
			r.SelectedOffer.Title, r.SelectedOffer.Score, r.SelectedOffer.Price)
	}
	if r.Product != nil {
		fmt.Printf("  Product:        %s -> %s\n", r.Product.ID, r.Product.CheckoutURL)
	}
	if r.Funnel != nil {
		fmt.Printf("  Funnel:         %s\n", r.Funnel.LandingPageURL)
	}
	if len(r.CreativeURLs) > 0 {
		fmt.Printf("  Creatives:      %d generated\n", len(r.CreativeURLs))
	}
	if r.CampaignID != "" {
		fmt.Printf("  Campaign:       %s\n", r.CampaignID)
	}
	for _, e := range exec.Errors {
		fmt.Printf("  Error: %s\n", e)
	}
}

// sampleOffers is the canned catalog the stub source searches.
func sampleOffers() []*domain.CandidateOffer {
	now := time.Now().UnixMilli()
	return []*domain.CandidateOffer{
		{
			ID: "offer_yoga_mat", Title: "Align Pro Yoga Mat", Niche: domain.NicheWhite,
			Price: 39.99, Score: 86,
			RawMetrics: domain.OfferMetrics{Likes: 5400, Comments: 320, Shares: 210},
			ScrapedAt:  now,
		},
		{
			ID: "offer_resistance_bands", Title: "FlexBand Resistance Set", Niche: domain.NicheWhite,
			Price: 24.99, Score: 78,
			RawMetrics: domain.OfferMetrics{Likes: 3100, Comments: 150, Shares: 95},
			ScrapedAt:  now,
		},
		{
			ID: "offer_posture_brace", Title: "UprightGo Posture Trainer", Niche: domain.NicheWhite,
			Price: 49.99, Score: 71,
			RawMetrics: domain.OfferMetrics{Likes: 1800, Comments: 80, Shares: 40},
			ScrapedAt:  now,
		},
	}
}
