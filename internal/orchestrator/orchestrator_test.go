package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"adpilot/internal/ads"
	"adpilot/internal/ads/stub"
	"adpilot/internal/domain"
	"adpilot/internal/storage/memory"
)

func testConfig() domain.AutomationConfig {
	return domain.AutomationConfig{
		Budget:   150,
		Niche:    domain.NicheWhite,
		RiskTier: domain.RiskModerate,
		Keywords: []string{"yoga mats"},
		ScrapingFilters: domain.ScrapingFilters{
			QualityMin: 70,
		},
		ProductSpec: domain.ProductSpec{Audience: "fitness 25-45"},
	}
}

func testOffers() []*domain.CandidateOffer {
	return []*domain.CandidateOffer{
		{ID: "off1", Title: "Basic Mat", Score: 60, Price: 30, Niche: domain.NicheWhite, ScrapedAt: 1},
		{ID: "off2", Title: "Premium Mat", Score: 95, Price: 50, Niche: domain.NicheWhite, ScrapedAt: 2},
		{ID: "off3", Title: "Travel Mat", Score: 80, Price: 40, Niche: domain.NicheWhite, ScrapedAt: 3},
	}
}

func newTestOrchestrator(opts Options) *Orchestrator {
	if opts.Offers == nil {
		opts.Offers = &stub.OfferSource{Offers: testOffers()}
	}
	if opts.Products == nil {
		opts.Products = &stub.ProductPlatform{}
	}
	if opts.Funnels == nil {
		opts.Funnels = &stub.FunnelService{}
	}
	if opts.Creatives == nil {
		opts.Creatives = &stub.CreativeService{}
	}
	if opts.Platform == nil {
		opts.Platform = stub.NewAdPlatform()
	}
	if opts.Executions == nil {
		opts.Executions = memory.NewExecutionStore()
	}
	if opts.Backoff.MaxAttempts == 0 {
		opts.Backoff = BackoffPolicy{MaxAttempts: 3, Delay: time.Millisecond}
	}
	return New(opts)
}

// waitTerminal polls until the execution reaches a terminal status.
func waitTerminal(t *testing.T, o *Orchestrator, id string) *domain.PipelineExecution {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		exec, err := o.Status(context.Background(), id)
		require.NoError(t, err)
		if exec.Status.Terminal() {
			return exec
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("execution %s did not finish in time", id)
	return nil
}

func TestStart_RejectsLowBudget(t *testing.T) {
	o := newTestOrchestrator(Options{})

	config := testConfig()
	config.Budget = 50

	_, err := o.Start(context.Background(), config)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "minimum budget is 100") {
		t.Errorf("error must name the minimum: %v", err)
	}

	// Nothing was executed or recorded.
	history, err := o.History(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestPipeline_SelectsHighestScoringOffer(t *testing.T) {
	o := newTestOrchestrator(Options{})

	id, err := o.Start(context.Background(), testConfig())
	require.NoError(t, err)

	exec := waitTerminal(t, o, id)
	require.Equal(t, domain.StatusCompleted, exec.Status)
	require.Equal(t, domain.StageCompleted, exec.Stage)
	require.Equal(t, 100, exec.ProgressPct)

	require.NotNil(t, exec.PartialResults.SelectedOffer)
	require.Equal(t, "off2", exec.PartialResults.SelectedOffer.ID)
	require.NotNil(t, exec.PartialResults.Product)
	require.NotNil(t, exec.PartialResults.Funnel)
	require.NotEmpty(t, exec.PartialResults.CreativeURLs)
	require.NotEmpty(t, exec.PartialResults.CampaignID)
	require.NotZero(t, exec.EndedAt)

	history, err := o.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, id, history[0].ID)
}

func TestPipeline_QualityFilterRejectsAll(t *testing.T) {
	o := newTestOrchestrator(Options{})

	config := testConfig()
	config.ScrapingFilters.QualityMin = 99

	id, err := o.Start(context.Background(), config)
	require.NoError(t, err)

	exec := waitTerminal(t, o, id)
	require.Equal(t, domain.StatusFailed, exec.Status)
	require.Equal(t, domain.StageAnalyzing, exec.Stage)
	require.NotEmpty(t, exec.Errors)
	require.Contains(t, exec.Errors[0], "rejected")
	// Scraping succeeded before the analysis failed.
	require.NotEmpty(t, exec.PartialResults.ScrapedOffers)
}

func TestPipeline_ProductFailureKeepsPartialResults(t *testing.T) {
	o := newTestOrchestrator(Options{
		Products: &stub.ProductPlatform{Err: errors.New("store unreachable")},
	})

	id, err := o.Start(context.Background(), testConfig())
	require.NoError(t, err)

	exec := waitTerminal(t, o, id)
	require.Equal(t, domain.StatusFailed, exec.Status)
	require.Equal(t, domain.StageCreatingProduct, exec.Stage)
	require.NotEmpty(t, exec.Errors)
	require.Contains(t, exec.Errors[0], "store unreachable")

	// The selected offer from the earlier stage survives the failure.
	require.NotNil(t, exec.PartialResults.SelectedOffer)
	require.Equal(t, "off2", exec.PartialResults.SelectedOffer.ID)
	require.Nil(t, exec.PartialResults.Product)
}

func TestPipeline_KeywordFailureDegrades(t *testing.T) {
	o := newTestOrchestrator(Options{
		Offers: &stub.OfferSource{
			Offers:       testOffers(),
			FailKeywords: map[string]bool{"broken niche": true},
		},
	})

	config := testConfig()
	config.Keywords = []string{"broken niche", "yoga mats"}

	id, err := o.Start(context.Background(), config)
	require.NoError(t, err)

	exec := waitTerminal(t, o, id)
	require.Equal(t, domain.StatusCompleted, exec.Status)
	require.Equal(t, "off2", exec.PartialResults.SelectedOffer.ID)
}

func TestPipeline_AllKeywordsFailing(t *testing.T) {
	o := newTestOrchestrator(Options{
		Offers: &stub.OfferSource{
			Offers:       testOffers(),
			FailKeywords: map[string]bool{"broken niche": true},
		},
	})

	config := testConfig()
	config.Keywords = []string{"broken niche"}

	id, err := o.Start(context.Background(), config)
	require.NoError(t, err)

	exec := waitTerminal(t, o, id)
	require.Equal(t, domain.StatusFailed, exec.Status)
	require.Equal(t, domain.StageScraping, exec.Stage)
	require.Contains(t, exec.Errors[0], "no offers")
}

// blockingProducts parks CreateProduct until released or cancelled.
type blockingProducts struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingProducts() *blockingProducts {
	return &blockingProducts{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *blockingProducts) CreateProduct(ctx context.Context, spec domain.ProductSpec) (*domain.Product, error) {
	b.once.Do(func() { close(b.entered) })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.release:
		return &domain.Product{ID: "prod_blocked", Price: spec.Price}, nil
	}
}

var _ ads.ProductPlatform = (*blockingProducts)(nil)

func TestStart_SerializesSameConfig(t *testing.T) {
	products := newBlockingProducts()
	o := newTestOrchestrator(Options{Products: products})

	config := testConfig()

	id, err := o.Start(context.Background(), config)
	require.NoError(t, err)
	<-products.entered

	_, err = o.Start(context.Background(), config)
	require.ErrorIs(t, err, ErrRunInProgress)

	// A different config is not serialized against the first.
	other := testConfig()
	other.Keywords = []string{"resistance bands"}
	otherID, err := o.Start(context.Background(), other)
	require.NoError(t, err)

	close(products.release)
	waitTerminal(t, o, id)
	waitTerminal(t, o, otherID)

	// With the first run terminal the fingerprint slot is free again.
	_, err = o.Start(context.Background(), config)
	require.NoError(t, err)
}

func TestCancel_StopsLiveExecution(t *testing.T) {
	products := newBlockingProducts()
	o := newTestOrchestrator(Options{Products: products})

	id, err := o.Start(context.Background(), testConfig())
	require.NoError(t, err)
	<-products.entered

	require.NoError(t, o.Cancel(id))

	exec := waitTerminal(t, o, id)
	require.Equal(t, domain.StatusFailed, exec.Status)
	require.Contains(t, exec.Errors[0], "context canceled")
}

// recordingPublisher captures every published snapshot.
type recordingPublisher struct {
	mu    sync.Mutex
	snaps []*domain.PipelineExecution
}

func (p *recordingPublisher) PublishExecution(e *domain.PipelineExecution) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, e)
}

func (p *recordingPublisher) all() []*domain.PipelineExecution {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*domain.PipelineExecution(nil), p.snaps...)
}

func TestPipeline_ProgressIsMonotonic(t *testing.T) {
	pub := &recordingPublisher{}
	o := newTestOrchestrator(Options{Publisher: pub})

	id, err := o.Start(context.Background(), testConfig())
	require.NoError(t, err)
	waitTerminal(t, o, id)

	snaps := pub.all()
	require.NotEmpty(t, snaps)

	last := -1
	for i, s := range snaps {
		if s.ProgressPct < last {
			t.Fatalf("progress regressed at snapshot %d: %d -> %d", i, last, s.ProgressPct)
		}
		last = s.ProgressPct
	}
	require.Equal(t, 100, last)
}

func TestPipeline_WaitsOutCampaignReview(t *testing.T) {
	platform := stub.NewAdPlatform()
	platform.ReadyAfterPolls = 2

	o := newTestOrchestrator(Options{
		Platform: platform,
		Backoff:  BackoffPolicy{MaxAttempts: 5, Delay: time.Millisecond},
	})

	id, err := o.Start(context.Background(), testConfig())
	require.NoError(t, err)

	exec := waitTerminal(t, o, id)
	require.Equal(t, domain.StatusCompleted, exec.Status)

	status, err := platform.CampaignStatus(context.Background(), exec.PartialResults.CampaignID)
	require.NoError(t, err)
	require.Equal(t, "ACTIVE", status)
}

func TestPipeline_CompletesEvenIfReviewNeverEnds(t *testing.T) {
	platform := stub.NewAdPlatform()
	platform.ReadyAfterPolls = 100

	o := newTestOrchestrator(Options{
		Platform: platform,
		Backoff:  BackoffPolicy{MaxAttempts: 3, Delay: time.Millisecond},
	})

	id, err := o.Start(context.Background(), testConfig())
	require.NoError(t, err)

	// Review exhaustion is logged, not fatal.
	exec := waitTerminal(t, o, id)
	require.Equal(t, domain.StatusCompleted, exec.Status)
}

func TestHistory_TrimsToNewestTen(t *testing.T) {
	o := newTestOrchestrator(Options{})

	var lastID string
	for i := 0; i < 12; i++ {
		config := testConfig()
		config.Keywords = []string{fmt.Sprintf("keyword %d", i)}

		id, err := o.Start(context.Background(), config)
		require.NoError(t, err)
		waitTerminal(t, o, id)
		lastID = id
	}

	history, err := o.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, history, historyKeep)
	require.Equal(t, lastID, history[0].ID)
}

func TestStatus_UnknownExecution(t *testing.T) {
	o := newTestOrchestrator(Options{})

	_, err := o.Status(context.Background(), "exec_missing")
	require.ErrorIs(t, err, ErrExecutionNotFound)
}
