// Package orchestrator drives the launch pipeline state machine.
// Flow: configuring → scraping → analyzing → product → funnel → creatives →
// campaign. Stages run strictly in order; any stage failure is terminal and
// keeps the partial results computed so far.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"adpilot/internal/ads"
	"adpilot/internal/domain"
	"adpilot/internal/storage"
)

// ErrRunInProgress is returned when a launch is already running for the
// same config fingerprint. Distinct configs run concurrently.
var ErrRunInProgress = errors.New("a launch for this config is already in progress")

// ErrExecutionNotFound is returned when the execution id is unknown.
var ErrExecutionNotFound = errors.New("execution not found")

// historyKeep bounds the persisted execution log.
const historyKeep = 10

// progressCeiling maps each stage to the progress it ends at. Progress is
// monotonically non-decreasing until a terminal state.
var progressCeiling = map[domain.Stage]int{
	domain.StageConfiguring:       10,
	domain.StageScraping:          25,
	domain.StageAnalyzing:         35,
	domain.StageCreatingProduct:   50,
	domain.StageCreatingFunnel:    65,
	domain.StageCreatingCreatives: 80,
	domain.StageCreatingCampaign:  95,
	domain.StageCompleted:         100,
}

// BackoffPolicy is the named retry schedule for the campaign readiness
// poll: fixed delay, bounded attempts, no retry of failed calls.
type BackoffPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultBackoff returns the stock readiness poll schedule.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{MaxAttempts: 5, Delay: 2 * time.Second}
}

// Publisher receives execution snapshots as stages progress. Implemented by
// the events hub; nil disables publishing.
type Publisher interface {
	PublishExecution(e *domain.PipelineExecution)
}

// Options for creating an Orchestrator.
type Options struct {
	Offers    ads.OfferSource
	Products  ads.ProductPlatform
	Funnels   ads.FunnelService
	Creatives ads.CreativeService
	Platform  ads.AdPlatform

	Executions storage.ExecutionStore

	// Platforms are the ad networks passed to offer search.
	Platforms []string
	// MaxOffersPerKeyword caps each keyword's search fan-out.
	MaxOffersPerKeyword int
	// Backoff is the campaign readiness poll schedule.
	Backoff BackoffPolicy

	Publisher Publisher
	Logger    *zap.Logger
}

// execState is one live execution plus its cancel hook.
type execState struct {
	mu     sync.Mutex
	exec   *domain.PipelineExecution
	cancel context.CancelFunc
}

// Orchestrator coordinates launch pipeline executions.
type Orchestrator struct {
	offers    ads.OfferSource
	products  ads.ProductPlatform
	funnels   ads.FunnelService
	creatives ads.CreativeService
	platform  ads.AdPlatform

	executions storage.ExecutionStore

	platforms     []string
	maxPerKeyword int
	backoff       BackoffPolicy

	publisher Publisher
	logger    *zap.Logger

	mu            sync.Mutex
	live          map[string]*execState // by execution id
	byFingerprint map[string]string     // config fingerprint -> live execution id
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	platforms := opts.Platforms
	if len(platforms) == 0 {
		platforms = []string{"facebook", "instagram"}
	}
	maxPerKeyword := opts.MaxOffersPerKeyword
	if maxPerKeyword <= 0 {
		maxPerKeyword = 10
	}
	backoff := opts.Backoff
	if backoff.MaxAttempts <= 0 {
		backoff = DefaultBackoff()
	}

	return &Orchestrator{
		offers:        opts.Offers,
		products:      opts.Products,
		funnels:       opts.Funnels,
		creatives:     opts.Creatives,
		platform:      opts.Platform,
		executions:    opts.Executions,
		platforms:     platforms,
		maxPerKeyword: maxPerKeyword,
		backoff:       backoff,
		publisher:     opts.Publisher,
		logger:        logger,
		live:          make(map[string]*execState),
		byFingerprint: make(map[string]string),
	}
}

// Start validates the config and launches the pipeline in the background.
// Returns the execution id immediately; progress is observed via Status.
// A second Start for the same config fingerprint while one is live returns
// ErrRunInProgress.
func (o *Orchestrator) Start(ctx context.Context, config domain.AutomationConfig) (string, error) {
	if err := config.Validate(); err != nil {
		return "", err
	}

	fp := config.Fingerprint()

	o.mu.Lock()
	if _, exists := o.byFingerprint[fp]; exists {
		o.mu.Unlock()
		return "", ErrRunInProgress
	}

	// Detached from the caller's context: the run outlives the request
	// that started it and is stopped via Cancel.
	runCtx, cancel := context.WithCancel(context.Background())
	st := &execState{
		exec: &domain.PipelineExecution{
			ID:        uuid.NewString(),
			Config:    config,
			Stage:     domain.StageConfiguring,
			Status:    domain.StatusRunning,
			StartedAt: time.Now().UnixMilli(),
		},
		cancel: cancel,
	}
	o.live[st.exec.ID] = st
	o.byFingerprint[fp] = st.exec.ID
	o.mu.Unlock()

	o.logger.Info("pipeline started",
		zap.String("execution_id", st.exec.ID),
		zap.String("niche", string(config.Niche)),
		zap.Float64("budget", config.Budget))

	go o.run(runCtx, st, fp)

	return st.exec.ID, nil
}

// Status returns a snapshot of the execution, live or historical.
func (o *Orchestrator) Status(ctx context.Context, executionID string) (*domain.PipelineExecution, error) {
	o.mu.Lock()
	st, ok := o.live[executionID]
	o.mu.Unlock()

	if ok {
		st.mu.Lock()
		defer st.mu.Unlock()
		return snapshot(st.exec), nil
	}

	exec, err := o.executions.GetByID(ctx, executionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrExecutionNotFound
		}
		return nil, err
	}
	return exec, nil
}

// History lists terminal executions, newest first.
func (o *Orchestrator) History(ctx context.Context, limit int) ([]*domain.PipelineExecution, error) {
	return o.executions.List(ctx, limit)
}

// Cancel requests cooperative cancellation of a live execution. The run
// stops at its next suspension point; an in-flight collaborator call is not
// interrupted beyond context propagation.
func (o *Orchestrator) Cancel(executionID string) error {
	o.mu.Lock()
	st, ok := o.live[executionID]
	o.mu.Unlock()

	if !ok {
		return ErrExecutionNotFound
	}
	st.cancel()
	return nil
}

// run executes all stages in order for one execution.
func (o *Orchestrator) run(ctx context.Context, st *execState, fp string) {
	defer func() {
		o.mu.Lock()
		delete(o.live, st.exec.ID)
		delete(o.byFingerprint, fp)
		o.mu.Unlock()
	}()

	stages := []struct {
		stage domain.Stage
		fn    func(ctx context.Context, st *execState) error
	}{
		{domain.StageConfiguring, o.stageConfigure},
		{domain.StageScraping, o.stageScrape},
		{domain.StageAnalyzing, o.stageAnalyze},
		{domain.StageCreatingProduct, o.stageCreateProduct},
		{domain.StageCreatingFunnel, o.stageCreateFunnel},
		{domain.StageCreatingCreatives, o.stageCreateCreatives},
		{domain.StageCreatingCampaign, o.stageCreateCampaign},
	}

	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			o.fail(ctx, st, fmt.Errorf("launch cancelled before %s", s.stage))
			return
		}

		o.enterStage(st, s.stage)
		if err := s.fn(ctx, st); err != nil {
			o.fail(ctx, st, fmt.Errorf("%s: %w", s.stage, err))
			return
		}
		o.finishStage(st, s.stage)
	}

	o.complete(ctx, st)
}

// enterStage records the new stage without touching progress; progress only
// moves forward when the stage finishes.
func (o *Orchestrator) enterStage(st *execState, stage domain.Stage) {
	st.mu.Lock()
	st.exec.Stage = stage
	snap := snapshot(st.exec)
	st.mu.Unlock()

	o.publish(snap)
}

func (o *Orchestrator) finishStage(st *execState, stage domain.Stage) {
	st.mu.Lock()
	if pct, ok := progressCeiling[stage]; ok && pct > st.exec.ProgressPct {
		st.exec.ProgressPct = pct
	}
	snap := snapshot(st.exec)
	st.mu.Unlock()

	o.publish(snap)
	o.logger.Debug("stage finished",
		zap.String("execution_id", snap.ID),
		zap.String("stage", string(stage)),
		zap.Int("progress", snap.ProgressPct))
}

func (o *Orchestrator) complete(ctx context.Context, st *execState) {
	st.mu.Lock()
	st.exec.Stage = domain.StageCompleted
	st.exec.Status = domain.StatusCompleted
	st.exec.ProgressPct = progressCeiling[domain.StageCompleted]
	st.exec.EndedAt = time.Now().UnixMilli()
	snap := snapshot(st.exec)
	st.mu.Unlock()

	o.record(ctx, snap)
	o.publish(snap)
	o.logger.Info("pipeline completed",
		zap.String("execution_id", snap.ID),
		zap.String("campaign_id", snap.PartialResults.CampaignID))
}

// fail marks the execution terminal. Partial results computed by earlier
// stages stay on the execution for the caller.
func (o *Orchestrator) fail(ctx context.Context, st *execState, cause error) {
	st.mu.Lock()
	st.exec.Status = domain.StatusFailed
	st.exec.Errors = append(st.exec.Errors, cause.Error())
	st.exec.EndedAt = time.Now().UnixMilli()
	snap := snapshot(st.exec)
	st.mu.Unlock()

	o.record(ctx, snap)
	o.publish(snap)
	o.logger.Warn("pipeline failed",
		zap.String("execution_id", snap.ID),
		zap.String("stage", string(snap.Stage)),
		zap.Error(cause))
}

// record appends a terminal execution to the bounded history log. The run
// context may already be cancelled, so use a detached one.
func (o *Orchestrator) record(ctx context.Context, snap *domain.PipelineExecution) {
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := o.executions.AppendTrimmed(ctx, snap, historyKeep); err != nil {
		o.logger.Error("append execution history", zap.Error(err))
	}
}

func (o *Orchestrator) publish(snap *domain.PipelineExecution) {
	if o.publisher != nil {
		o.publisher.PublishExecution(snap)
	}
}

// snapshot deep-copies an execution for handing outside the lock.
func snapshot(e *domain.PipelineExecution) *domain.PipelineExecution {
	cp := *e
	cp.Errors = append([]string(nil), e.Errors...)
	cp.Config.Keywords = append([]string(nil), e.Config.Keywords...)
	cp.PartialResults.CreativeURLs = append([]string(nil), e.PartialResults.CreativeURLs...)
	if len(e.PartialResults.ScrapedOffers) > 0 {
		offers := make([]*domain.CandidateOffer, len(e.PartialResults.ScrapedOffers))
		for i, o := range e.PartialResults.ScrapedOffers {
			offer := *o
			offers[i] = &offer
		}
		cp.PartialResults.ScrapedOffers = offers
	}
	if e.PartialResults.SelectedOffer != nil {
		offer := *e.PartialResults.SelectedOffer
		cp.PartialResults.SelectedOffer = &offer
	}
	if e.PartialResults.Product != nil {
		product := *e.PartialResults.Product
		cp.PartialResults.Product = &product
	}
	if e.PartialResults.Funnel != nil {
		funnel := *e.PartialResults.Funnel
		cp.PartialResults.Funnel = &funnel
	}
	return &cp
}

// ---- stages ----

// stageConfigure re-validates the config. Validation already ran in Start;
// this keeps the stage ordering explicit and catches configs mutated by
// callers between Start and the goroutine entry.
func (o *Orchestrator) stageConfigure(_ context.Context, st *execState) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.exec.Config.Validate()
}

// stageScrape fans out one offer search per keyword. A single keyword's
// failure degrades to an empty result; only zero usable offers across all
// keywords aborts the stage.
func (o *Orchestrator) stageScrape(ctx context.Context, st *execState) error {
	st.mu.Lock()
	config := st.exec.Config
	st.mu.Unlock()

	filters := ads.SearchFilters{
		MinEngagement: config.ScrapingFilters.MinEngagement,
		MinScore:      config.ScrapingFilters.QualityMin,
	}

	var (
		collectMu sync.Mutex
		collected []*domain.CandidateOffer
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, kw := range config.Keywords {
		g.Go(func() error {
			offers, err := o.offers.Search(gctx, []string{kw}, o.platforms, o.maxPerKeyword, filters)
			if err != nil {
				// Degraded, not fatal: this keyword contributes nothing.
				o.logger.Warn("offer search degraded",
					zap.String("execution_id", st.exec.ID),
					zap.String("keyword", kw),
					zap.Error(err))
				return nil
			}
			collectMu.Lock()
			collected = append(collected, offers...)
			collectMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Deduplicate across keywords.
	seen := make(map[string]bool, len(collected))
	unique := collected[:0]
	for _, offer := range collected {
		if seen[offer.ID] {
			continue
		}
		seen[offer.ID] = true
		unique = append(unique, offer)
	}

	if len(unique) == 0 {
		return errors.New("no offers found for any keyword")
	}

	st.mu.Lock()
	st.exec.PartialResults.ScrapedOffers = unique
	st.mu.Unlock()
	return nil
}

// stageAnalyze filters and ranks the scraped offers, keeping the winner.
func (o *Orchestrator) stageAnalyze(_ context.Context, st *execState) error {
	st.mu.Lock()
	config := st.exec.Config
	offers := st.exec.PartialResults.ScrapedOffers
	st.mu.Unlock()

	maxPrice := config.Budget * 2
	var usable []*domain.CandidateOffer
	for _, offer := range offers {
		if offer.Score < config.ScrapingFilters.QualityMin {
			continue
		}
		if offer.Price < config.ScrapingFilters.PriceMin || offer.Price > maxPrice {
			continue
		}
		usable = append(usable, offer)
	}

	if len(usable) == 0 {
		return fmt.Errorf("all %d scraped offers rejected by quality/price filters", len(offers))
	}

	// Highest score wins; ties go to the earliest scrape.
	sort.SliceStable(usable, func(i, j int) bool {
		if usable[i].Score != usable[j].Score {
			return usable[i].Score > usable[j].Score
		}
		return usable[i].ScrapedAt < usable[j].ScrapedAt
	})

	selected := *usable[0]

	st.mu.Lock()
	st.exec.PartialResults.SelectedOffer = &selected
	st.mu.Unlock()

	o.logger.Info("offer selected",
		zap.String("execution_id", st.exec.ID),
		zap.String("offer_id", selected.ID),
		zap.Float64("score", selected.Score))
	return nil
}

func (o *Orchestrator) stageCreateProduct(ctx context.Context, st *execState) error {
	st.mu.Lock()
	config := st.exec.Config
	offer := st.exec.PartialResults.SelectedOffer
	st.mu.Unlock()

	spec := config.ProductSpec
	if spec.Name == "" {
		spec.Name = offer.Title
	}
	if spec.Price <= 0 {
		spec.Price = offer.Price
	}

	product, err := o.products.CreateProduct(ctx, spec)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}

	st.mu.Lock()
	st.exec.PartialResults.Product = product
	st.mu.Unlock()
	return nil
}

func (o *Orchestrator) stageCreateFunnel(ctx context.Context, st *execState) error {
	st.mu.Lock()
	config := st.exec.Config
	product := st.exec.PartialResults.Product
	st.mu.Unlock()

	funnel, err := o.funnels.CreateFunnel(ctx, product.ID, config.Niche, config.ProductSpec.Audience, product.Price)
	if err != nil {
		return fmt.Errorf("create funnel: %w", err)
	}

	st.mu.Lock()
	st.exec.PartialResults.Funnel = funnel
	st.mu.Unlock()
	return nil
}

func (o *Orchestrator) stageCreateCreatives(ctx context.Context, st *execState) error {
	st.mu.Lock()
	config := st.exec.Config
	offer := st.exec.PartialResults.SelectedOffer
	st.mu.Unlock()

	urls, err := o.creatives.Generate(ctx, ads.CreativeSpec{
		OfferTitle: offer.Title,
		Niche:      config.Niche,
		Audience:   config.ProductSpec.Audience,
		Count:      3,
	})
	if err != nil {
		return fmt.Errorf("generate creatives: %w", err)
	}
	if len(urls) == 0 {
		return errors.New("creative service returned no creatives")
	}

	st.mu.Lock()
	st.exec.PartialResults.CreativeURLs = urls
	st.mu.Unlock()
	return nil
}

// stageCreateCampaign builds campaign → adset → creatives → ads, then polls
// readiness under the backoff policy. One creative's upload failure
// degrades to skipping that creative; zero usable creatives aborts.
func (o *Orchestrator) stageCreateCampaign(ctx context.Context, st *execState) error {
	st.mu.Lock()
	config := st.exec.Config
	offer := st.exec.PartialResults.SelectedOffer
	urls := append([]string(nil), st.exec.PartialResults.CreativeURLs...)
	st.mu.Unlock()

	campaignID, err := o.platform.CreateCampaign(ctx, ads.CampaignSpec{
		Name:      fmt.Sprintf("%s | %s", config.Niche, offer.Title),
		Objective: "CONVERSIONS",
		Niche:     config.Niche,
	})
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}

	adsetID, err := o.platform.CreateAdset(ctx, ads.AdsetSpec{
		CampaignID:  campaignID,
		Name:        offer.Title,
		DailyBudget: config.Budget,
		Audience:    config.ProductSpec.Audience,
	})
	if err != nil {
		return fmt.Errorf("create adset: %w", err)
	}

	adsCreated := 0
	for i, url := range urls {
		imageID, err := o.platform.UploadImage(ctx, url)
		if err != nil {
			o.logger.Warn("creative upload degraded",
				zap.String("execution_id", st.exec.ID),
				zap.String("url", url),
				zap.Error(err))
			continue
		}
		creativeID, err := o.platform.CreateCreative(ctx, adsetID, imageID, offer.Title)
		if err != nil {
			o.logger.Warn("creative creation degraded",
				zap.String("execution_id", st.exec.ID),
				zap.Error(err))
			continue
		}
		if _, err := o.platform.CreateAd(ctx, adsetID, creativeID, fmt.Sprintf("%s #%d", offer.Title, i+1)); err != nil {
			o.logger.Warn("ad creation degraded",
				zap.String("execution_id", st.exec.ID),
				zap.Error(err))
			continue
		}
		adsCreated++
	}
	if adsCreated == 0 {
		return fmt.Errorf("none of %d creatives produced a usable ad", len(urls))
	}

	st.mu.Lock()
	st.exec.PartialResults.CampaignID = campaignID
	st.mu.Unlock()

	o.awaitReadiness(ctx, st.exec.ID, campaignID)
	return nil
}

// awaitReadiness polls the platform until the campaign leaves review or
// attempts run out. Exhaustion is not fatal: the campaign exists, the
// platform just has not activated it yet.
func (o *Orchestrator) awaitReadiness(ctx context.Context, executionID, campaignID string) {
	for attempt := 1; attempt <= o.backoff.MaxAttempts; attempt++ {
		status, err := o.platform.CampaignStatus(ctx, campaignID)
		if err == nil && status != "IN_REVIEW" {
			return
		}

		if attempt == o.backoff.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(o.backoff.Delay):
		}
	}
	o.logger.Warn("campaign still in review after readiness poll",
		zap.String("execution_id", executionID),
		zap.String("campaign_id", campaignID),
		zap.Int("attempts", o.backoff.MaxAttempts))
}
