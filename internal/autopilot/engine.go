package autopilot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"adpilot/internal/ads"
	"adpilot/internal/domain"
	"adpilot/internal/idhash"
	"adpilot/internal/normalizer"
	"adpilot/internal/observability"
	"adpilot/internal/storage"
)

// suggestionKeep bounds the persisted suggestion log.
const suggestionKeep = 50

// scaleFactor is the budget multiplier for scale-up actions.
const scaleFactor = 1.2

// insightCampaignID is the sentinel campaign id carried by account-level
// narrative suggestions from the insight generator.
const insightCampaignID = "account"

// ErrCycleInProgress is returned when a tick fires while the previous
// evaluation cycle is still running. The tick is skipped, not queued.
var ErrCycleInProgress = errors.New("evaluation cycle already in progress")

// ErrAlreadyApplied is returned when a suggestion is applied a second time.
var ErrAlreadyApplied = errors.New("suggestion already applied")

// Publisher receives actions and suggestions as the engine produces them.
// Implemented by the events hub; nil disables publishing.
type Publisher interface {
	PublishAction(a *domain.Action)
	PublishSuggestion(s *domain.Suggestion)
}

// CycleReport summarizes one evaluation cycle.
type CycleReport struct {
	CycleAt   int64
	Evaluated int
	Executed  []*domain.Action
	Suggested []*domain.Suggestion
}

// Options for creating an Engine.
type Options struct {
	Platform ads.AdPlatform
	// Insights enriches cycles with narrative recommendations. Optional;
	// failures are swallowed.
	Insights ads.InsightGenerator
	Executor *Executor

	Actions     storage.ActionStore
	Suggestions storage.SuggestionStore
	// Snapshots receives every evaluated record for the reporting surfaces.
	// Optional; write failures are logged, not fatal.
	Snapshots storage.SnapshotStore
	Policies  storage.PolicyStore

	Publisher Publisher
	Logger    *zap.Logger
}

// Engine runs periodic evaluation cycles over all live campaigns, applying
// the threshold policy's rules in fixed order.
type Engine struct {
	platform    ads.AdPlatform
	insights    ads.InsightGenerator
	executor    *Executor
	actions     storage.ActionStore
	suggestions storage.SuggestionStore
	snapshots   storage.SnapshotStore
	policies    storage.PolicyStore
	publisher   Publisher
	logger      *zap.Logger

	// mu serializes cycles against manual suggestion handling so both see
	// consistent open-item state.
	mu sync.Mutex

	// flightMu guards the single-flight tick skip.
	flightMu sync.Mutex
	inFlight bool
}

// New creates an Engine.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		platform:    opts.Platform,
		insights:    opts.Insights,
		executor:    opts.Executor,
		actions:     opts.Actions,
		suggestions: opts.Suggestions,
		snapshots:   opts.Snapshots,
		policies:    opts.Policies,
		publisher:   opts.Publisher,
		logger:      logger,
	}
}

// Run evaluates immediately, then on every cadence tick until ctx ends.
// Cadence is re-read from the active policy each round so policy updates
// take effect without a restart.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if _, err := e.RunCycle(ctx); err != nil {
			if errors.Is(err, ErrCycleInProgress) {
				observability.RecordCycleSkipped()
			} else {
				e.logger.Error("evaluation cycle", zap.Error(err))
			}
		}

		policy := e.activePolicy(ctx)
		cadence := time.Duration(policy.CadenceMinutes) * time.Minute
		if cadence <= 0 {
			cadence = time.Minute
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cadence):
		}
	}
}

// RunCycle executes one evaluation cycle. If a cycle is already running the
// call returns ErrCycleInProgress without waiting.
func (e *Engine) RunCycle(ctx context.Context) (*CycleReport, error) {
	e.flightMu.Lock()
	if e.inFlight {
		e.flightMu.Unlock()
		return nil, ErrCycleInProgress
	}
	e.inFlight = true
	e.flightMu.Unlock()

	defer func() {
		e.flightMu.Lock()
		e.inFlight = false
		e.flightMu.Unlock()
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()
	report := &CycleReport{CycleAt: started.UnixMilli()}

	policy := e.activePolicy(ctx)

	ids, err := e.platform.ListCampaignIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}

	records := make([]*domain.CampaignRecord, 0, len(ids))
	for _, id := range ids {
		raw, err := e.platform.FetchInsights(ctx, id)
		if err != nil {
			// One campaign's bad payload never aborts the cycle.
			e.logger.Warn("fetch insights", zap.String("campaign_id", id), zap.Error(err))
			continue
		}
		rec := normalizer.Normalize(raw)
		records = append(records, &rec)
	}

	if e.snapshots != nil && len(records) > 0 {
		if err := e.snapshots.InsertBulk(ctx, report.CycleAt, records); err != nil {
			e.logger.Error("write cycle snapshots", zap.Error(err))
		}
	}

	for _, rec := range records {
		if !rec.Active {
			continue
		}
		report.Evaluated++
		e.evaluate(ctx, policy, rec, report)
	}

	e.enrich(ctx, records, report)

	observability.RecordCycle(report.Evaluated, time.Since(started).Seconds())
	observability.DefaultMetrics.LastSuccessfulCycle.Set(float64(time.Now().Unix()))

	e.logger.Info("evaluation cycle finished",
		zap.Int("campaigns", len(records)),
		zap.Int("evaluated", report.Evaluated),
		zap.Int("executed", len(report.Executed)),
		zap.Int("suggested", len(report.Suggested)))
	return report, nil
}

// evaluate applies the three rules, in order, to one active campaign.
// Rules that no longer trip resolve any open action slot for their kind so
// the campaign can be acted on again if the metric regresses later.
func (e *Engine) evaluate(ctx context.Context, policy domain.ThresholdPolicy, rec *domain.CampaignRecord, report *CycleReport) {
	// Rule 1: any active campaign under the ROAS minimum gets paused. Zero
	// spend normalizes to ROAS zero and trips the rule too.
	if rec.ROAS < policy.ROASMin {
		deviation := (policy.ROASMin - rec.ROAS) / policy.ROASMin
		pending := domain.PendingAction{
			Kind:       domain.ActionPause,
			CampaignID: rec.ID,
			Before:     "ACTIVE",
			After:      "PAUSED",
			Reason:     fmt.Sprintf("ROAS %.2f below minimum %.2f", rec.ROAS, policy.ROASMin),
		}
		impact := fmt.Sprintf("stop ~%.2f/day of unprofitable spend", rec.Spend)
		e.emit(ctx, policy.AutoApply.Pause, pending, deviation, impact, report)
	} else {
		e.resolveOpen(ctx, rec.ID, domain.ActionPause)
	}

	// Rule 2: winners under the spend cap get scaled.
	if rec.Spend > 0 && rec.ROAS > policy.ROASTarget && rec.Spend < policy.DailySpendCap {
		after := rec.Spend * scaleFactor
		if after > policy.DailySpendCap {
			after = policy.DailySpendCap
		}
		deviation := (rec.ROAS - policy.ROASTarget) / policy.ROASTarget
		pending := domain.PendingAction{
			Kind:       domain.ActionScaleBudget,
			CampaignID: rec.ID,
			Before:     fmt.Sprintf("%.2f", rec.Budget),
			After:      fmt.Sprintf("%.2f", after),
			Reason:     fmt.Sprintf("ROAS %.2f above target %.2f with spend %.2f under cap %.2f", rec.ROAS, policy.ROASTarget, rec.Spend, policy.DailySpendCap),
		}
		impact := fmt.Sprintf("raise daily budget to %.2f", after)
		e.emit(ctx, policy.AutoApply.ScaleBudget, pending, deviation, impact, report)
	} else {
		e.resolveOpen(ctx, rec.ID, domain.ActionScaleBudget)
	}

	// Rule 3: weak click-through is advisory only, always a suggestion.
	if rec.CTR < policy.CTRMin {
		deviation := (policy.CTRMin - rec.CTR) / policy.CTRMin
		e.queueSuggestion(ctx, &domain.Suggestion{
			Kind:            domain.ActionCreativeSwap,
			Priority:        domain.PriorityFromDeviation(deviation),
			CampaignID:      rec.ID,
			Rationale:       fmt.Sprintf("CTR %.2f%% below minimum %.2f%%", rec.CTR, policy.CTRMin),
			EstimatedImpact: "refresh creatives to recover click-through",
		}, report)
	}
}

// emit routes one rule hit: execute when the policy auto-applies the kind,
// otherwise queue a suggestion. Open items for the pair suppress duplicates.
func (e *Engine) emit(ctx context.Context, autoApply bool, pending domain.PendingAction, deviation float64, impact string, report *CycleReport) {
	if !autoApply {
		e.queueSuggestion(ctx, &domain.Suggestion{
			Kind:            pending.Kind,
			Priority:        domain.PriorityFromDeviation(deviation),
			CampaignID:      pending.CampaignID,
			Rationale:       pending.Reason,
			EstimatedImpact: impact,
		}, report)
		return
	}

	_, err := e.actions.OpenByCampaignKind(ctx, pending.CampaignID, pending.Kind)
	if err == nil {
		// Still open from a previous cycle; the rule keeps tripping on the
		// same condition, not a new one.
		return
	}
	if !errors.Is(err, storage.ErrNotFound) {
		e.logger.Error("dedup lookup", zap.String("campaign_id", pending.CampaignID), zap.Error(err))
		return
	}

	// An open suggestion occupies the same (campaign, kind) slot. The policy
	// now auto-applies this kind, so the suggestion is consumed into the
	// action instead of being left open beside it.
	if open, err := e.suggestions.OpenByCampaignKind(ctx, pending.CampaignID, pending.Kind); err == nil {
		if err := e.suggestions.MarkApplied(ctx, open.ID); err != nil {
			e.logger.Error("consume open suggestion", zap.String("suggestion_id", open.ID), zap.Error(err))
			return
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		e.logger.Error("dedup lookup", zap.String("campaign_id", pending.CampaignID), zap.Error(err))
		return
	}

	act := e.executor.Execute(ctx, pending)
	report.Executed = append(report.Executed, act)
	if e.publisher != nil {
		e.publisher.PublishAction(act)
	}
}

// queueSuggestion inserts a suggestion unless the (campaign, kind) pair
// already has an open suggestion or an unresolved action.
func (e *Engine) queueSuggestion(ctx context.Context, s *domain.Suggestion, report *CycleReport) {
	_, err := e.suggestions.OpenByCampaignKind(ctx, s.CampaignID, s.Kind)
	if err == nil {
		return
	}
	if !errors.Is(err, storage.ErrNotFound) {
		e.logger.Error("dedup lookup", zap.String("campaign_id", s.CampaignID), zap.Error(err))
		return
	}

	// An unresolved action occupies the slot too: the change it recorded is
	// still in effect, so suggesting the same change again is noise.
	if _, err := e.actions.OpenByCampaignKind(ctx, s.CampaignID, s.Kind); err == nil {
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		e.logger.Error("dedup lookup", zap.String("campaign_id", s.CampaignID), zap.Error(err))
		return
	}

	s.CreatedAt = time.Now().UnixMilli()
	s.ID = idhash.SuggestionID(s.CampaignID, s.Kind, s.CreatedAt)

	if err := e.suggestions.InsertTrimmed(ctx, s, suggestionKeep); err != nil {
		e.logger.Error("record suggestion", zap.String("suggestion_id", s.ID), zap.Error(err))
		return
	}

	observability.RecordSuggestionCreated(string(s.Kind))
	report.Suggested = append(report.Suggested, s)
	if e.publisher != nil {
		e.publisher.PublishSuggestion(s)
	}
	e.logger.Info("suggestion queued",
		zap.String("suggestion_id", s.ID),
		zap.String("kind", string(s.Kind)),
		zap.String("campaign_id", s.CampaignID),
		zap.String("priority", string(s.Priority)))
}

// resolveOpen frees the dedup slot for a (campaign, kind) pair once its rule
// stops tripping.
func (e *Engine) resolveOpen(ctx context.Context, campaignID string, kind domain.ActionKind) {
	if err := e.actions.ResolveOpen(ctx, campaignID, kind); err != nil {
		e.logger.Error("resolve action slot", zap.String("campaign_id", campaignID), zap.Error(err))
	}
}

// enrich asks the insight generator for account-level recommendations.
// Strictly best-effort: any failure is logged at debug and the cycle result
// stands. At most one narrative suggestion is open at a time.
func (e *Engine) enrich(ctx context.Context, records []*domain.CampaignRecord, report *CycleReport) {
	if e.insights == nil || len(records) == 0 {
		return
	}

	recommendations, err := e.insights.Recommend(ctx, records)
	if err != nil {
		e.logger.Debug("insight generator unavailable", zap.Error(err))
		return
	}
	if len(recommendations) == 0 {
		return
	}

	top := recommendations[0]
	priority := domain.PriorityLow
	if top.Impact == "high" {
		priority = domain.PriorityMedium
	}

	e.queueSuggestion(ctx, &domain.Suggestion{
		Kind:            domain.ActionCreativeSwap,
		Priority:        priority,
		CampaignID:      insightCampaignID,
		Rationale:       fmt.Sprintf("%s: %s", top.Title, top.Detail),
		EstimatedImpact: top.Impact,
	}, report)
}

// ApplySuggestion executes an open suggestion as a manual action and marks
// it applied. Re-applying returns ErrAlreadyApplied without touching the
// platform; an unknown id returns storage.ErrNotFound.
func (e *Engine) ApplySuggestion(ctx context.Context, suggestionID string) (*domain.Action, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.suggestions.GetByID(ctx, suggestionID)
	if err != nil {
		return nil, err
	}
	if s.Applied {
		return nil, ErrAlreadyApplied
	}

	// An unresolved action for the pair means the change is already in
	// effect. Marking the suggestion applied without re-touching the
	// platform keeps at most one open item per (campaign, kind).
	if open, err := e.actions.OpenByCampaignKind(ctx, s.CampaignID, s.Kind); err == nil {
		if err := e.suggestions.MarkApplied(ctx, suggestionID); err != nil {
			return nil, fmt.Errorf("mark suggestion applied: %w", err)
		}
		return open, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("dedup lookup for %s: %w", s.CampaignID, err)
	}

	pending := domain.PendingAction{
		Kind:       s.Kind,
		CampaignID: s.CampaignID,
		Reason:     s.Rationale,
		Manual:     true,
	}

	switch s.Kind {
	case domain.ActionPause:
		pending.Before = "ACTIVE"
		pending.After = "PAUSED"

	case domain.ActionScaleBudget:
		// Recompute from fresh insights: the numbers behind the suggestion
		// may be a full cadence old by approval time.
		raw, err := e.platform.FetchInsights(ctx, s.CampaignID)
		if err != nil {
			return nil, fmt.Errorf("fetch insights for %s: %w", s.CampaignID, err)
		}
		rec := normalizer.Normalize(raw)
		policy := e.activePolicy(ctx)
		after := rec.Spend * scaleFactor
		if after > policy.DailySpendCap {
			after = policy.DailySpendCap
		}
		pending.Before = fmt.Sprintf("%.2f", rec.Budget)
		pending.After = fmt.Sprintf("%.2f", after)
	}

	act := e.executor.Execute(ctx, pending)

	if err := e.suggestions.MarkApplied(ctx, suggestionID); err != nil {
		return nil, fmt.Errorf("mark suggestion applied: %w", err)
	}

	if e.publisher != nil {
		e.publisher.PublishAction(act)
	}
	return act, nil
}

// RejectSuggestion removes an open suggestion without acting on it.
func (e *Engine) RejectSuggestion(ctx context.Context, suggestionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.suggestions.Delete(ctx, suggestionID)
}

// OpenSuggestions lists all unapplied suggestions, newest first.
func (e *Engine) OpenSuggestions(ctx context.Context) ([]*domain.Suggestion, error) {
	return e.suggestions.ListOpen(ctx)
}

// RecentActions lists up to limit recorded actions, newest first.
func (e *Engine) RecentActions(ctx context.Context, limit int) ([]*domain.Action, error) {
	return e.actions.List(ctx, limit)
}

// Policy returns the active threshold policy.
func (e *Engine) Policy(ctx context.Context) domain.ThresholdPolicy {
	return e.activePolicy(ctx)
}

// SetPolicy validates and stores a new threshold policy. It takes effect on
// the next cycle.
func (e *Engine) SetPolicy(ctx context.Context, p domain.ThresholdPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return e.policies.Put(ctx, &p)
}

// activePolicy reads the stored policy, falling back to defaults before the
// first Put or on store failure.
func (e *Engine) activePolicy(ctx context.Context) domain.ThresholdPolicy {
	p, err := e.policies.Get(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			e.logger.Error("read policy", zap.Error(err))
		}
		return domain.DefaultPolicy()
	}
	return *p
}
