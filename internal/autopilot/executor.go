// Package autopilot evaluates live campaigns against a threshold policy and
// either applies corrective actions or queues suggestions for approval.
package autopilot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"adpilot/internal/ads"
	"adpilot/internal/domain"
	"adpilot/internal/idhash"
	"adpilot/internal/observability"
	"adpilot/internal/storage"
)

// actionKeep bounds the persisted action log.
const actionKeep = 50

// Executor applies one pending action against the ad platform and records
// the outcome. A collaborator failure is recorded as Success=false on the
// action, never returned as an error to the evaluation cycle.
type Executor struct {
	platform ads.AdPlatform
	actions  storage.ActionStore
	logger   *zap.Logger
}

// NewExecutor creates an Executor. A nil logger falls back to a nop logger.
func NewExecutor(platform ads.AdPlatform, actions storage.ActionStore, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{platform: platform, actions: actions, logger: logger}
}

// Execute applies the pending action and records the outcome. The returned
// action is the recorded row, success or not.
func (e *Executor) Execute(ctx context.Context, p domain.PendingAction) *domain.Action {
	now := time.Now().UnixMilli()
	act := &domain.Action{
		ID:         idhash.ActionID(p.CampaignID, p.Kind, now),
		Kind:       p.Kind,
		CampaignID: p.CampaignID,
		Before:     p.Before,
		After:      p.After,
		ExecutedAt: now,
		Reason:     p.Reason,
		Manual:     p.Manual,
	}

	if err := e.apply(ctx, p); err != nil {
		act.Success = false
		act.Reason = fmt.Sprintf("%s (failed: %v)", p.Reason, err)
		e.logger.Warn("action failed",
			zap.String("kind", string(p.Kind)),
			zap.String("campaign_id", p.CampaignID),
			zap.Error(err))
	} else {
		act.Success = true
		e.logger.Info("action applied",
			zap.String("kind", string(p.Kind)),
			zap.String("campaign_id", p.CampaignID),
			zap.String("after", p.After),
			zap.Bool("manual", p.Manual))
	}

	observability.RecordActionExecuted(string(act.Kind), act.Success)

	if err := e.actions.InsertTrimmed(ctx, act, actionKeep); err != nil {
		e.logger.Error("record action", zap.String("action_id", act.ID), zap.Error(err))
	}
	return act
}

func (e *Executor) apply(ctx context.Context, p domain.PendingAction) error {
	switch p.Kind {
	case domain.ActionPause:
		return e.platform.PauseCampaign(ctx, p.CampaignID)

	case domain.ActionScaleBudget:
		amount, err := strconv.ParseFloat(p.After, 64)
		if err != nil {
			return fmt.Errorf("bad target budget %q: %w", p.After, err)
		}
		result, err := e.platform.SetBudget(ctx, p.CampaignID, amount)
		if err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("platform rejected budget change: %s", result.Error)
		}
		return nil

	case domain.ActionCreativeSwap:
		// The swap itself happens in the creative tooling; applying the
		// action records the human's decision.
		return nil

	default:
		return fmt.Errorf("unknown action kind %q", p.Kind)
	}
}
