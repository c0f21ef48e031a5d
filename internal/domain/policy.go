package domain

import "fmt"

// AutoApplyFlags select which action kinds the autopilot may execute without
// human approval. CreativeSwap is advisory-only in practice: the engine
// always queues it as a suggestion.
type AutoApplyFlags struct {
	Pause        bool
	ScaleBudget  bool
	CreativeSwap bool
}

// ThresholdPolicy is the configurable set of numeric limits driving the
// autopilot's rule evaluation.
type ThresholdPolicy struct {
	ROASMin        float64
	ROASTarget     float64
	CTRMin         float64 // percent
	DailySpendCap  float64
	AutoApply      AutoApplyFlags
	CadenceMinutes int
}

// Validate checks the policy before it is stored.
func (p *ThresholdPolicy) Validate() error {
	if p.ROASMin <= 0 || p.ROASTarget <= p.ROASMin {
		return fmt.Errorf("%w: ROAS target must exceed ROAS minimum, both positive", ErrValidation)
	}
	if p.CTRMin < 0 {
		return fmt.Errorf("%w: CTR minimum cannot be negative", ErrValidation)
	}
	if p.DailySpendCap <= 0 {
		return fmt.Errorf("%w: daily spend cap must be positive", ErrValidation)
	}
	if p.CadenceMinutes <= 0 {
		return fmt.Errorf("%w: cadence must be positive", ErrValidation)
	}
	return nil
}

// DefaultPolicy returns the stock threshold policy.
func DefaultPolicy() ThresholdPolicy {
	return ThresholdPolicy{
		ROASMin:        1.5,
		ROASTarget:     3.0,
		CTRMin:         1.0,
		DailySpendCap:  500,
		AutoApply:      AutoApplyFlags{Pause: true, ScaleBudget: true},
		CadenceMinutes: 60,
	}
}
