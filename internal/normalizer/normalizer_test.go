package normalizer

import (
	"fmt"
	"testing"

	"adpilot/internal/domain"
)

func TestNormalize_PurchaseRevenue(t *testing.T) {
	raw := &domain.RawInsights{
		CampaignID: "camp1",
		Status:     "ACTIVE",
		Spend:      "500",
		Actions: []domain.ConversionAction{
			{Type: "purchase", Value: "1000"},
		},
	}

	rec := Normalize(raw)

	if rec.Revenue != 1000 {
		t.Errorf("Revenue mismatch: got %f, want 1000", rec.Revenue)
	}
	if rec.Spend != 500 {
		t.Errorf("Spend mismatch: got %f, want 500", rec.Spend)
	}
	if rec.ROAS != 2.0 {
		t.Errorf("ROAS mismatch: got %f, want 2.0", rec.ROAS)
	}
	if !rec.Active {
		t.Error("expected Active=true")
	}
}

func TestNormalize_ZeroSpendZeroROAS(t *testing.T) {
	raw := &domain.RawInsights{
		CampaignID: "camp1",
		Spend:      "0",
		ActionValues: []domain.ConversionAction{
			{Type: "purchase", Value: "9999"},
		},
	}

	rec := Normalize(raw)

	if rec.ROAS != 0 {
		t.Errorf("ROAS must be 0 when spend is 0, got %f", rec.ROAS)
	}
	if rec.Revenue != 9999 {
		t.Errorf("Revenue mismatch: got %f", rec.Revenue)
	}
}

func TestNormalize_AliasPriority(t *testing.T) {
	// omni_purchase outranks the bare purchase and lead rows.
	raw := &domain.RawInsights{
		CampaignID: "camp1",
		Spend:      "100",
		Actions: []domain.ConversionAction{
			{Type: "lead", Value: "7"},
			{Type: "purchase", Value: "3"},
			{Type: "omni_purchase", Value: "5"},
		},
		ActionValues: []domain.ConversionAction{
			{Type: "purchase", Value: "300"},
			{Type: "omni_purchase", Value: "480"},
		},
	}

	rec := Normalize(raw)

	if rec.Conversions != 5 {
		t.Errorf("Conversions mismatch: got %d, want 5", rec.Conversions)
	}
	if rec.Revenue != 480 {
		t.Errorf("Revenue mismatch: got %f, want 480", rec.Revenue)
	}
}

func TestNormalize_UnmatchedActionsYieldZero(t *testing.T) {
	raw := &domain.RawInsights{
		CampaignID: "camp1",
		Spend:      "100",
		Actions: []domain.ConversionAction{
			{Type: "link_click", Value: "250"},
			{Type: "video_view", Value: "900"},
		},
	}

	rec := Normalize(raw)

	if rec.Conversions != 0 || rec.Revenue != 0 {
		t.Errorf("unmatched actions must yield zeros, got conv=%d rev=%f", rec.Conversions, rec.Revenue)
	}
}

func TestNormalize_AdsetBudgetRollup(t *testing.T) {
	// Parent's stated budget is ignored when adsets are itemized.
	raw := &domain.RawInsights{
		CampaignID:  "camp1",
		Status:      "ACTIVE",
		DailyBudget: "9999",
		Adsets: []domain.RawAdsetInsights{
			{
				ID:          "as1",
				DailyBudget: "100",
				Spend:       "80",
				Clicks:      "40",
				Impressions: "2000",
				Actions:     []domain.ConversionAction{{Type: "purchase", Value: "2"}},
				ActionValues: []domain.ConversionAction{
					{Type: "purchase", Value: "160"},
				},
			},
			{
				ID:          "as2",
				DailyBudget: "150",
				Spend:       "120",
				Clicks:      "10",
				Impressions: "3000",
			},
		},
	}

	rec := Normalize(raw)

	if rec.Budget != 250 {
		t.Errorf("Budget must sum child adsets: got %f, want 250", rec.Budget)
	}
	if rec.Spend != 200 {
		t.Errorf("Spend rollup mismatch: got %f, want 200", rec.Spend)
	}
	if rec.Conversions != 2 {
		t.Errorf("Conversions rollup mismatch: got %d, want 2", rec.Conversions)
	}
	if rec.Revenue != 160 {
		t.Errorf("Revenue rollup mismatch: got %f, want 160", rec.Revenue)
	}
	if rec.CTR != 1.0 {
		t.Errorf("CTR mismatch: got %f, want 1.0", rec.CTR)
	}
}

func TestNormalize_MissingFieldsDefaultToZero(t *testing.T) {
	rec := Normalize(&domain.RawInsights{CampaignID: "camp1"})

	if rec.Spend != 0 || rec.Revenue != 0 || rec.ROAS != 0 || rec.CTR != 0 {
		t.Errorf("empty payload must normalize to zeros, got %+v", rec)
	}
	if rec.Active {
		t.Error("missing status must not be active")
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	raw := &domain.RawInsights{
		CampaignID:  "camp1",
		Status:      "ACTIVE",
		DailyBudget: "250",
		Spend:       "200",
		Clicks:      "50",
		Impressions: "5000",
		Actions:     []domain.ConversionAction{{Type: "purchase", Value: "4"}},
		ActionValues: []domain.ConversionAction{
			{Type: "purchase", Value: "600"},
		},
	}

	once := Normalize(raw)
	twice := Normalize(rawFromRecord(once))

	if once != twice {
		t.Errorf("normalization is not idempotent:\n once=%+v\ntwice=%+v", once, twice)
	}
}

// rawFromRecord rebuilds a payload from a canonical record, the shape a
// record would take if it came back from the platform unchanged.
func rawFromRecord(rec domain.CampaignRecord) *domain.RawInsights {
	status := "PAUSED"
	if rec.Active {
		status = "ACTIVE"
	}
	return &domain.RawInsights{
		CampaignID:   rec.ID,
		CampaignName: rec.Name,
		Status:       status,
		DailyBudget:  fmt.Sprintf("%g", rec.Budget),
		Spend:        fmt.Sprintf("%g", rec.Spend),
		Clicks:       fmt.Sprintf("%d", rec.Clicks),
		Impressions:  fmt.Sprintf("%d", rec.Impressions),
		Actions:      []domain.ConversionAction{{Type: "purchase", Value: fmt.Sprintf("%d", rec.Conversions)}},
		ActionValues: []domain.ConversionAction{
			{Type: "purchase", Value: fmt.Sprintf("%g", rec.Revenue)},
		},
	}
}
