// Package normalizer converts heterogeneous raw insight payloads into
// canonical campaign records. All "guess the shape" logic for loosely-typed
// platform payloads lives here; everything downstream sees one type.
package normalizer

import (
	"strconv"
	"strings"

	"adpilot/internal/domain"
)

// purchaseAliases is the prioritized list of purchase-equivalent action
// types. First match wins; platform-qualified purchase rows come first
// because itemized payloads carry both qualified and bare rows and the
// qualified ones hold the value.
var purchaseAliases = []string{
	"omni_purchase",
	"offsite_conversion.fb_pixel_purchase",
	"purchase",
	"lead",
	"complete_registration",
}

// Normalize converts one raw insight payload into a canonical record.
// Pure and deterministic: missing fields default to zero, spend of zero
// yields ROAS of zero, and normalizing is idempotent — a payload rebuilt
// from a canonical record maps back to the same record.
func Normalize(raw *domain.RawInsights) domain.CampaignRecord {
	rec := domain.CampaignRecord{
		ID:     raw.CampaignID,
		Name:   raw.CampaignName,
		Active: strings.EqualFold(raw.Status, "ACTIVE"),
	}

	if len(raw.Adsets) > 0 {
		// Parent budget is the sum of child adset budgets regardless of
		// the parent's own stated budget field; spend and traffic roll up
		// from children when itemized.
		for _, as := range raw.Adsets {
			rec.Budget += parseFloat(as.DailyBudget)
			rec.Spend += parseFloat(as.Spend)
			rec.Clicks += parseInt(as.Clicks)
			rec.Impressions += parseInt(as.Impressions)
			conv, rev := extractConversions(as.Actions, as.ActionValues)
			rec.Conversions += conv
			rec.Revenue += rev
		}
	} else {
		rec.Budget = parseFloat(raw.DailyBudget)
		rec.Spend = parseFloat(raw.Spend)
		rec.Clicks = parseInt(raw.Clicks)
		rec.Impressions = parseInt(raw.Impressions)
		rec.Conversions, rec.Revenue = extractConversions(raw.Actions, raw.ActionValues)
	}

	if rec.Spend > 0 {
		rec.ROAS = rec.Revenue / rec.Spend
	}
	if rec.Impressions > 0 {
		rec.CTR = float64(rec.Clicks) / float64(rec.Impressions) * 100
	}
	return rec
}

// extractConversions resolves conversion count and revenue from itemized
// action lists. Counts come from actions, revenue from actionValues, each
// matched independently against the alias priority list. Payloads that
// itemize only actions carry revenue in the action value itself.
func extractConversions(actions, actionValues []domain.ConversionAction) (int64, float64) {
	matched, ok := firstMatch(actions)
	revenue, revOK := firstMatch(actionValues)

	switch {
	case ok && revOK:
		return int64(parseFloat(matched)), parseFloat(revenue)
	case ok:
		return int64(parseFloat(matched)), parseFloat(matched)
	case revOK:
		return 0, parseFloat(revenue)
	default:
		return 0, 0
	}
}

// firstMatch returns the value of the highest-priority alias present.
func firstMatch(actions []domain.ConversionAction) (string, bool) {
	for _, alias := range purchaseAliases {
		for _, a := range actions {
			if a.Type == alias {
				return a.Value, true
			}
		}
	}
	return "", false
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		// Some platforms send integer fields as floats.
		return int64(parseFloat(s))
	}
	return v
}
