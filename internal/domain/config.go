// Package domain contains the core types shared across the launch pipeline
// and the autopilot: automation configs, pipeline executions, canonical
// campaign records, threshold policies, actions and suggestions.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// MinBudget is the minimum budget (currency-agnostic units) required to
// start a launch pipeline.
const MinBudget = 100.0

// ErrValidation indicates bad input caught before any stage or cycle starts.
var ErrValidation = errors.New("validation error")

// Niche identifies the vertical a campaign targets.
type Niche string

const (
	NicheWhite Niche = "WHITE"
	NicheGrey  Niche = "GREY"
	NicheBlack Niche = "BLACK"
)

// RiskTier controls how aggressively the automation behaves.
type RiskTier string

const (
	RiskConservative RiskTier = "CONSERVATIVE"
	RiskModerate     RiskTier = "MODERATE"
	RiskAggressive   RiskTier = "AGGRESSIVE"
)

// ScrapingFilters bound which scraped offers are usable.
type ScrapingFilters struct {
	QualityMin    float64 // minimum offer score (0-100)
	PriceMin      float64 // minimum offer price
	MinEngagement int     // minimum raw engagement on the source ad
}

// ProductSpec describes the product to create on the product platform.
type ProductSpec struct {
	Name        string
	Description string
	Price       float64
	Audience    string
}

// AutomationConfig is the immutable per-run configuration for one launch.
type AutomationConfig struct {
	Budget          float64 // daily budget
	Niche           Niche
	RiskTier        RiskTier
	Keywords        []string
	ScrapingFilters ScrapingFilters
	ProductSpec     ProductSpec
}

// Validate checks the config before any stage runs.
func (c *AutomationConfig) Validate() error {
	if c.Budget < MinBudget {
		return fmt.Errorf("%w: minimum budget is %.0f", ErrValidation, MinBudget)
	}
	if c.Niche == "" {
		return fmt.Errorf("%w: niche is required", ErrValidation)
	}
	if len(c.Keywords) == 0 {
		return fmt.Errorf("%w: at least one keyword is required", ErrValidation)
	}
	for _, kw := range c.Keywords {
		if strings.TrimSpace(kw) == "" {
			return fmt.Errorf("%w: empty keyword", ErrValidation)
		}
	}
	return nil
}

// Fingerprint returns a stable identity for serializing concurrent runs of
// the same config. Two configs with the same budget, niche and keywords are
// considered the same run target.
func (c *AutomationConfig) Fingerprint() string {
	return fmt.Sprintf("%s|%.2f|%s", c.Niche, c.Budget, strings.Join(c.Keywords, ","))
}
