// Package scorer implements relevance scoring for discovered tender records.
package scorer

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-scout/internal/model"
)

// DefaultScoringConfig returns the hand-tuned default weights and thresholds.
// The values are reproducible, not derived; deployments override them per
// profile rather than editing code.
func DefaultScoringConfig() model.ScoringConfig {
	return model.ScoringConfig{
		RegionBonus:         40,
		PriorityRegionBonus: 10,
		NoMatchPenalty:      -20,

		KeywordGroups: []model.KeywordGroup{
			{
				Name:  "management consulting",
				Terms: []string{"management consulting", "organizational development", "institutional strengthening"},
				Bonus: 15,
			},
			{
				Name:  "capacity building",
				Terms: []string{"capacity building", "training", "technical assistance"},
				Bonus: 10,
			},
			{
				Name:  "consulting",
				Terms: []string{"consulting", "consultancy", "advisory"},
				Bonus: 5,
			},
		},

		HighThreshold:   70,
		MediumThreshold: 50,
		LowThreshold:    30,
	}
}

// ValidateConfig checks that a ScoringConfig is internally consistent.
func ValidateConfig(c model.ScoringConfig) error {
	var errs []string

	if c.RegionBonus < 0 {
		errs = append(errs, "region_bonus must be >= 0")
	}
	if c.PriorityRegionBonus < 0 {
		errs = append(errs, "priority_region_bonus must be >= 0")
	}
	if c.NoMatchPenalty > 0 {
		errs = append(errs, "no_match_penalty must be <= 0")
	}

	for _, g := range c.KeywordGroups {
		if g.Name == "" {
			errs = append(errs, "keyword group missing name")
		}
		if len(g.Terms) == 0 {
			errs = append(errs, fmt.Sprintf("keyword group %q has no terms", g.Name))
		}
		if g.Bonus < 0 {
			errs = append(errs, fmt.Sprintf("keyword group %q bonus must be >= 0", g.Name))
		}
	}

	// Thresholds must be ordered and within the score range.
	if c.HighThreshold < c.MediumThreshold || c.MediumThreshold < c.LowThreshold {
		errs = append(errs, "thresholds must satisfy high >= medium >= low")
	}
	if c.LowThreshold < 0 || c.HighThreshold > 100 {
		errs = append(errs, "thresholds must be within [0, 100]")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
