package scorer

import (
	"strings"

	"github.com/sells-group/tender-scout/internal/model"
)

// Score maps a normalized record and a scoring config to a relevance score in
// [0, 100] and a priority bucket. It is a pure function: identical inputs
// always yield identical outputs.
func Score(rec model.TenderRecord, cfg model.ScoringConfig) (int, model.Priority) {
	text := searchText(rec)

	score := 0
	score += regionScore(text, cfg)
	score += keywordScore(text, cfg)

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return score, priorityFor(score, cfg)
}

// Apply scores a record in place, filling RelevanceScore and PriorityLevel.
func Apply(rec *model.TenderRecord, cfg model.ScoringConfig) {
	rec.RelevanceScore, rec.PriorityLevel = Score(*rec, cfg)
}

// searchText concatenates the fields relevance matching runs over.
func searchText(rec model.TenderRecord) string {
	parts := []string{rec.Title, rec.Country, rec.Organization, rec.Description, rec.NoticeType}
	return strings.ToLower(strings.Join(parts, " "))
}

// regionScore awards the region bonus on the first target-region match, the
// priority bonus when that region is in the priority subset, and the no-match
// penalty when a geographic focus is configured but nothing matches.
func regionScore(text string, cfg model.ScoringConfig) int {
	if len(cfg.TargetRegions) == 0 {
		return 0
	}

	for _, region := range cfg.TargetRegions {
		r := strings.ToLower(strings.TrimSpace(region))
		if r == "" || !strings.Contains(text, r) {
			continue
		}
		bonus := cfg.RegionBonus
		if inPrioritySubset(r, cfg.PriorityRegions) {
			bonus += cfg.PriorityRegionBonus
		}
		return bonus
	}

	return cfg.NoMatchPenalty
}

func inPrioritySubset(region string, priority []string) bool {
	for _, p := range priority {
		if strings.EqualFold(strings.TrimSpace(p), region) {
			return true
		}
	}
	return false
}

// keywordScore awards each group's bonus at most once, no matter how many of
// its synonyms appear.
func keywordScore(text string, cfg model.ScoringConfig) int {
	total := 0
	for _, group := range cfg.KeywordGroups {
		for _, term := range group.Terms {
			t := strings.ToLower(strings.TrimSpace(term))
			if t != "" && strings.Contains(text, t) {
				total += group.Bonus
				break
			}
		}
	}
	return total
}

func priorityFor(score int, cfg model.ScoringConfig) model.Priority {
	switch {
	case score >= cfg.HighThreshold:
		return model.PriorityHigh
	case score >= cfg.MediumThreshold:
		return model.PriorityMedium
	case score >= cfg.LowThreshold:
		return model.PriorityLow
	default:
		return model.PriorityVeryLow
	}
}
