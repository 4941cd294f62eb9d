package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tender-scout/internal/model"
)

func testConfig() model.ScoringConfig {
	return model.ScoringConfig{
		TargetRegions:       []string{"nigeria", "ghana", "kenya"},
		PriorityRegions:     []string{"nigeria"},
		RegionBonus:         40,
		PriorityRegionBonus: 10,
		NoMatchPenalty:      -20,
		KeywordGroups: []model.KeywordGroup{
			{Name: "management consulting", Terms: []string{"management consulting"}, Bonus: 15},
			{Name: "consulting", Terms: []string{"consulting", "consultancy"}, Bonus: 5},
		},
		HighThreshold:   70,
		MediumThreshold: 50,
		LowThreshold:    30,
	}
}

func TestScore_PriorityRegionWithKeywords(t *testing.T) {
	// Region 40 + priority region 10 + "management consulting" 15 +
	// generic "consulting" 5 = 70 → High.
	rec := model.TenderRecord{
		Country:     "Nigeria",
		Description: "management consulting services",
	}

	score, priority := Score(rec, testConfig())
	assert.Equal(t, 70, score)
	assert.Equal(t, model.PriorityHigh, priority)
}

func TestScore_NoMatchesFloorsAtZero(t *testing.T) {
	// No region match with a configured focus and no keyword matches:
	// max(0, -20) = 0 → VeryLow.
	rec := model.TenderRecord{
		Country:     "Iceland",
		Description: "road resurfacing works",
	}

	score, priority := Score(rec, testConfig())
	assert.Equal(t, 0, score)
	assert.Equal(t, model.PriorityVeryLow, priority)
}

func TestScore_GroupBonusCountedOncePerGroup(t *testing.T) {
	cfg := testConfig()
	cfg.TargetRegions = nil // isolate keyword scoring

	rec := model.TenderRecord{
		Description: "consulting and consultancy support", // two synonyms, one group
	}

	score, _ := Score(rec, cfg)
	assert.Equal(t, 5, score)
}

func TestScore_NoGeographicFocusMeansNoPenalty(t *testing.T) {
	cfg := testConfig()
	cfg.TargetRegions = nil

	rec := model.TenderRecord{Description: "unrelated supplies"}
	score, _ := Score(rec, cfg)
	assert.Equal(t, 0, score)
}

func TestScore_NonPriorityRegion(t *testing.T) {
	rec := model.TenderRecord{Country: "Ghana", Description: "consultancy"}
	score, priority := Score(rec, testConfig())
	// 40 region + 5 generic consulting.
	assert.Equal(t, 45, score)
	assert.Equal(t, model.PriorityLow, priority)
}

func TestScore_RegionMatchedInDescription(t *testing.T) {
	// The record's country field may be empty while the description still
	// names the region.
	rec := model.TenderRecord{Description: "institutional support across Kenya"}
	score, _ := Score(rec, testConfig())
	assert.Equal(t, 40, score)
}

func TestScore_CapsAtHundred(t *testing.T) {
	cfg := testConfig()
	cfg.RegionBonus = 90
	cfg.PriorityRegionBonus = 50

	rec := model.TenderRecord{Country: "Nigeria", Description: "management consulting"}
	score, priority := Score(rec, cfg)
	assert.Equal(t, 100, score)
	assert.Equal(t, model.PriorityHigh, priority)
}

func TestScore_Deterministic(t *testing.T) {
	cfg := testConfig()
	rec := model.TenderRecord{
		Country:      "Nigeria",
		Organization: "Federal Ministry of Works",
		Description:  "management consulting for road programme oversight",
	}

	s1, p1 := Score(rec, cfg)
	for i := 0; i < 50; i++ {
		s2, p2 := Score(rec, cfg)
		require.Equal(t, s1, s2)
		require.Equal(t, p1, p2)
	}
}

func TestScore_RangeInvariant(t *testing.T) {
	cfg := testConfig()
	records := []model.TenderRecord{
		{},
		{Country: "Nigeria"},
		{Description: "management consulting consultancy consulting"},
		{Country: "Mars", Description: "nothing relevant"},
	}
	for _, rec := range records {
		score, _ := Score(rec, cfg)
		assert.GreaterOrEqual(t, score, 0)
		assert.LessOrEqual(t, score, 100)
	}
}

func TestApply(t *testing.T) {
	rec := model.TenderRecord{Country: "Nigeria", Description: "management consulting services"}
	Apply(&rec, testConfig())
	assert.Equal(t, 70, rec.RelevanceScore)
	assert.Equal(t, model.PriorityHigh, rec.PriorityLevel)
}

func TestDefaultScoringConfig_Valid(t *testing.T) {
	require.NoError(t, ValidateConfig(DefaultScoringConfig()))
}

func TestValidateConfig_Rejects(t *testing.T) {
	cfg := DefaultScoringConfig()
	cfg.NoMatchPenalty = 5
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_match_penalty")

	cfg = DefaultScoringConfig()
	cfg.MediumThreshold = 90 // above high
	require.Error(t, ValidateConfig(cfg))

	cfg = DefaultScoringConfig()
	cfg.KeywordGroups = append(cfg.KeywordGroups, model.KeywordGroup{Name: "empty"})
	require.Error(t, ValidateConfig(cfg))
}
