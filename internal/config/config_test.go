package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tender-scout/internal/model"
)

func TestLoad_Defaults(t *testing.T) {
	// Run from a directory with no config file so only defaults apply.
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Scrape.NavigationTimeout())
	assert.True(t, cfg.Scrape.Headless)
	assert.Equal(t, 20, cfg.Profile.MaxPages)
	assert.Equal(t, 25, cfg.Profile.CheckpointInterval)
}

func TestCredentials(t *testing.T) {
	cfg := &Config{
		Sources: map[string]SourceCredentials{
			"ungm": {Username: "bids@example.org", Password: "hunter2"},
		},
	}

	creds, err := cfg.Credentials("ungm")
	require.NoError(t, err)
	assert.Equal(t, "bids@example.org", creds.Username)

	_, err = cfg.Credentials("dgmarket")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credentials")
}

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	yaml := `
keywords: ["management consulting", "advisory"]
max_pages: 5
request_delay: 500ms
checkpoint_interval: 10
scoring:
  target_regions: ["nigeria", "ghana"]
  priority_regions: ["nigeria"]
  region_bonus: 40
  priority_region_bonus: 10
  no_match_penalty: -20
  keyword_groups:
    - name: management consulting
      terms: ["management consulting", "organizational development"]
      bonus: 15
  high_threshold: 70
  medium_threshold: 50
  low_threshold: 30
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	p, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"management consulting", "advisory"}, p.Keywords)
	assert.Equal(t, 5, p.MaxPages)
	assert.Equal(t, 500*time.Millisecond, p.RequestDelay)
	assert.Equal(t, 40, p.Scoring.RegionBonus)
	require.Len(t, p.Scoring.KeywordGroups, 1)
	assert.Equal(t, 15, p.Scoring.KeywordGroups[0].Bonus)
}

func TestLoadProfile_DefaultsApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`keywords: ["consulting"]`), 0o644))

	p, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, 20, p.MaxPages)
	assert.Equal(t, 2*time.Second, p.RequestDelay)
	assert.Equal(t, 25, p.CheckpointInterval)

	// A profile with no scoring section gets the stock weights.
	assert.Equal(t, 70, p.Scoring.HighThreshold)
	assert.Equal(t, 40, p.Scoring.RegionBonus)
	assert.NotEmpty(t, p.Scoring.KeywordGroups)
}

func TestApplyProfileDefaults_ScoringOverridesKept(t *testing.T) {
	p := model.Profile{
		Keywords: []string{"consulting"},
		Scoring: model.ScoringConfig{
			TargetRegions: []string{"kenya"},
			KeywordGroups: []model.KeywordGroup{{Name: "g", Terms: []string{"x"}, Bonus: 5}},
		},
	}
	ApplyProfileDefaults(&p)

	assert.Equal(t, []string{"kenya"}, p.Scoring.TargetRegions)
	require.Len(t, p.Scoring.KeywordGroups, 1)
	assert.Equal(t, "g", p.Scoring.KeywordGroups[0].Name)
	assert.Equal(t, 70, p.Scoring.HighThreshold)
	assert.Equal(t, -20, p.Scoring.NoMatchPenalty)
}

func TestValidateProfile(t *testing.T) {
	err := ValidateProfile(model.Profile{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no keywords")

	err = ValidateProfile(model.Profile{Keywords: []string{"a", ""}})
	require.Error(t, err)

	err = ValidateProfile(model.Profile{
		Keywords: []string{"a"},
		Scoring: model.ScoringConfig{
			KeywordGroups: []model.KeywordGroup{{Name: "g"}},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no terms")
}

func TestLoadProfile_Missing(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
