package config

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/tender-scout/internal/model"
	"github.com/sells-group/tender-scout/internal/scorer"
)

// LoadProfile reads a scrape profile from a standalone YAML file. Profiles
// override the profile section of the main config so one deployment can keep
// several keyword/region/scoring sets side by side.
func LoadProfile(path string) (model.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Profile{}, eris.Wrapf(err, "config: read profile %s", path)
	}

	var p model.Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return model.Profile{}, eris.Wrapf(err, "config: parse profile %s", path)
	}

	ApplyProfileDefaults(&p)
	if err := ValidateProfile(p); err != nil {
		return model.Profile{}, err
	}
	return p, nil
}

// ApplyProfileDefaults fills unset pagination and checkpoint knobs, and
// swaps in the stock scoring weights when the profile sets no thresholds.
func ApplyProfileDefaults(p *model.Profile) {
	if p.MaxPages <= 0 {
		p.MaxPages = 20
	}
	if p.RequestDelay <= 0 {
		p.RequestDelay = 2 * time.Second
	}
	if p.CheckpointInterval <= 0 {
		p.CheckpointInterval = 25
	}

	// All-zero thresholds would bucket every record as high priority, so a
	// profile without a scoring section inherits the defaults wholesale.
	// Region and keyword-group overrides survive the merge.
	if p.Scoring.HighThreshold == 0 && p.Scoring.MediumThreshold == 0 && p.Scoring.LowThreshold == 0 {
		d := scorer.DefaultScoringConfig()
		d.TargetRegions = p.Scoring.TargetRegions
		d.PriorityRegions = p.Scoring.PriorityRegions
		if len(p.Scoring.KeywordGroups) > 0 {
			d.KeywordGroups = p.Scoring.KeywordGroups
		}
		p.Scoring = d
	}
}

// ValidateProfile checks a profile for conditions that would fail a session
// before it starts.
func ValidateProfile(p model.Profile) error {
	if len(p.Keywords) == 0 {
		return eris.New("config: profile has no keywords")
	}
	for _, kw := range p.Keywords {
		if kw == "" {
			return eris.New("config: profile contains an empty keyword")
		}
	}
	for _, g := range p.Scoring.KeywordGroups {
		if g.Name == "" {
			return eris.New("config: scoring keyword group missing name")
		}
		if len(g.Terms) == 0 {
			return eris.Errorf("config: scoring keyword group %q has no terms", g.Name)
		}
	}
	return nil
}
