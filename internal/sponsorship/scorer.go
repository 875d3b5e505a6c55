package sponsorship

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/studx-dev/studx/internal/item"
)

// Weights defines the point values used by the relevance scorer.
// The defaults reproduce the production scoring exactly; individual values
// can be overridden through a JSON calibration file.
type Weights struct {
	SlotBase         float64 `json:"slot_base"`          // Base points before slot penalty (default: 5)
	SlotPenalty      float64 `json:"slot_penalty"`       // Points subtracted per slot number (default: 0.5)
	TitleMatch       float64 `json:"title_match"`        // Query appears in title (default: 5)
	DescriptionMatch float64 `json:"description_match"`  // Query appears in description (default: 3)
	CategoryTerm     float64 `json:"category_term"`      // Query appears in category (default: 2)
	ExactTitleBonus  float64 `json:"exact_title_bonus"`  // Exact or leading-token title match (default: 3)
	CategoryAffinity float64 `json:"category_affinity"`  // Item and target category overlap (default: 4)
	TypeMatch        float64 `json:"type_match"`         // Candidate type equals requested type (default: 2)
	CollegeMatch     float64 `json:"college_match"`      // Candidate college equals requester's (default: 1)
	MaxScore         float64 `json:"max_score"`          // Score cap (default: 10)
}

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version string  `json:"version"`
	Weights Weights `json:"weights"`
}

// DefaultWeights returns the default scoring weight configuration.
//
// The relevance score is additive and capped at MaxScore:
//   - slot base: max(0, slot_base - slot * slot_penalty), so earlier slots
//     start with a higher floor
//   - lexical bonuses for query/title/description/category matches
//   - affinity bonuses for category, type, and college matches
func DefaultWeights() *Weights {
	return &Weights{
		SlotBase:         5,
		SlotPenalty:      0.5,
		TitleMatch:       5,
		DescriptionMatch: 3,
		CategoryTerm:     2,
		ExactTitleBonus:  3,
		CategoryAffinity: 4,
		TypeMatch:        2,
		CollegeMatch:     1,
		MaxScore:         10,
	}
}

// LoadCalibration loads scoring weights from a JSON calibration file.
// Partial configurations are merged with defaults for graceful degradation;
// on any error the defaults are returned alongside the error.
func LoadCalibration(filePath string) (*Weights, error) {
	if filePath == "" {
		return DefaultWeights(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultWeights()
	merged := MergeCalibration(defaults, &config.Weights)
	logCalibrationOverrides(defaults, merged)

	return merged, nil
}

// MergeCalibration merges override weights over base weights.
// Only non-zero values from the override are applied, which allows partial
// overrides in the calibration file.
func MergeCalibration(base *Weights, override *Weights) *Weights {
	if base == nil {
		return DefaultWeights()
	}
	if override == nil {
		result := *base
		return &result
	}

	result := *base

	if override.SlotBase != 0 {
		result.SlotBase = override.SlotBase
	}
	if override.SlotPenalty != 0 {
		result.SlotPenalty = override.SlotPenalty
	}
	if override.TitleMatch != 0 {
		result.TitleMatch = override.TitleMatch
	}
	if override.DescriptionMatch != 0 {
		result.DescriptionMatch = override.DescriptionMatch
	}
	if override.CategoryTerm != 0 {
		result.CategoryTerm = override.CategoryTerm
	}
	if override.ExactTitleBonus != 0 {
		result.ExactTitleBonus = override.ExactTitleBonus
	}
	if override.CategoryAffinity != 0 {
		result.CategoryAffinity = override.CategoryAffinity
	}
	if override.TypeMatch != 0 {
		result.TypeMatch = override.TypeMatch
	}
	if override.CollegeMatch != 0 {
		result.CollegeMatch = override.CollegeMatch
	}
	if override.MaxScore != 0 {
		result.MaxScore = override.MaxScore
	}

	return &result
}

// logCalibrationOverrides logs which weights were overridden from defaults.
func logCalibrationOverrides(defaults *Weights, loaded *Weights) {
	var overrides []string

	check := func(name string, def, got float64) {
		if got != def {
			overrides = append(overrides, fmt.Sprintf("%s: %.2f -> %.2f", name, def, got))
		}
	}
	check("slot_base", defaults.SlotBase, loaded.SlotBase)
	check("slot_penalty", defaults.SlotPenalty, loaded.SlotPenalty)
	check("title_match", defaults.TitleMatch, loaded.TitleMatch)
	check("description_match", defaults.DescriptionMatch, loaded.DescriptionMatch)
	check("category_term", defaults.CategoryTerm, loaded.CategoryTerm)
	check("exact_title_bonus", defaults.ExactTitleBonus, loaded.ExactTitleBonus)
	check("category_affinity", defaults.CategoryAffinity, loaded.CategoryAffinity)
	check("type_match", defaults.TypeMatch, loaded.TypeMatch)
	check("college_match", defaults.CollegeMatch, loaded.CollegeMatch)
	check("max_score", defaults.MaxScore, loaded.MaxScore)

	if len(overrides) > 0 {
		slog.Info("loaded sponsorship calibration with overrides",
			"overrides", overrides)
	} else {
		slog.Info("loaded sponsorship calibration (using all defaults)")
	}
}

// Scorer computes relevance scores for sponsored candidates.
// Scoring is a pure function of the item and context: no I/O, no clock.
type Scorer struct {
	weights        *Weights
	collegeEnabled bool
}

// NewScorer creates a scorer with the given weights.
// Nil weights fall back to defaults. collegeEnabled gates the college
// affinity bonus (feature-flagged, on by default in config).
func NewScorer(weights *Weights, collegeEnabled bool) *Scorer {
	if weights == nil {
		weights = DefaultWeights()
	}
	return &Scorer{weights: weights, collegeEnabled: collegeEnabled}
}

// Score computes the relevance score of a candidate against the context.
// itemType is the candidate's storage type; the type bonus compares the
// context's client-facing type name against the candidate's display name.
// The result is always within [0, MaxScore].
func (s *Scorer) Score(it *item.Item, itemType item.Type, rc Context) float64 {
	w := s.weights
	score := 0.0

	// Base score from sponsor slot; earlier slots keep a higher floor.
	slot := rc.SponsorSlot
	if slot <= 0 {
		slot = 1
	}
	base := w.SlotBase - float64(slot)*w.SlotPenalty
	if base > 0 {
		score += base
	}

	if rc.SearchQuery != "" {
		query := strings.ToLower(rc.SearchQuery)
		title := strings.ToLower(it.Title)
		description := strings.ToLower(it.Description)
		category := strings.ToLower(it.Category)

		if strings.Contains(title, query) {
			score += w.TitleMatch
		}
		if strings.Contains(description, query) {
			score += w.DescriptionMatch
		}
		if strings.Contains(category, query) {
			score += w.CategoryTerm
		}

		// Exact title match, or the title carrying the leading query token,
		// stacks on top of the substring bonuses.
		if title == query || strings.Contains(title, firstToken(query)) {
			score += w.ExactTitleBonus
		}
	}

	if rc.Category != "" {
		itemCategory := strings.ToLower(it.Category)
		targetCategory := strings.ToLower(rc.Category)
		if strings.Contains(itemCategory, targetCategory) || strings.Contains(targetCategory, itemCategory) {
			score += w.CategoryAffinity
		}
	}

	if rc.Type != "" && rc.Type == itemType.Display() {
		score += w.TypeMatch
	}

	if s.collegeEnabled && rc.College != "" && it.College == rc.College {
		score += w.CollegeMatch
	}

	if score > w.MaxScore {
		return w.MaxScore
	}
	return score
}

// firstToken returns the first whitespace-delimited token of s,
// or s itself if it has no spaces.
func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return s
	}
	return fields[0]
}
