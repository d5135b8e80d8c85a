package match

import (
	"fmt"
	"math"
	"time"
)

// Weights holds one weight per scored feature
type Weights struct {
	TextualSimilarity    float64 `json:"textual_similarity" yaml:"textual_similarity"`
	SemanticSimilarity   float64 `json:"semantic_similarity" yaml:"semantic_similarity"`
	StructuralSimilarity float64 `json:"structural_similarity" yaml:"structural_similarity"`
	FuzzyScore           float64 `json:"fuzzy_score" yaml:"fuzzy_score"`
	LengthRatio          float64 `json:"length_ratio" yaml:"length_ratio"`
}

// DefaultWeights returns the hand-tuned starting weights
func DefaultWeights() Weights {
	return Weights{
		TextualSimilarity:    0.30,
		SemanticSimilarity:   0.20,
		StructuralSimilarity: 0.25,
		FuzzyScore:           0.15,
		LengthRatio:          0.10,
	}
}

// Values returns the weights indexed by Feature
func (w Weights) Values() [FeatureCount]float64 {
	return [FeatureCount]float64{
		FeatureTextual:     w.TextualSimilarity,
		FeatureSemantic:    w.SemanticSimilarity,
		FeatureStructural:  w.StructuralSimilarity,
		FeatureFuzzy:       w.FuzzyScore,
		FeatureLengthRatio: w.LengthRatio,
	}
}

// WeightsFromValues builds Weights from a Feature-indexed array
func WeightsFromValues(v [FeatureCount]float64) Weights {
	return Weights{
		TextualSimilarity:    v[FeatureTextual],
		SemanticSimilarity:   v[FeatureSemantic],
		StructuralSimilarity: v[FeatureStructural],
		FuzzyScore:           v[FeatureFuzzy],
		LengthRatio:          v[FeatureLengthRatio],
	}
}

// Thresholds are the lower score bounds of each tier. VeryLow is the implicit floor.
type Thresholds struct {
	Low       float64 `json:"low" yaml:"low"`
	Medium    float64 `json:"medium" yaml:"medium"`
	High      float64 `json:"high" yaml:"high"`
	Excellent float64 `json:"excellent" yaml:"excellent"`
}

// DefaultThresholds returns the hand-tuned tier boundaries
func DefaultThresholds() Thresholds {
	return Thresholds{
		Low:       0.50,
		Medium:    0.65,
		High:      0.80,
		Excellent: 0.90,
	}
}

// Validate checks that thresholds are strictly ordered inside (0, 1]
func (t Thresholds) Validate() error {
	if !(t.Low > 0 && t.Low < t.Medium && t.Medium < t.High && t.High < t.Excellent && t.Excellent <= 1) {
		return fmt.Errorf("%w: thresholds must satisfy 0 < low < medium < high < excellent <= 1, got %+v",
			ErrInvalidInput, t)
	}
	return nil
}

// bounds returns thresholds ordered Low..Excellent
func (t Thresholds) bounds() [4]float64 {
	return [4]float64{t.Low, t.Medium, t.High, t.Excellent}
}

func thresholdsFromBounds(b [4]float64) Thresholds {
	return Thresholds{Low: b[0], Medium: b[1], High: b[2], Excellent: b[3]}
}

// Model is an immutable scoring snapshot. Retrain returns a new value rather than mutating one.
type Model struct {
	Version    int64      `json:"version"`
	Weights    Weights    `json:"weights"`
	Thresholds Thresholds `json:"thresholds"`
	TrainedAt  time.Time  `json:"trained_at,omitempty"`
}

// DefaultModel returns version 1 with the hand-tuned defaults
func DefaultModel() Model {
	return Model{
		Version:    1,
		Weights:    DefaultWeights(),
		Thresholds: DefaultThresholds(),
	}
}

// Validate checks weights and thresholds
func (m Model) Validate() error {
	for i, w := range m.Weights.Values() {
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("%w: weight %s is %v", ErrInvalidInput, Feature(i), w)
		}
	}
	return m.Thresholds.Validate()
}
