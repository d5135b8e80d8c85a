package match

import (
	"math"

	"github.com/listing-matcher/internal/debug"
)

// HighConfidenceFloor is the minimum score granted by the proximity override
const HighConfidenceFloor = 0.9

// Score computes the composite score of the non-distance features.
// Weights are normalized here so partially trained weights never leave [0, 1].
func (m Model) Score(fv FeatureVector) float64 {
	return m.ScoreDebug(false, fv)
}

// ScoreDebug is Score with debug output
func (m Model) ScoreDebug(localDebug bool, fv FeatureVector) float64 {
	values := fv.Values()
	weights := m.Weights.Values()

	var sum, weightSum float64
	for i := range values {
		w := weights[i]
		if w < 0 || math.IsNaN(w) {
			w = 0
		}
		sum += w * clamp01(values[i])
		weightSum += w
	}

	var score float64
	if weightSum == 0 {
		for _, v := range values {
			score += clamp01(v)
		}
		score /= float64(len(values))
	} else {
		score = sum / weightSum
	}

	score = clamp01(score)
	debug.DebugOutput(localDebug, "Score: %.4f (weight sum %.4f)", score, weightSum)
	return score
}

// Classify maps a score onto a confidence tier, checking thresholds from the top down
func (m Model) Classify(score float64) Confidence {
	t := m.Thresholds
	switch {
	case score >= t.Excellent:
		return Excellent
	case score >= t.High:
		return High
	case score >= t.Medium:
		return Medium
	case score >= t.Low:
		return Low
	default:
		return VeryLow
	}
}

// ApplyProximityOverride raises score and confidence when the candidate is within radius.
// It never lowers either value and must run after classification of the final winner.
func ApplyProximityOverride(fv FeatureVector, score float64, conf Confidence, radiusMeters float64) (float64, Confidence) {
	if fv.DistanceMeters > radiusMeters || math.IsNaN(fv.DistanceMeters) {
		return score, conf
	}
	return math.Max(score, HighConfidenceFloor), max(conf, High)
}

// Contribution explains one feature's share of a score
type Contribution struct {
	Feature      string  `json:"feature"`
	Value        float64 `json:"value"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// Explanation is a per-feature breakdown of a score
type Explanation struct {
	ModelVersion   int64          `json:"model_version"`
	Contributions  []Contribution `json:"contributions"`
	Score          float64        `json:"score"`
	Confidence     Confidence     `json:"confidence"`
	DistanceMeters float64        `json:"distance_meters"`
}

// Explain provides a detailed breakdown of how a feature vector was scored
func (m Model) Explain(fv FeatureVector) Explanation {
	values := fv.Values()
	weights := m.Weights.Values()

	var weightSum float64
	for _, w := range weights {
		if w > 0 {
			weightSum += w
		}
	}

	contributions := make([]Contribution, 0, FeatureCount)
	for i := range values {
		w := max(weights[i], 0)
		var normalized float64
		if weightSum > 0 {
			normalized = w / weightSum
		} else {
			normalized = 1.0 / float64(FeatureCount)
		}
		contributions = append(contributions, Contribution{
			Feature:      Feature(i).String(),
			Value:        values[i],
			Weight:       normalized,
			Contribution: normalized * clamp01(values[i]),
		})
	}

	score := m.Score(fv)
	return Explanation{
		ModelVersion:   m.Version,
		Contributions:  contributions,
		Score:          score,
		Confidence:     m.Classify(score),
		DistanceMeters: fv.DistanceMeters,
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
