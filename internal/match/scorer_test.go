package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func uniform(v float64) FeatureVector {
	return FeatureVector{v, v, v, v, v, 0}
}

func TestModelScore(t *testing.T) {
	m := DefaultModel()

	assert.InDelta(t, 1.0, m.Score(uniform(1)), 1e-9)
	assert.InDelta(t, 0.0, m.Score(uniform(0)), 1e-9)
	assert.InDelta(t, 0.5, m.Score(uniform(0.5)), 1e-9)

	fv := FeatureVector{TextualSimilarity: 1}
	assert.InDelta(t, 0.30, m.Score(fv), 1e-9)
}

func TestModelScore_NormalizesAtScoringTime(t *testing.T) {
	m := DefaultModel()
	m.Weights = Weights{TextualSimilarity: 2, SemanticSimilarity: 2}

	fv := FeatureVector{TextualSimilarity: 1, SemanticSimilarity: 0.5}
	assert.InDelta(t, 0.75, m.Score(fv), 1e-9)
}

func TestModelScore_NegativeAndZeroWeights(t *testing.T) {
	m := DefaultModel()
	m.Weights = Weights{TextualSimilarity: -1, FuzzyScore: 1}
	assert.InDelta(t, 0.4, m.Score(FeatureVector{TextualSimilarity: 1, FuzzyScore: 0.4}), 1e-9)

	m.Weights = Weights{}
	fv := FeatureVector{TextualSimilarity: 1, SemanticSimilarity: 1}
	assert.InDelta(t, 0.4, m.Score(fv), 1e-9)
}

func TestModelScore_ClampsOutOfRangeFeatures(t *testing.T) {
	m := DefaultModel()
	assert.InDelta(t, 1.0, m.Score(uniform(3)), 1e-9)
	assert.InDelta(t, 0.0, m.Score(uniform(-2)), 1e-9)
}

func TestModelClassify(t *testing.T) {
	m := DefaultModel()
	tests := []struct {
		score    float64
		expected Confidence
	}{
		{1.0, Excellent},
		{0.90, Excellent},
		{0.89, High},
		{0.80, High},
		{0.70, Medium},
		{0.65, Medium},
		{0.55, Low},
		{0.50, Low},
		{0.49, VeryLow},
		{0.0, VeryLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, m.Classify(tt.score), "score %.2f", tt.score)
	}
}

func TestApplyProximityOverride(t *testing.T) {
	near := FeatureVector{DistanceMeters: 5}
	edge := FeatureVector{DistanceMeters: 20}
	far := FeatureVector{DistanceMeters: 92}

	score, conf := ApplyProximityOverride(near, 0.3, VeryLow, 20)
	assert.Equal(t, 0.9, score)
	assert.Equal(t, High, conf)

	score, conf = ApplyProximityOverride(edge, 0.97, Excellent, 20)
	assert.Equal(t, 0.97, score)
	assert.Equal(t, Excellent, conf)

	score, conf = ApplyProximityOverride(far, 0.3, VeryLow, 20)
	assert.Equal(t, 0.3, score)
	assert.Equal(t, VeryLow, conf)
}

func TestApplyProximityOverride_Monotonic(t *testing.T) {
	for _, d := range []float64{0, 10, 20, 21, 500} {
		for _, s := range []float64{0, 0.2, 0.5, 0.89, 0.9, 0.95, 1} {
			for _, c := range AllConfidences() {
				gotScore, gotConf := ApplyProximityOverride(FeatureVector{DistanceMeters: d}, s, c, 20)
				assert.GreaterOrEqual(t, gotScore, s)
				assert.GreaterOrEqual(t, gotConf, c)
				if d <= 20 {
					assert.GreaterOrEqual(t, gotScore, 0.9)
					assert.True(t, gotConf.AtLeastHigh())
				}
			}
		}
	}
}

func TestModelExplain(t *testing.T) {
	m := DefaultModel()
	fv := FeatureVector{0.9, 0.7, 0.6, 0.8, 1.0, 42}

	exp := m.Explain(fv)
	assert.Len(t, exp.Contributions, FeatureCount)
	assert.Equal(t, "textual_similarity", exp.Contributions[0].Feature)
	assert.Equal(t, 42.0, exp.DistanceMeters)

	var total, weights float64
	for _, c := range exp.Contributions {
		total += c.Contribution
		weights += c.Weight
	}
	assert.InDelta(t, exp.Score, total, 1e-9)
	assert.InDelta(t, 1.0, weights, 1e-9)
	assert.Equal(t, m.Classify(exp.Score), exp.Confidence)
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.Error(t, Thresholds{Low: 0.5, Medium: 0.5, High: 0.8, Excellent: 0.9}.Validate())
	assert.Error(t, Thresholds{Low: 0, Medium: 0.5, High: 0.8, Excellent: 0.9}.Validate())
	assert.Error(t, Thresholds{Low: 0.2, Medium: 0.5, High: 0.8, Excellent: 1.1}.Validate())
}
