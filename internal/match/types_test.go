package match

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfidenceOrdering(t *testing.T) {
	all := AllConfidences()
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1], all[i])
	}
	assert.True(t, High.AtLeastHigh())
	assert.True(t, Excellent.AtLeastHigh())
	assert.False(t, Medium.AtLeastHigh())
	assert.True(t, VeryLow.AtMostLow())
	assert.False(t, Medium.AtMostLow())
}

func TestParseConfidence(t *testing.T) {
	tests := []struct {
		input    string
		expected Confidence
		wantErr  bool
	}{
		{"very_low", VeryLow, false},
		{"veryLow", VeryLow, false},
		{"HIGH", High, false},
		{" excellent ", Excellent, false},
		{"medium", Medium, false},
		{"perfect", VeryLow, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseConfidence(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestConfidenceJSON(t *testing.T) {
	r := MatchResult{AddressID: "a1", Confidence: High, Method: MethodSmartML}
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"confidence":"high"`)

	var back MatchResult
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, High, back.Confidence)

	_, err = json.Marshal(struct{ C Confidence }{C: Confidence(9)})
	assert.Error(t, err)
}

func TestFeatureVectorValid(t *testing.T) {
	ok := FeatureVector{0.5, 0.5, 0.5, 0.5, 0.5, 10}
	assert.True(t, ok.Valid())

	tests := []struct {
		name string
		fv   FeatureVector
	}{
		{"nan feature", FeatureVector{TextualSimilarity: math.NaN()}},
		{"above one", FeatureVector{FuzzyScore: 1.2}},
		{"negative", FeatureVector{LengthRatio: -0.1}},
		{"negative distance", FeatureVector{DistanceMeters: -1}},
		{"infinite distance", FeatureVector{DistanceMeters: math.Inf(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, tt.fv.Valid())
		})
	}
}

func TestApplyToAndClearMatch(t *testing.T) {
	l := Listing{ID: "l1"}
	MatchResult{AddressID: "a1", Score: 0.95, Confidence: Excellent, DistanceMeters: 3, Method: MethodSmartML}.ApplyTo(&l)

	require.True(t, l.IsMatched())
	assert.Equal(t, "a1", *l.MatchedAddressID)
	assert.Equal(t, Excellent, l.Confidence())
	assert.Equal(t, 0.95, *l.MatchScore)
	assert.Equal(t, 3.0, *l.MatchDistanceMeters)
	assert.Equal(t, MethodSmartML, *l.MatchMethod)
	assert.Equal(t, StateMatched, l.State)

	ClearMatch(&l)
	assert.False(t, l.IsMatched())
	assert.Equal(t, VeryLow, l.Confidence())
	assert.Equal(t, StateUnmatchable, l.State)
}
