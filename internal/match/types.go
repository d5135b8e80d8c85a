package match

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/listing-matcher/internal/geo"
)

// MethodSmartML identifies results produced by the weighted feature model
const MethodSmartML = "smart-ml"

// AddressRecord is a reference address owned by the address repository
type AddressRecord struct {
	ID          string         `json:"id"`
	Text        string         `json:"text"`
	Coordinates geo.Coordinate `json:"coordinates"`
}

// Listing is a scraped real-estate listing. Match fields are written only through MatchResult.ApplyTo.
type Listing struct {
	ID                  string         `json:"id"`
	AddressText         string         `json:"address_text"`
	Coordinates         geo.Coordinate `json:"coordinates"`
	State               MatchState     `json:"state,omitempty"`
	MatchedAddressID    *string        `json:"matched_address_id,omitempty"`
	MatchConfidence     *Confidence    `json:"match_confidence,omitempty"`
	MatchScore          *float64       `json:"match_score,omitempty"`
	MatchDistanceMeters *float64       `json:"match_distance_meters,omitempty"`
	MatchMethod         *string        `json:"match_method,omitempty"`
	ObjectID            *string        `json:"object_id,omitempty"`
	Price               *float64       `json:"price,omitempty"`
	OwnerStatus         string         `json:"owner_status,omitempty"`
	Source              string         `json:"source,omitempty"`
}

// Confidence returns the match confidence or VeryLow when unmatched
func (l Listing) Confidence() Confidence {
	if l.MatchConfidence == nil {
		return VeryLow
	}
	return *l.MatchConfidence
}

// IsMatched reports whether the listing carries a match decision
func (l Listing) IsMatched() bool {
	return l.MatchedAddressID != nil
}

// MatchState tracks a listing through the matcher
type MatchState string

const (
	StateUnmatched   MatchState = "unmatched"
	StateMatching    MatchState = "matching"
	StateMatched     MatchState = "matched"
	StateUnmatchable MatchState = "unmatchable"
)

// Confidence is an ordered match quality tier
type Confidence int

const (
	VeryLow Confidence = iota
	Low
	Medium
	High
	Excellent
)

var confidenceNames = [...]string{"very_low", "low", "medium", "high", "excellent"}

// AllConfidences lists tiers from lowest to highest
func AllConfidences() []Confidence {
	return []Confidence{VeryLow, Low, Medium, High, Excellent}
}

func (c Confidence) String() string {
	if c < VeryLow || c > Excellent {
		return fmt.Sprintf("confidence(%d)", int(c))
	}
	return confidenceNames[c]
}

// ParseConfidence accepts snake_case or camelCase tier names
func ParseConfidence(s string) (Confidence, error) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	for i, name := range confidenceNames {
		if key == strings.ReplaceAll(name, "_", "") {
			return Confidence(i), nil
		}
	}
	return VeryLow, fmt.Errorf("%w: unknown confidence %q", ErrInvalidInput, s)
}

// MarshalText implements encoding.TextMarshaler
func (c Confidence) MarshalText() ([]byte, error) {
	if c < VeryLow || c > Excellent {
		return nil, fmt.Errorf("%w: confidence %d out of range", ErrInvalidInput, int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *Confidence) UnmarshalText(text []byte) error {
	parsed, err := ParseConfidence(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// AtLeastHigh reports whether c is High or Excellent
func (c Confidence) AtLeastHigh() bool {
	return c >= High
}

// AtMostLow reports whether c is Low or VeryLow
func (c Confidence) AtMostLow() bool {
	return c <= Low
}

// Feature indexes the scored features of a FeatureVector
type Feature int

const (
	FeatureTextual Feature = iota
	FeatureSemantic
	FeatureStructural
	FeatureFuzzy
	FeatureLengthRatio

	FeatureCount = 5
)

var featureNames = [FeatureCount]string{
	"textual_similarity",
	"semantic_similarity",
	"structural_similarity",
	"fuzzy_score",
	"length_ratio",
}

func (f Feature) String() string {
	if f < 0 || int(f) >= FeatureCount {
		return fmt.Sprintf("feature(%d)", int(f))
	}
	return featureNames[f]
}

// FeatureVector holds the features of a (listing, candidate) pair
type FeatureVector struct {
	TextualSimilarity    float64 `json:"textual_similarity"`
	SemanticSimilarity   float64 `json:"semantic_similarity"`
	StructuralSimilarity float64 `json:"structural_similarity"`
	FuzzyScore           float64 `json:"fuzzy_score"`
	LengthRatio          float64 `json:"length_ratio"`
	DistanceMeters       float64 `json:"distance_meters"`
}

// Values returns the scored features indexed by Feature
func (fv FeatureVector) Values() [FeatureCount]float64 {
	return [FeatureCount]float64{
		FeatureTextual:     fv.TextualSimilarity,
		FeatureSemantic:    fv.SemanticSimilarity,
		FeatureStructural:  fv.StructuralSimilarity,
		FeatureFuzzy:       fv.FuzzyScore,
		FeatureLengthRatio: fv.LengthRatio,
	}
}

// Valid reports whether all features are finite and in range
func (fv FeatureVector) Valid() bool {
	for _, v := range fv.Values() {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return false
		}
	}
	return !math.IsNaN(fv.DistanceMeters) && !math.IsInf(fv.DistanceMeters, 0) && fv.DistanceMeters >= 0
}

// Example is a labeled feature vector confirmed or rejected by a human
type Example struct {
	Features  FeatureVector `json:"features"`
	IsCorrect bool          `json:"is_correct"`
	Timestamp int64         `json:"timestamp"`
}

// NewExample stamps an example with the current time in milliseconds
func NewExample(fv FeatureVector, correct bool) Example {
	return Example{Features: fv, IsCorrect: correct, Timestamp: time.Now().UnixMilli()}
}

// MatchResult is the outcome of matching one listing
type MatchResult struct {
	AddressID      string        `json:"address_id"`
	Score          float64       `json:"score"`
	Confidence     Confidence    `json:"confidence"`
	DistanceMeters float64       `json:"distance_meters"`
	Method         string        `json:"method"`
	ModelVersion   int64         `json:"model_version"`
	Overridden     bool          `json:"proximity_override"`
	Features       FeatureVector `json:"features"`
}

// ApplyTo writes the match fields onto the listing
func (r MatchResult) ApplyTo(l *Listing) {
	id := r.AddressID
	conf := r.Confidence
	score := r.Score
	dist := r.DistanceMeters
	method := r.Method

	l.MatchedAddressID = &id
	l.MatchConfidence = &conf
	l.MatchScore = &score
	l.MatchDistanceMeters = &dist
	l.MatchMethod = &method
	l.State = StateMatched
}

// ClearMatch removes match fields and marks the listing unmatchable
func ClearMatch(l *Listing) {
	l.MatchedAddressID = nil
	l.MatchConfidence = nil
	l.MatchScore = nil
	l.MatchDistanceMeters = nil
	l.MatchMethod = nil
	l.State = StateUnmatchable
}
