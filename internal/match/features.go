package match

import (
	"math"

	"github.com/listing-matcher/internal/debug"
	"github.com/listing-matcher/internal/geo"
	"github.com/listing-matcher/internal/normalize"
	"github.com/listing-matcher/internal/similarity"
)

// SemanticProvider produces embeddings for semantic similarity (embeddings.TrigramEmbedder or a model-backed provider)
type SemanticProvider interface {
	Embed(text string) ([]float32, error)
}

// FeatureExtractor builds feature vectors for (listing, candidate) pairs
type FeatureExtractor struct {
	semantic SemanticProvider
	parser   normalize.ComponentParser
}

// NewFeatureExtractor creates an extractor. A nil provider falls back to stemmed token overlap.
func NewFeatureExtractor(semantic SemanticProvider) *FeatureExtractor {
	return &FeatureExtractor{
		semantic: semantic,
		parser:   normalize.DefaultParser(),
	}
}

// WithParser overrides the component parser used for structural similarity
func (fe *FeatureExtractor) WithParser(p normalize.ComponentParser) *FeatureExtractor {
	fe.parser = p
	return fe
}

// Extract computes the feature vector for a listing against one candidate
func (fe *FeatureExtractor) Extract(listing Listing, candidate AddressRecord) FeatureVector {
	return fe.ExtractDebug(false, listing, candidate)
}

// ExtractDebug is Extract with debug output
func (fe *FeatureExtractor) ExtractDebug(localDebug bool, listing Listing, candidate AddressRecord) FeatureVector {
	srcCanonical, srcTokens := normalize.CanonicalAddress(listing.AddressText)
	candCanonical, candTokens := normalize.CanonicalAddress(candidate.Text)

	fv := FeatureVector{
		TextualSimilarity:    similarity.NormalizedEditSimilarity(srcCanonical, candCanonical),
		SemanticSimilarity:   fe.semanticSimilarity(srcCanonical, candCanonical, srcTokens, candTokens),
		StructuralSimilarity: fe.structuralSimilarity(listing.AddressText, candidate.Text),
		FuzzyScore:           similarity.FuzzyScore(srcCanonical, candCanonical),
		LengthRatio:          similarity.LengthRatio(srcCanonical, candCanonical),
		DistanceMeters:       geo.DistanceMeters(listing.Coordinates, candidate.Coordinates),
	}

	debug.DebugOutput(localDebug, "Features %s vs %s: text=%.3f sem=%.3f struct=%.3f fuzzy=%.3f len=%.3f dist=%.1fm",
		srcCanonical, candCanonical, fv.TextualSimilarity, fv.SemanticSimilarity, fv.StructuralSimilarity,
		fv.FuzzyScore, fv.LengthRatio, fv.DistanceMeters)

	return fv
}

func (fe *FeatureExtractor) semanticSimilarity(src, cand string, srcTokens, candTokens []string) float64 {
	if fe.semantic == nil {
		return similarity.StemmedOverlap(srcTokens, candTokens)
	}

	srcVec, err := fe.semantic.Embed(src)
	if err != nil {
		return similarity.StemmedOverlap(srcTokens, candTokens)
	}
	candVec, err := fe.semantic.Embed(cand)
	if err != nil {
		return similarity.StemmedOverlap(srcTokens, candTokens)
	}

	return math.Max(0, math.Min(1, similarity.CosineSimilarity(srcVec, candVec)))
}

// structuralSimilarity weighs street tokens and house numbers separately
func (fe *FeatureExtractor) structuralSimilarity(src, cand string) float64 {
	srcParts := fe.parser.Parse(src)
	candParts := fe.parser.Parse(cand)

	street := similarity.StemmedOverlap(srcParts.Street, candParts.Street)
	house := houseAgreement(srcParts.House, candParts.House)

	return 0.6*street + 0.4*house
}

// houseAgreement compares the primary house numbers: exact 1.0, same numeric base 0.5, both missing 0.5
func houseAgreement(a, b []string) float64 {
	switch {
	case len(a) == 0 && len(b) == 0:
		return 0.5
	case len(a) == 0 || len(b) == 0:
		return 0.0
	case a[0] == b[0]:
		if len(a) > 1 && len(b) > 1 && a[1] != b[1] {
			return 0.75
		}
		return 1.0
	case numericBase(a[0]) != "" && numericBase(a[0]) == numericBase(b[0]):
		return 0.5
	default:
		return 0.0
	}
}

// numericBase returns the leading digits of a house number ("15к2" -> "15")
func numericBase(house string) string {
	end := 0
	for end < len(house) && house[end] >= '0' && house[end] <= '9' {
		end++
	}
	return house[:end]
}
