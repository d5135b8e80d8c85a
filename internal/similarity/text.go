package similarity

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/xrash/smetrics"

	"github.com/listing-matcher/internal/normalize"
)

var defaultStemmer = NewRussianStemmer()

// prepare folds and whitespace-normalizes text so every metric compares the same form
func prepare(s string) string {
	return strings.Join(normalize.Tokens(s), " ")
}

// NormalizedEditSimilarity returns 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
// Two empty strings are identical.
func NormalizedEditSimilarity(a, b string) float64 {
	return editSimilarity(prepare(a), prepare(b))
}

func editSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1.0
	}
	return clamp01(1.0 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen))
}

// TokenOverlapSimilarity compares the stemmed token sets of both addresses
func TokenOverlapSimilarity(a, b string) float64 {
	return StemmedOverlap(normalize.Tokens(a), normalize.Tokens(b))
}

// StemmedOverlap is the token overlap ratio after Russian stemming
func StemmedOverlap(tokens1, tokens2 []string) float64 {
	return normalize.TokenOverlap(defaultStemmer.StemTokens(tokens1), defaultStemmer.StemTokens(tokens2))
}

// LengthRatio returns min(len)/max(len) of the normalized texts, 1.0 when both are empty
func LengthRatio(a, b string) float64 {
	return lengthRatio(prepare(a), prepare(b))
}

func lengthRatio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 && lb == 0 {
		return 1.0
	}
	return float64(min(la, lb)) / float64(max(la, lb))
}

// FuzzyScore blends Jaro-Winkler and edit similarity, 0.7/0.3
func FuzzyScore(a, b string) float64 {
	return fuzzyScore(prepare(a), prepare(b))
}

func fuzzyScore(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	jw := smetrics.JaroWinkler(a, b, 0.7, 4)
	return clamp01(0.7*jw + 0.3*editSimilarity(a, b))
}

// CosineBagOfWords computes cosine similarity on token bags
func CosineBagOfWords(tokens1, tokens2 []string) float64 {
	if len(tokens1) == 0 && len(tokens2) == 0 {
		return 1.0
	}
	if len(tokens1) == 0 || len(tokens2) == 0 {
		return 0.0
	}

	freq1 := make(map[string]int)
	freq2 := make(map[string]int)
	for _, token := range tokens1 {
		freq1[token]++
	}
	for _, token := range tokens2 {
		freq2[token]++
	}

	var dotProduct, norm1, norm2 float64
	for token, f1 := range freq1 {
		dotProduct += float64(f1 * freq2[token])
		norm1 += float64(f1 * f1)
	}
	for _, f2 := range freq2 {
		norm2 += float64(f2 * f2)
	}

	if norm1 == 0 || norm2 == 0 {
		return 0.0
	}
	return clamp01(dotProduct / (math.Sqrt(norm1) * math.Sqrt(norm2)))
}

// CosineSimilarity computes cosine similarity between two vectors
func CosineSimilarity(vec1, vec2 []float32) float64 {
	if len(vec1) != len(vec2) || len(vec1) == 0 {
		return 0.0
	}

	var dotProduct, norm1, norm2 float64
	for i := range vec1 {
		dotProduct += float64(vec1[i]) * float64(vec2[i])
		norm1 += float64(vec1[i]) * float64(vec1[i])
		norm2 += float64(vec2[i]) * float64(vec2[i])
	}

	if norm1 == 0 || norm2 == 0 {
		return 0.0
	}
	return dotProduct / (math.Sqrt(norm1) * math.Sqrt(norm2))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
