package embeddings

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/mozillazg/go-unidecode"

	"github.com/listing-matcher/internal/normalize"
)

// DefaultDimensions is the embedding width used by the matcher
const DefaultDimensions = 256

// Embedder turns address text into a fixed-width vector
type Embedder interface {
	Embed(text string) ([]float32, error)
	Dimensions() int
}

// TrigramEmbedder creates embeddings by hashing character trigrams of transliterated text.
// Cyrillic and Latin spellings of the same street land on the same trigrams.
type TrigramEmbedder struct {
	dimensions int
}

// NewTrigramEmbedder creates a trigram embedder
func NewTrigramEmbedder(dimensions int) *TrigramEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &TrigramEmbedder{dimensions: dimensions}
}

// Dimensions returns the vector width
func (te *TrigramEmbedder) Dimensions() int {
	return te.dimensions
}

// Embed creates a unit-length vector representation of text
func (te *TrigramEmbedder) Embed(text string) ([]float32, error) {
	vector := make([]float32, te.dimensions)

	canonical, tokens := normalize.CanonicalAddress(text)
	if canonical == "" {
		return vector, nil
	}

	latin := strings.ToLower(unidecode.Unidecode(canonical))
	for _, token := range strings.Fields(latin) {
		padded := "#" + token + "#"
		for i := 0; i+3 <= len(padded); i++ {
			idx, sign := te.bucket(padded[i : i+3])
			vector[idx] += sign
		}
	}

	// House numbers carry most of the discriminating signal
	numericCount := 0
	for _, token := range tokens {
		if token != "" && token[0] >= '0' && token[0] <= '9' {
			numericCount++
			idx, sign := te.bucket("num:" + token)
			vector[idx] += 2 * sign
		}
	}

	var norm float64
	for _, val := range vector {
		norm += float64(val) * float64(val)
	}
	norm = math.Sqrt(norm)

	if norm == 0 {
		return vector, fmt.Errorf("empty embedding for %q", text)
	}
	for i := range vector {
		vector[i] = float32(float64(vector[i]) / norm)
	}

	return vector, nil
}

func (te *TrigramEmbedder) bucket(gram string) (int, float32) {
	hash := md5.Sum([]byte(gram))
	h := binary.LittleEndian.Uint64(hash[:8])
	sign := float32(1)
	if hash[8]&1 == 1 {
		sign = -1
	}
	return int(h % uint64(te.dimensions)), sign
}
