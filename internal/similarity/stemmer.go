package similarity

import (
	"sync"
	"unicode"

	"github.com/kljensen/snowball"
)

// Stemmer reduces a word to its stem
type Stemmer interface {
	Stem(word string) string
}

// RussianStemmer stems Russian words with the Snowball algorithm and caches results.
// Street names repeat heavily across a batch, so the cache pays off quickly.
type RussianStemmer struct {
	cache map[string]string
	mu    sync.RWMutex
}

// NewRussianStemmer creates a new Russian language stemmer
func NewRussianStemmer() *RussianStemmer {
	return &RussianStemmer{cache: make(map[string]string)}
}

// Stem returns the stem of an already folded word. Numbers and non-Cyrillic words are returned unchanged.
func (s *RussianStemmer) Stem(word string) string {
	if word == "" || !hasCyrillic(word) {
		return word
	}

	s.mu.RLock()
	if cached, found := s.cache[word]; found {
		s.mu.RUnlock()
		return cached
	}
	s.mu.RUnlock()

	stemmed, err := snowball.Stem(word, "russian", false)
	if err != nil || stemmed == "" {
		stemmed = word
	}

	s.mu.Lock()
	s.cache[word] = stemmed
	s.mu.Unlock()

	return stemmed
}

// StemTokens stems every token in place order
func (s *RussianStemmer) StemTokens(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = s.Stem(t)
	}
	return out
}

func hasCyrillic(word string) bool {
	for _, r := range word {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}
