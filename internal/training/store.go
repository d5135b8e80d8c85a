package training

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/listing-matcher/internal/match"
	"github.com/listing-matcher/internal/store"
)

// StorageKey is the key-value entry holding persisted examples
const StorageKey = "training_examples"

// exportVersion is the envelope version written by ExportAll
const exportVersion = 1

// Example is a labeled feature vector
type Example = match.Example

// Limits bound the store and define retrain readiness
type Limits struct {
	MaxExamples int
	MinPositive int
	MinNegative int
	MinTotal    int
}

// DefaultLimits returns cap 1000 with 5 positive, 5 negative, 20 total
func DefaultLimits() Limits {
	return Limits{MaxExamples: 1000, MinPositive: 5, MinNegative: 5, MinTotal: 20}
}

// Store is a bounded FIFO of labeled examples
type Store struct {
	mu       sync.RWMutex
	limits   Limits
	examples []Example
	positive int
}

// NewStore creates an empty store
func NewStore(limits Limits) *Store {
	if limits.MaxExamples <= 0 {
		limits.MaxExamples = DefaultLimits().MaxExamples
	}
	return &Store{limits: limits}
}

// Record appends an example, evicting the oldest beyond the cap
func (s *Store) Record(ex Example) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(ex)
}

func (s *Store) appendLocked(ex Example) {
	s.examples = append(s.examples, ex)
	if ex.IsCorrect {
		s.positive++
	}

	if over := len(s.examples) - s.limits.MaxExamples; over > 0 {
		for _, old := range s.examples[:over] {
			if old.IsCorrect {
				s.positive--
			}
		}
		kept := make([]Example, s.limits.MaxExamples, s.limits.MaxExamples+1)
		copy(kept, s.examples[over:])
		s.examples = kept
	}
}

// Counts returns positive, negative and total counts
func (s *Store) Counts() (positive, negative, total int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total = len(s.examples)
	return s.positive, total - s.positive, total
}

// ReadyForRetrain reports whether the retrain preconditions hold
func (s *Store) ReadyForRetrain() bool {
	pos, neg, total := s.Counts()
	return pos >= s.limits.MinPositive && neg >= s.limits.MinNegative && total >= s.limits.MinTotal
}

// Examples returns a copy of the retained examples, oldest first
func (s *Store) Examples() []Example {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Example(nil), s.examples...)
}

// Reset drops every example
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.examples = nil
	s.positive = 0
}

type envelope struct {
	Version  int       `json:"version"`
	Examples []Example `json:"examples"`
}

// ExportAll serializes all examples
func (s *Store) ExportAll() ([]byte, error) {
	data, err := json.Marshal(envelope{Version: exportVersion, Examples: s.Examples()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode training examples: %w", err)
	}
	return data, nil
}

// ImportAll replaces the store contents with serialized examples. The cap still applies.
func (s *Store) ImportAll(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: decoding training examples: %v", match.ErrInvalidInput, err)
	}
	if env.Version != exportVersion {
		return fmt.Errorf("%w: unsupported training export version %d", match.ErrInvalidInput, env.Version)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.examples = nil
	s.positive = 0
	for _, ex := range env.Examples {
		s.appendLocked(ex)
	}
	return nil
}

// Save persists the examples to the key-value store
func (s *Store) Save(ctx context.Context, kv store.KV) error {
	data, err := s.ExportAll()
	if err != nil {
		return err
	}
	if err := kv.Set(ctx, StorageKey, data); err != nil {
		return fmt.Errorf("%w: saving training examples: %v", match.ErrPersistence, err)
	}
	return nil
}

// Load restores examples from the key-value store. A missing key leaves the store empty.
func (s *Store) Load(ctx context.Context, kv store.KV) error {
	data, err := kv.Get(ctx, StorageKey)
	if err != nil {
		return fmt.Errorf("%w: loading training examples: %v", match.ErrPersistence, err)
	}
	if data == nil {
		return nil
	}
	return s.ImportAll(data)
}
