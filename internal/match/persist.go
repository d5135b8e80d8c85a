package match

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/listing-matcher/internal/store"
)

// ModelKey is the key-value entry holding the scoring model
const ModelKey = "scoring_model"

// SaveModel persists a model snapshot
func SaveModel(ctx context.Context, kv store.KV, m Model) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := kv.Set(ctx, ModelKey, data); err != nil {
		return fmt.Errorf("%w: saving model v%d: %v", ErrPersistence, m.Version, err)
	}
	return nil
}

// LoadModel reads the persisted model. It returns nil, nil when none was saved.
func LoadModel(ctx context.Context, kv store.KV) (*Model, error) {
	data, err := kv.Get(ctx, ModelKey)
	if err != nil {
		return nil, fmt.Errorf("%w: loading model: %v", ErrPersistence, err)
	}
	if data == nil {
		return nil, nil
	}

	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: decoding model: %v", ErrPersistence, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("stored model v%d: %w", m.Version, err)
	}
	return &m, nil
}
