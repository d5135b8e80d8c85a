package match

import (
	"context"
	"sync"
	"sync/atomic"
)

// ModelHolder publishes immutable model snapshots. Readers never block; retrains are serialized.
type ModelHolder struct {
	current atomic.Pointer[Model]
	mu      sync.Mutex
	policy  RetrainPolicy
}

// NewModelHolder creates a holder with an initial snapshot
func NewModelHolder(initial Model, policy RetrainPolicy) *ModelHolder {
	h := &ModelHolder{policy: policy}
	m := initial
	h.current.Store(&m)
	return h
}

// Snapshot returns the current model. Callers must treat it as read-only.
func (h *ModelHolder) Snapshot() *Model {
	return h.current.Load()
}

// Policy returns the retrain policy
func (h *ModelHolder) Policy() RetrainPolicy {
	return h.policy
}

// Replace publishes a model loaded from persistence
func (h *ModelHolder) Replace(m Model) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := m
	h.current.Store(&next)
}

// Retrain computes a new snapshot from the examples and publishes it atomically.
// A cancelled context before publishing leaves the previous snapshot in place.
func (h *ModelHolder) Retrain(ctx context.Context, examples []Example) (RetrainReport, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return RetrainReport{}, err
	}

	prev := h.current.Load()
	next, report := Retrain(*prev, examples, h.policy)

	if err := ctx.Err(); err != nil {
		report.Applied = false
		report.ToVersion = prev.Version
		return report, err
	}

	if report.Applied {
		h.current.Store(&next)
	}
	return report, nil
}
