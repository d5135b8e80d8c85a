package match

import "errors"

var (
	// ErrInvalidInput marks malformed coordinates or blank address text
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a missing address or listing
	ErrNotFound = errors.New("not found")
	// ErrModelState marks retrain preconditions that were not met
	ErrModelState = errors.New("model state")
	// ErrPersistence marks a failure of the external store
	ErrPersistence = errors.New("persistence")
)
