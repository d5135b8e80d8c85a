package match

import (
	"context"

	"github.com/listing-matcher/internal/geo"
)

// AddressRepository supplies reference addresses
type AddressRepository interface {
	GetCandidatesNear(ctx context.Context, c geo.Coordinate, radiusMeters float64) ([]AddressRecord, error)
	// GetByID returns nil, nil when the address does not exist
	GetByID(ctx context.Context, id string) (*AddressRecord, error)
}

// ExampleRecorder receives labeled examples from human feedback
type ExampleRecorder interface {
	Record(ex Example)
}

// PrefilterByRadius keeps candidates within radius of the origin, preserving input order.
// When none are within radius all candidates are returned so a sparse area still gets scored.
func PrefilterByRadius(origin geo.Coordinate, candidates []AddressRecord, radiusMeters float64) []AddressRecord {
	if radiusMeters <= 0 {
		return candidates
	}

	near := make([]AddressRecord, 0, len(candidates))
	for _, c := range candidates {
		if geo.WithinRadius(origin, c.Coordinates, radiusMeters) {
			near = append(near, c)
		}
	}
	if len(near) == 0 {
		return candidates
	}
	return near
}
