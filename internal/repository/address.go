package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb"

	"github.com/listing-matcher/internal/db"
	"github.com/listing-matcher/internal/geo"
	"github.com/listing-matcher/internal/match"
)

// AddressWriter accepts reference addresses from importers
type AddressWriter interface {
	UpsertAddresses(ctx context.Context, records []match.AddressRecord) (int, error)
	Count(ctx context.Context) (int, error)
}

// sortByDistance orders candidates nearest first, ties by id
func sortByDistance(origin geo.Coordinate, records []match.AddressRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		di := geo.DistanceMeters(origin, records[i].Coordinates)
		dj := geo.DistanceMeters(origin, records[j].Coordinates)
		if di != dj {
			return di < dj
		}
		return records[i].ID < records[j].ID
	})
}

// SQLAddressRepository reads reference addresses from the address table
type SQLAddressRepository struct {
	conn *db.Connection
}

// NewSQLAddressRepository wraps a migrated connection
func NewSQLAddressRepository(conn *db.Connection) *SQLAddressRepository {
	return &SQLAddressRepository{conn: conn}
}

// GetCandidatesNear returns addresses within radius, nearest first.
// A bounding box query narrows rows before the exact distance check.
func (r *SQLAddressRepository) GetCandidatesNear(ctx context.Context, c geo.Coordinate, radiusMeters float64) ([]match.AddressRecord, error) {
	var out []match.AddressRecord
	for _, box := range geo.BoundsAround(c, radiusMeters) {
		records, err := r.queryBox(ctx, box)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if geo.WithinRadius(c, rec.Coordinates, radiusMeters) {
				out = append(out, rec)
			}
		}
	}

	sortByDistance(c, out)
	return out, nil
}

func (r *SQLAddressRepository) queryBox(ctx context.Context, box orb.Bound) ([]match.AddressRecord, error) {
	rows, err := r.conn.DB.QueryContext(ctx, r.conn.Rebind(`
		SELECT id, text, lat, lng FROM address
		WHERE lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?
	`), box.Min.Lat(), box.Max.Lat(), box.Min.Lon(), box.Max.Lon())
	if err != nil {
		return nil, fmt.Errorf("%w: querying candidates: %v", match.ErrPersistence, err)
	}
	defer rows.Close()

	var out []match.AddressRecord
	for rows.Next() {
		var rec match.AddressRecord
		if err := rows.Scan(&rec.ID, &rec.Text, &rec.Coordinates.Lat, &rec.Coordinates.Lng); err != nil {
			return nil, fmt.Errorf("%w: scanning candidate: %v", match.ErrPersistence, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating candidates: %v", match.ErrPersistence, err)
	}
	return out, nil
}

// GetByID returns nil, nil when the address does not exist
func (r *SQLAddressRepository) GetByID(ctx context.Context, id string) (*match.AddressRecord, error) {
	var rec match.AddressRecord
	err := r.conn.DB.QueryRowContext(ctx, r.conn.Rebind(`SELECT id, text, lat, lng FROM address WHERE id = ?`), id).
		Scan(&rec.ID, &rec.Text, &rec.Coordinates.Lat, &rec.Coordinates.Lng)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading address %s: %v", match.ErrPersistence, id, err)
	}
	return &rec, nil
}

// UpsertAddresses inserts or replaces addresses in one transaction
func (r *SQLAddressRepository) UpsertAddresses(ctx context.Context, records []match.AddressRecord) (int, error) {
	tx, err := r.conn.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %v", match.ErrPersistence, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.conn.Rebind(`
		INSERT INTO address (id, text, lat, lng) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET text = excluded.text, lat = excluded.lat, lng = excluded.lng
	`))
	if err != nil {
		return 0, fmt.Errorf("%w: prepare: %v", match.ErrPersistence, err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.Text, rec.Coordinates.Lat, rec.Coordinates.Lng); err != nil {
			return 0, fmt.Errorf("%w: upserting address %s: %v", match.ErrPersistence, rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", match.ErrPersistence, err)
	}
	return len(records), nil
}

// Count returns the number of stored addresses
func (r *SQLAddressRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.conn.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM address`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: counting addresses: %v", match.ErrPersistence, err)
	}
	return n, nil
}

// MemoryAddressRepository serves addresses from memory
type MemoryAddressRepository struct {
	mu      sync.RWMutex
	records []match.AddressRecord
	byID    map[string]int
}

// NewMemoryAddressRepository creates a repository seeded with records
func NewMemoryAddressRepository(records ...match.AddressRecord) *MemoryAddressRepository {
	r := &MemoryAddressRepository{byID: make(map[string]int)}
	_, _ = r.UpsertAddresses(context.Background(), records)
	return r
}

// GetCandidatesNear returns addresses within radius, nearest first
func (r *MemoryAddressRepository) GetCandidatesNear(_ context.Context, c geo.Coordinate, radiusMeters float64) ([]match.AddressRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []match.AddressRecord
	for _, rec := range r.records {
		if geo.WithinRadius(c, rec.Coordinates, radiusMeters) {
			out = append(out, rec)
		}
	}
	sortByDistance(c, out)
	return out, nil
}

// GetByID returns nil, nil when the address does not exist
func (r *MemoryAddressRepository) GetByID(_ context.Context, id string) (*match.AddressRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	rec := r.records[i]
	return &rec, nil
}

// UpsertAddresses inserts or replaces addresses
func (r *MemoryAddressRepository) UpsertAddresses(_ context.Context, records []match.AddressRecord) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range records {
		if i, ok := r.byID[rec.ID]; ok {
			r.records[i] = rec
			continue
		}
		r.byID[rec.ID] = len(r.records)
		r.records = append(r.records, rec)
	}
	return len(records), nil
}

// Count returns the number of stored addresses
func (r *MemoryAddressRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records), nil
}
