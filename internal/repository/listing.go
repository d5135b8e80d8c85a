package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/listing-matcher/internal/db"
	"github.com/listing-matcher/internal/match"
)

// ListingRepository reads and writes listings keyed by id
type ListingRepository interface {
	// Get returns nil, nil when the listing does not exist
	Get(ctx context.Context, id string) (*match.Listing, error)
	Put(ctx context.Context, l match.Listing) error
	PutAll(ctx context.Context, listings []match.Listing) error
	List(ctx context.Context) ([]match.Listing, error)
}

// SQLListingRepository stores listings as JSON documents in the listings table
type SQLListingRepository struct {
	conn *db.Connection
}

// NewSQLListingRepository wraps a migrated connection
func NewSQLListingRepository(conn *db.Connection) *SQLListingRepository {
	return &SQLListingRepository{conn: conn}
}

// Get loads one listing
func (r *SQLListingRepository) Get(ctx context.Context, id string) (*match.Listing, error) {
	var data string
	err := r.conn.DB.QueryRowContext(ctx, r.conn.Rebind(`SELECT data FROM listings WHERE id = ?`), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading listing %s: %v", match.ErrPersistence, id, err)
	}

	var l match.Listing
	if err := json.Unmarshal([]byte(data), &l); err != nil {
		return nil, fmt.Errorf("%w: decoding listing %s: %v", match.ErrPersistence, id, err)
	}
	return &l, nil
}

// Put upserts one listing
func (r *SQLListingRepository) Put(ctx context.Context, l match.Listing) error {
	return r.PutAll(ctx, []match.Listing{l})
}

// PutAll upserts listings in one transaction
func (r *SQLListingRepository) PutAll(ctx context.Context, listings []match.Listing) error {
	tx, err := r.conn.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", match.ErrPersistence, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.conn.Rebind(`
		INSERT INTO listings (id, data) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data
	`))
	if err != nil {
		return fmt.Errorf("%w: prepare: %v", match.ErrPersistence, err)
	}
	defer stmt.Close()

	for _, l := range listings {
		if l.ID == "" {
			return fmt.Errorf("%w: listing without id", match.ErrInvalidInput)
		}
		data, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("failed to encode listing %s: %w", l.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, l.ID, string(data)); err != nil {
			return fmt.Errorf("%w: saving listing %s: %v", match.ErrPersistence, l.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", match.ErrPersistence, err)
	}
	return nil
}

// List returns all listings ordered by id
func (r *SQLListingRepository) List(ctx context.Context) ([]match.Listing, error) {
	rows, err := r.conn.DB.QueryContext(ctx, `SELECT data FROM listings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing listings: %v", match.ErrPersistence, err)
	}
	defer rows.Close()

	var out []match.Listing
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("%w: scanning listing: %v", match.ErrPersistence, err)
		}
		var l match.Listing
		if err := json.Unmarshal([]byte(data), &l); err != nil {
			return nil, fmt.Errorf("%w: decoding listing: %v", match.ErrPersistence, err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating listings: %v", match.ErrPersistence, err)
	}
	return out, nil
}

// MemoryListingRepository keeps listings in insertion order
type MemoryListingRepository struct {
	mu       sync.RWMutex
	listings []match.Listing
	byID     map[string]int
}

// NewMemoryListingRepository creates a repository seeded with listings
func NewMemoryListingRepository(listings ...match.Listing) *MemoryListingRepository {
	r := &MemoryListingRepository{byID: make(map[string]int)}
	_ = r.PutAll(context.Background(), listings)
	return r
}

// Get loads one listing
func (r *MemoryListingRepository) Get(_ context.Context, id string) (*match.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	l := r.listings[i]
	return &l, nil
}

// Put upserts one listing
func (r *MemoryListingRepository) Put(ctx context.Context, l match.Listing) error {
	return r.PutAll(ctx, []match.Listing{l})
}

// PutAll upserts listings
func (r *MemoryListingRepository) PutAll(_ context.Context, listings []match.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range listings {
		if l.ID == "" {
			return fmt.Errorf("%w: listing without id", match.ErrInvalidInput)
		}
		if i, ok := r.byID[l.ID]; ok {
			r.listings[i] = l
			continue
		}
		r.byID[l.ID] = len(r.listings)
		r.listings = append(r.listings, l)
	}
	return nil
}

// List returns all listings in insertion order
func (r *MemoryListingRepository) List(_ context.Context) ([]match.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]match.Listing(nil), r.listings...), nil
}
