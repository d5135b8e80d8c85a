package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/listing-matcher/internal/db"
)

// KV is the opaque key-value persistence boundary used for model and training state.
// Get returns nil, nil when the key is missing.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// MemoryKV keeps values in process memory
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV creates an empty in-memory store
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

// Get returns a copy of the stored value
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of value
func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), value...)
	return nil
}

// SQLKV stores values in the kv table of a PostgreSQL or SQLite database
type SQLKV struct {
	conn *db.Connection
}

// NewSQLKV wraps a migrated connection
func NewSQLKV(conn *db.Connection) *SQLKV {
	return &SQLKV{conn: conn}
}

// Get reads a value by key
func (s *SQLKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.conn.DB.QueryRowContext(ctx, s.conn.Rebind("SELECT value FROM kv WHERE key = ?"), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, nil
}

// Set upserts a value by key
func (s *SQLKV) Set(ctx context.Context, key string, value []byte) error {
	query := s.conn.Rebind(`
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`)
	if _, err := s.conn.DB.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}
