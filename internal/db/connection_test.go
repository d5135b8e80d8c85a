package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	pg := &Connection{Dialect: Postgres}
	lite := &Connection{Dialect: SQLite}

	q := "SELECT id FROM address WHERE lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?"
	assert.Equal(t, "SELECT id FROM address WHERE lat BETWEEN $1 AND $2 AND lng BETWEEN $3 AND $4", pg.Rebind(q))
	assert.Equal(t, q, lite.Rebind(q))
}

func TestNewSQLiteConnection_Migrate(t *testing.T) {
	conn, err := NewSQLiteConnection(filepath.Join(t.TempDir(), "nested", "matcher.db"))
	require.NoError(t, err)
	defer conn.Close()

	ctx := context.Background()
	require.NoError(t, conn.Migrate(ctx))
	require.NoError(t, conn.Migrate(ctx), "migrations must be repeatable")

	for _, table := range []string{"address", "listings", "kv", "audit_decisions"} {
		var name string
		err := conn.DB.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err)
		assert.Equal(t, table, name)
	}
}

func TestNewConnection_EmptyDSN(t *testing.T) {
	_, err := NewConnection("")
	assert.Error(t, err)

	_, err = NewSQLiteConnection("")
	assert.Error(t, err)
}
