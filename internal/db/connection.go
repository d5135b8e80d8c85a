package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect identifies the SQL flavour behind a connection
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite3"
	}
	return "postgres"
}

// Connection holds the database connection
type Connection struct {
	DB      *sql.DB
	Dialect Dialect
}

// NewConnection opens a PostgreSQL connection from a DSN or URL
func NewConnection(dsn string) (*Connection, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty postgres dsn")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)

	return &Connection{DB: db, Dialect: Postgres}, nil
}

// NewSQLiteConnection opens (creating if needed) a SQLite database file
func NewSQLiteConnection(path string) (*Connection, error) {
	if path == "" {
		return nil, fmt.Errorf("empty sqlite path")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Connection{DB: db, Dialect: SQLite}, nil
}

// Close closes the database connection
func (c *Connection) Close() error {
	return c.DB.Close()
}

// Rebind rewrites ? placeholders into the connection's dialect
func (c *Connection) Rebind(query string) string {
	if c.Dialect != Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Migrate creates the tables used by the matcher if they do not exist
func (c *Connection) Migrate(ctx context.Context) error {
	blob := "BYTEA"
	float := "DOUBLE PRECISION"
	if c.Dialect == SQLite {
		blob = "BLOB"
		float = "REAL"
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS address (
			id   TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			lat  %[1]s NOT NULL,
			lng  %[1]s NOT NULL
		)`, float),
		`CREATE INDEX IF NOT EXISTS idx_address_lat_lng ON address (lat, lng)`,
		`CREATE TABLE IF NOT EXISTS listings (
			id   TEXT PRIMARY KEY,
			data TEXT NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value %s NOT NULL
		)`, blob),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS audit_decisions (
			listing_id    TEXT NOT NULL,
			address_id    TEXT NOT NULL DEFAULT '',
			decision      TEXT NOT NULL,
			method        TEXT NOT NULL DEFAULT '',
			score         %[1]s NOT NULL DEFAULT 0,
			confidence    TEXT NOT NULL DEFAULT '',
			model_version INTEGER NOT NULL DEFAULT 0,
			detail        TEXT NOT NULL DEFAULT '',
			decided_by    TEXT NOT NULL DEFAULT '',
			decided_at    TIMESTAMP NOT NULL
		)`, float),
		`CREATE INDEX IF NOT EXISTS idx_audit_decisions_listing ON audit_decisions (listing_id, decided_at)`,
	}

	for _, stmt := range statements {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate %s schema: %w", c.Dialect, err)
		}
	}
	return nil
}
