// Package journal records heal diagnostics in SQLite so recovery activity
// can be inspected after the fact.
//
//	db, err := journal.Open("domheal.db")
//	j := journal.New(db, journal.WithSession("checkout"))
//	d := heal.NewDriver(tab, heal.Options{Sink: j})
//
// In tests:
//
//	db := journal.OpenMemory(t)
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

type openConfig struct {
	busyTimeout int
	synchronous string
	mkdirAll    bool
}

// OpenOption customises Open.
type OpenOption func(*openConfig)

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) OpenOption { return func(c *openConfig) { c.busyTimeout = ms } }

// WithSynchronous sets PRAGMA synchronous. Default: "NORMAL".
func WithSynchronous(mode string) OpenOption { return func(c *openConfig) { c.synchronous = mode } }

// WithMkdirAll creates parent directories of the database path first.
func WithMkdirAll() OpenOption { return func(c *openConfig) { c.mkdirAll = true } }

// Open opens the journal database at path, applies WAL pragmas and creates
// the schema.
func Open(path string, opts ...OpenOption) (*sql.DB, error) {
	cfg := openConfig{busyTimeout: 10_000, synchronous: "NORMAL"}
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("journal: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout),
		fmt.Sprintf("PRAGMA synchronous = %s", cfg.synchronous),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal: %s: %w", p, err)
		}
	}

	if err := Init(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenMemory opens an in-memory journal for tests. All queries share one
// connection, since every ":memory:" connection is a separate database.
func OpenMemory(t testing.TB) *sql.DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("journal.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
