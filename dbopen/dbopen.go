// Package dbopen opens the locator SQLite database. Pragmas travel in the
// DSN, so every pooled connection gets them and not just the first one,
// and schemas are applied in a single transaction.
//
// Default pragmas:
//
//	foreign_keys(1)
//	journal_mode(WAL)     file databases only
//	busy_timeout(10000)
//	synchronous(NORMAL)
//
// Usage:
//
//	import _ "modernc.org/sqlite"
//	db, err := dbopen.Open("locator.db", dbopen.WithSchema(store.Schema))
//
// In tests:
//
//	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
package dbopen

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"testing"
)

const memoryPath = ":memory:"

type settings struct {
	driver      string
	busyTimeout int
	synchronous string
	mkdirAll    bool
	schemas     []string
}

// Option customises Open.
type Option func(*settings)

// WithDriver sets the database/sql driver name. Default "sqlite"; the
// sqltrace package registers a logging wrapper under its own name.
func WithDriver(name string) Option { return func(s *settings) { s.driver = name } }

// WithBusyTimeout sets busy_timeout in milliseconds. Default 10000.
func WithBusyTimeout(ms int) Option { return func(s *settings) { s.busyTimeout = ms } }

// WithSynchronous sets the synchronous mode. Default NORMAL.
func WithSynchronous(mode string) Option { return func(s *settings) { s.synchronous = mode } }

// WithMkdirAll creates the database's parent directory before opening.
func WithMkdirAll() Option { return func(s *settings) { s.mkdirAll = true } }

// WithSchema adds DDL to run once the database is open. Schemas run in the
// order given, all in one transaction.
func WithSchema(ddl string) Option { return func(s *settings) { s.schemas = append(s.schemas, ddl) } }

// DSN returns the connection string Open would use for path.
func DSN(path string, opts ...Option) string {
	return build(opts).dsn(path)
}

func build(opts []Option) settings {
	s := settings{driver: "sqlite", busyTimeout: 10_000, synchronous: "NORMAL"}
	for _, o := range opts {
		o(&s)
	}
	return s
}

func (s settings) dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	if path != memoryPath {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", s.busyTimeout))
	q.Add("_pragma", fmt.Sprintf("synchronous(%s)", s.synchronous))
	if path == memoryPath {
		return "file::memory:?" + q.Encode()
	}
	// Without the file: prefix the driver strips the query before opening,
	// so the path is never parsed as a URI.
	return path + "?" + q.Encode()
}

// Open opens the SQLite database at path, or a private in-memory database
// for ":memory:". The caller must blank-import the driver.
func Open(path string, opts ...Option) (*sql.DB, error) {
	s := build(opts)

	if s.mkdirAll && path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open(s.driver, s.dsn(path))
	if err != nil {
		return nil, fmt.Errorf("dbopen: open %s: %w", path, err)
	}
	if path == memoryPath {
		// Each in-memory connection is its own database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: ping %s: %w", path, err)
	}
	if err := applySchemas(db, s.schemas); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func applySchemas(db *sql.DB, schemas []string) error {
	if len(schemas) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("dbopen: schema: %w", err)
	}
	for i, ddl := range schemas {
		if _, err := tx.Exec(ddl); err != nil {
			tx.Rollback()
			return fmt.Errorf("dbopen: schema %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: schema commit: %w", err)
	}
	return nil
}

// OpenMemory opens an in-memory database closed at the end of the test.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(memoryPath, opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
