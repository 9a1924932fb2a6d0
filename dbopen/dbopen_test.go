package dbopen_test

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/locator/dbopen"
)

func TestOpenMemory_Pragmas(t *testing.T) {
	db := dbopen.OpenMemory(t)

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Fatalf("foreign_keys = %d, want 1", fk)
	}

	var busy int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busy); err != nil {
		t.Fatal(err)
	}
	if busy != 10_000 {
		t.Fatalf("busy_timeout = %d, want 10000", busy)
	}
}

func TestOpen_SchemaAndMkdir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	db, err := dbopen.Open(path,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(`CREATE TABLE IF NOT EXISTS t (id TEXT PRIMARY KEY)`),
	)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`INSERT INTO t (id) VALUES ('a')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestOpen_PragmasOnEveryConnection(t *testing.T) {
	db, err := dbopen.Open(filepath.Join(t.TempDir(), "locator.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	// Hold the first connection so the second is a fresh one.
	first, err := db.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	second, err := db.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	for i, c := range []*sql.Conn{first, second} {
		var fk int
		if err := c.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
			t.Fatal(err)
		}
		if fk != 1 {
			t.Errorf("conn %d: foreign_keys = %d, want 1", i, fk)
		}
		var mode string
		if err := c.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
			t.Fatal(err)
		}
		if !strings.EqualFold(mode, "wal") {
			t.Errorf("conn %d: journal_mode = %q, want wal", i, mode)
		}
	}
}

func TestOpenMemory_WithSchema(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE events (id TEXT PRIMARY KEY)`))
	if _, err := db.Exec(`INSERT INTO events (id) VALUES ('evt_1')`); err != nil {
		t.Fatalf("insert after schema: %v", err)
	}
}

func TestOpen_SchemaFailureRollsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locator.db")
	_, err := dbopen.Open(path,
		dbopen.WithSchema(`CREATE TABLE events (id TEXT PRIMARY KEY)`),
		dbopen.WithSchema(`NOT SQL`),
	)
	if err == nil || !strings.Contains(err.Error(), "schema 2") {
		t.Fatalf("open: got %v, want schema 2 error", err)
	}

	db, err := dbopen.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'events'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Error("first schema kept after the second failed")
	}
}

func TestDSN(t *testing.T) {
	dsn := dbopen.DSN("data/locator.db", dbopen.WithBusyTimeout(2500), dbopen.WithSynchronous("FULL"))
	path, query, ok := strings.Cut(dsn, "?")
	if !ok || path != "data/locator.db" {
		t.Fatalf("dsn path: %q", dsn)
	}
	q, err := url.ParseQuery(query)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"foreign_keys(1)", "journal_mode(WAL)", "busy_timeout(2500)", "synchronous(FULL)"} {
		if !slices.Contains(q["_pragma"], want) {
			t.Errorf("pragma %s missing from %v", want, q["_pragma"])
		}
	}

	mem := dbopen.DSN(":memory:")
	if !strings.HasPrefix(mem, "file::memory:?") || strings.Contains(mem, "journal_mode") {
		t.Errorf("memory dsn: %q", mem)
	}
}

func TestOpen_BadSchema(t *testing.T) {
	_, err := dbopen.Open(":memory:", dbopen.WithSchema(`NOT SQL`))
	if err == nil {
		t.Fatal("expected schema error")
	}
}

func TestRunTx_Rollback(t *testing.T) {
	db := dbopen.OpenMemory(t)
	if _, err := db.Exec(`CREATE TABLE t (id TEXT PRIMARY KEY)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	ctx := context.Background()

	boom := errors.New("boom")
	err := dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO t (id) VALUES ('x')`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunTx: got %v, want boom", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("rows after rollback: got %d, want 0", n)
	}
}

func TestIsBusy(t *testing.T) {
	if dbopen.IsBusy(nil) {
		t.Error("nil should not be busy")
	}
	if !dbopen.IsBusy(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Error("locked error should be busy")
	}
}

func TestRunTx_BusyRetriesThenFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locator.db")
	schema := dbopen.WithSchema(`CREATE TABLE IF NOT EXISTS t (id TEXT PRIMARY KEY)`)
	holder, err := dbopen.Open(path, schema)
	if err != nil {
		t.Fatal(err)
	}
	defer holder.Close()
	writer, err := dbopen.Open(path, dbopen.WithBusyTimeout(0))
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()

	ctx := context.Background()
	lock, err := holder.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Close()
	if _, err := lock.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		t.Fatal(err)
	}
	defer lock.ExecContext(ctx, `ROLLBACK`)

	calls := 0
	err = dbopen.RunTx(ctx, writer, func(tx *sql.Tx) error {
		calls++
		_, err := tx.Exec(`INSERT INTO t (id) VALUES ('x')`)
		return err
	})
	if !dbopen.IsBusy(err) {
		t.Fatalf("RunTx under a held lock: got %v, want busy", err)
	}
	if calls != 4 {
		t.Fatalf("attempts: got %d, want 4", calls)
	}
}

