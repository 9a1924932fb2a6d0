package audit

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/locator/dbopen"
	"github.com/hazyhaar/locator/idgen"
	"github.com/hazyhaar/locator/kit"
)

func setupAuditDB(t *testing.T) *sql.DB {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

func TestLogger_LogSync(t *testing.T) {
	db := setupAuditDB(t)
	l := New(db, 10, WithIDGenerator(idgen.Sequence("aud_")))
	defer l.Close()
	ctx := context.Background()

	if err := l.Log(ctx, &Entry{Operation: "resolve", Transport: "http"}); err != nil {
		t.Fatalf("log: %v", err)
	}
	entries, err := l.Query(ctx, Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries: got %d, want 1", len(entries))
	}
	e := entries[0]
	if e.ID != "aud_1" || e.Status != StatusSuccess || e.Parameters != "{}" {
		t.Errorf("entry defaults: %+v", e)
	}
	if e.Timestamp == 0 {
		t.Error("timestamp not set")
	}
}

func TestLogger_LogAsyncFlushedOnClose(t *testing.T) {
	db := setupAuditDB(t)
	l := New(db, 10, WithFlushInterval(time.Hour))

	for i := 0; i < 3; i++ {
		l.LogAsync(&Entry{Operation: "record"})
	}
	l.LogAsync(&Entry{Operation: "record", ErrorMessage: "boom"})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	entries, err := l.Query(context.Background(), Filter{Operation: "record"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("entries: got %d, want 4", len(entries))
	}
	failed, _ := l.Query(context.Background(), Filter{Status: StatusError})
	if len(failed) != 1 || failed[0].ErrorMessage != "boom" {
		t.Errorf("error entries: %+v", failed)
	}
}

func TestLogger_QueryFilters(t *testing.T) {
	db := setupAuditDB(t)
	l := New(db, 10)
	defer l.Close()
	ctx := context.Background()

	old := time.Now().Add(-2 * time.Hour).UnixMilli()
	l.Log(ctx, &Entry{Operation: "resolve", Timestamp: old})
	l.Log(ctx, &Entry{Operation: "resolve"})
	l.Log(ctx, &Entry{Operation: "code"})

	recent, _ := l.Query(ctx, Filter{Since: time.Now().Add(-time.Hour)})
	if len(recent) != 2 {
		t.Errorf("since: got %d, want 2", len(recent))
	}
	resolves, _ := l.Query(ctx, Filter{Operation: "resolve"})
	if len(resolves) != 2 {
		t.Errorf("operation: got %d, want 2", len(resolves))
	}
	if resolves[0].Timestamp < resolves[1].Timestamp {
		t.Error("entries not newest first")
	}
	one, _ := l.Query(ctx, Filter{Limit: 1})
	if len(one) != 1 {
		t.Errorf("limit: got %d, want 1", len(one))
	}
}

func TestLogger_Cleanup(t *testing.T) {
	db := setupAuditDB(t)
	l := New(db, 10)
	defer l.Close()
	ctx := context.Background()

	l.Log(ctx, &Entry{Operation: "resolve", Timestamp: time.Now().Add(-48 * time.Hour).UnixMilli()})
	l.Log(ctx, &Entry{Operation: "resolve"})

	n, err := l.Cleanup(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted: got %d, want 1", n)
	}
}

func TestMiddleware(t *testing.T) {
	db := setupAuditDB(t)
	l := New(db, 10, WithFlushInterval(time.Hour))

	ok := Middleware(l, "get")(func(_ context.Context, req any) (any, error) {
		return req, nil
	})
	fail := Middleware(l, "delete")(func(_ context.Context, _ any) (any, error) {
		return nil, errors.New("not found")
	})

	ctx := kit.WithTransport(context.Background(), "mcp")
	ctx = kit.WithSessionID(ctx, "quic_1")
	ctx = kit.WithRequestID(ctx, "req-1")
	if _, err := ok(ctx, map[string]string{"id": "evt_1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := fail(ctx, map[string]string{"id": "evt_2"}); err == nil {
		t.Fatal("expected error")
	}
	big := strings.Repeat("x", 2*MaxParams)
	ok(ctx, map[string]string{"html": big})
	l.Close()

	entries, err := l.Query(context.Background(), Filter{Operation: "get"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("get entries: got %d, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Transport != "mcp" || e.SessionID != "quic_1" || e.RequestID != "req-1" {
			t.Errorf("context not captured: %+v", e)
		}
		if len(e.Parameters) > MaxParams {
			t.Errorf("parameters not capped: %d bytes", len(e.Parameters))
		}
	}

	failed, _ := l.Query(context.Background(), Filter{Operation: "delete"})
	if len(failed) != 1 || failed[0].Status != StatusError || failed[0].ErrorMessage != "not found" {
		t.Errorf("failed entry: %+v", failed)
	}
}

func TestMiddleware_NilLogger(t *testing.T) {
	ep := Middleware(nil, "get")(func(_ context.Context, req any) (any, error) {
		return req, nil
	})
	got, err := ep(context.Background(), "x")
	if err != nil || got != "x" {
		t.Fatalf("got %v, %v", got, err)
	}
}
