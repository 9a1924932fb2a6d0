// Package audit keeps an operation-level trail of locator API calls in
// SQLite, next to the recorded events.
//
// Entries are queued and written in batches by a background goroutine.
// When the queue is full the entry is written synchronously instead.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/locator/idgen"
	"github.com/hazyhaar/locator/kit"
)

// Schema is the audit_log DDL.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
    entry_id      TEXT PRIMARY KEY,
    timestamp     INTEGER NOT NULL,
    operation     TEXT NOT NULL,
    transport     TEXT NOT NULL DEFAULT '',
    session_id    TEXT NOT NULL DEFAULT '',
    request_id    TEXT NOT NULL DEFAULT '',
    parameters    TEXT NOT NULL DEFAULT '{}',
    status        TEXT NOT NULL,
    error_message TEXT NOT NULL DEFAULT '',
    duration_ms   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_operation ON audit_log(operation, timestamp DESC);
`

// MaxParams caps the stored JSON parameters. Requests carrying whole pages
// are cut at this length.
const MaxParams = 2048

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Entry is one audited call.
type Entry struct {
	ID           string `json:"id"`
	Timestamp    int64  `json:"timestamp"` // unix ms
	Operation    string `json:"operation"`
	Transport    string `json:"transport,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
	Parameters   string `json:"parameters"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
}

// Filter selects entries for Query. Zero fields match everything.
type Filter struct {
	Operation string
	Status    string
	Since     time.Time
	Limit     int // default 100
}

// Logger persists audit entries.
type Logger struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
	ch     chan *Entry
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once

	flushEvery time.Duration
}

// Option configures a Logger.
type Option func(*Logger)

// WithIDGenerator sets the entry ID generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *Logger) { l.newID = gen }
}

// WithLogger sets the logger used for write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Logger) { l.logger = logger }
}

// WithFlushInterval sets how often queued entries are written.
func WithFlushInterval(d time.Duration) Option {
	return func(l *Logger) { l.flushEvery = d }
}

// New starts an async audit logger on db. The audit_log table must exist.
func New(db *sql.DB, bufferSize int, opts ...Option) *Logger {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	l := &Logger{
		db:         db,
		newID:      idgen.Prefixed("aud_", idgen.Default),
		logger:     slog.Default(),
		ch:         make(chan *Entry, bufferSize),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		flushEvery: 5 * time.Second,
	}
	for _, o := range opts {
		o(l)
	}
	go l.flushLoop()
	return l
}

// Log writes e synchronously.
func (l *Logger) Log(ctx context.Context, e *Entry) error {
	l.fillDefaults(e)
	return insert(ctx, l.db, e)
}

// LogAsync queues e. Falls back to a synchronous write when the queue is
// full.
func (l *Logger) LogAsync(e *Entry) {
	l.fillDefaults(e)
	select {
	case l.ch <- e:
	default:
		l.logger.Warn("audit: buffer full, sync fallback", "operation", e.Operation)
		if err := insert(context.Background(), l.db, e); err != nil {
			l.logger.Error("audit: sync fallback failed", "error", err)
		}
	}
}

// Query returns matching entries, newest first.
func (l *Logger) Query(ctx context.Context, f Filter) ([]*Entry, error) {
	q := `SELECT entry_id, timestamp, operation, transport, session_id, request_id,
		parameters, status, error_message, duration_ms
		FROM audit_log WHERE 1=1`
	var args []any
	if f.Operation != "" {
		q += " AND operation = ?"
		args = append(args, f.Operation)
	}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status)
	}
	if !f.Since.IsZero() {
		q += " AND timestamp >= ?"
		args = append(args, f.Since.UnixMilli())
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " ORDER BY timestamp DESC, entry_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Operation, &e.Transport, &e.SessionID,
			&e.RequestID, &e.Parameters, &e.Status, &e.ErrorMessage, &e.DurationMs); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Cleanup deletes entries older than maxAge.
func (l *Logger) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	threshold := time.Now().Add(-maxAge).UnixMilli()
	res, err := l.db.ExecContext(ctx, "DELETE FROM audit_log WHERE timestamp < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("audit: cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close drains the queue and stops the flush goroutine. Safe to call more
// than once.
func (l *Logger) Close() error {
	l.once.Do(func() { close(l.stop) })
	<-l.done
	return nil
}

// Middleware audits every call of the wrapped endpoint under operation.
func Middleware(l *Logger, operation string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		if l == nil {
			return next
		}
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			caller := kit.CallerFrom(ctx)
			e := &Entry{
				Timestamp:  start.UnixMilli(),
				Operation:  operation,
				Transport:  caller.Transport,
				SessionID:  caller.SessionID,
				RequestID:  caller.RequestID,
				Parameters: params(req),
				DurationMs: time.Since(start).Milliseconds(),
			}
			if err != nil {
				e.Status = StatusError
				e.ErrorMessage = err.Error()
			}
			l.LogAsync(e)
			return resp, err
		}
	}
}

func params(req any) string {
	if req == nil {
		return "{}"
	}
	b, err := json.Marshal(req)
	if err != nil {
		return "{}"
	}
	if len(b) > MaxParams {
		b = b[:MaxParams]
	}
	return string(b)
}

func (l *Logger) fillDefaults(e *Entry) {
	if e.ID == "" {
		e.ID = l.newID()
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}
	if e.Parameters == "" {
		e.Parameters = "{}"
	}
	if e.Status == "" {
		if e.ErrorMessage != "" {
			e.Status = StatusError
		} else {
			e.Status = StatusSuccess
		}
	}
}

func (l *Logger) flushLoop() {
	defer close(l.done)
	ticker := time.NewTicker(l.flushEvery)
	defer ticker.Stop()
	batch := make([]*Entry, 0, 100)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := l.writeBatch(ctx, batch); err != nil {
			l.logger.Error("audit: flush", "error", err, "entries", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-l.stop:
			for {
				select {
				case e := <-l.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		case e := <-l.ch:
			batch = append(batch, e)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (l *Logger) writeBatch(ctx context.Context, batch []*Entry) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, e := range batch {
		if err := insert(ctx, tx, e); err != nil {
			return fmt.Errorf("entry %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insert(ctx context.Context, db execer, e *Entry) error {
	_, err := db.ExecContext(ctx, `INSERT INTO audit_log
		(entry_id, timestamp, operation, transport, session_id, request_id,
		 parameters, status, error_message, duration_ms)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Timestamp, e.Operation, e.Transport, e.SessionID, e.RequestID,
		e.Parameters, e.Status, e.ErrorMessage, e.DurationMs)
	return err
}
