// Package sqltrace logs every SQL statement run against modernc.org/sqlite.
//
// It registers a "sqlite-trace" driver that wraps the standard "sqlite"
// driver at the database/sql/driver level. Switching the driver name is
// the only change needed:
//
//	db, err := dbopen.Open("locator.db", dbopen.WithDriver(sqltrace.DriverName))
//
// Statements log at Debug, at Warn when slower than SlowQuery and at Error
// when they fail. The request ID from the context is attached so a query
// can be tied to the HTTP or MCP call that issued it.
package sqltrace

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	sqlite "modernc.org/sqlite"

	"github.com/hazyhaar/locator/kit"
)

// DriverName is the database/sql name of the tracing driver.
const DriverName = "sqlite-trace"

// SlowQuery is the duration above which a statement logs at Warn.
const SlowQuery = 100 * time.Millisecond

var logger atomic.Pointer[slog.Logger]

// SetLogger sets the logger statements are written to. nil restores
// slog.Default.
func SetLogger(l *slog.Logger) {
	logger.Store(l)
}

func getLogger() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return slog.Default()
}

func init() {
	sql.Register(DriverName, &Driver{Driver: &sqlite.Driver{}})
}

// Driver wraps another driver and traces its statements.
type Driver struct {
	driver.Driver
}

func (d *Driver) Open(name string) (driver.Conn, error) {
	c, err := d.Driver.Open(name)
	if err != nil {
		return nil, err
	}
	return &tracingConn{Conn: c}, nil
}

type tracingConn struct {
	driver.Conn
}

func (c *tracingConn) Prepare(query string) (driver.Stmt, error) {
	stmt, err := c.Conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &tracingStmt{Stmt: stmt, query: query}, nil
}

func (c *tracingConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	pc, ok := c.Conn.(driver.ConnPrepareContext)
	if !ok {
		return c.Prepare(query)
	}
	stmt, err := pc.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &tracingStmt{Stmt: stmt, query: query}, nil
}

func (c *tracingConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if bc, ok := c.Conn.(driver.ConnBeginTx); ok {
		return bc.BeginTx(ctx, opts)
	}
	return c.Conn.Begin() //nolint:staticcheck
}

type tracingStmt struct {
	driver.Stmt
	query string
}

func (s *tracingStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	start := time.Now()
	var result driver.Result
	var err error
	if ec, ok := s.Stmt.(driver.StmtExecContext); ok {
		result, err = ec.ExecContext(ctx, args)
	} else {
		result, err = s.Stmt.Exec(namedToValues(args)) //nolint:staticcheck
	}
	s.record(ctx, "exec", time.Since(start), err)
	return result, err
}

func (s *tracingStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	start := time.Now()
	var rows driver.Rows
	var err error
	if qc, ok := s.Stmt.(driver.StmtQueryContext); ok {
		rows, err = qc.QueryContext(ctx, args)
	} else {
		rows, err = s.Stmt.Query(namedToValues(args)) //nolint:staticcheck
	}
	s.record(ctx, "query", time.Since(start), err)
	return rows, err
}

func (s *tracingStmt) record(ctx context.Context, op string, d time.Duration, err error) {
	// Pragmas run on every new connection; only slow or failed ones matter.
	if err == nil && d < 10*time.Millisecond && strings.HasPrefix(s.query, "PRAGMA ") {
		return
	}

	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	} else if d > SlowQuery {
		level = slog.LevelWarn
	}
	l := getLogger()
	if !l.Enabled(ctx, level) {
		return
	}

	attrs := []slog.Attr{
		slog.String("component", "sql"),
		slog.String("op", op),
		slog.String("query", compact(s.query)),
		slog.Duration("duration", d),
	}
	if id := kit.GetRequestID(ctx); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.LogAttrs(ctx, level, "sqltrace: statement", attrs...)
}

// compact folds the whitespace of multi-line statements.
func compact(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

func namedToValues(named []driver.NamedValue) []driver.Value {
	vals := make([]driver.Value, len(named))
	for i, nv := range named {
		vals[i] = nv.Value
	}
	return vals
}
