package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	txAttempts  = 4
	txBaseDelay = 50 * time.Millisecond
)

// IsBusy reports whether err is SQLite refusing a lock (BUSY or LOCKED,
// including extended codes). Errors that lost their type are matched on
// the driver's message.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// RunTx runs fn in a transaction. A transaction that fails because the
// database is busy is retried from the start, waiting 50ms, 100ms and
// 200ms between attempts.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	delay := txBaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		if err = runOnce(ctx, db, fn); err == nil || !IsBusy(err) {
			return err
		}
		if attempt == txAttempts {
			return fmt.Errorf("dbopen: still busy after %d attempts: %w", attempt, err)
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("dbopen: retry cancelled: %w", ctx.Err())
		case <-t.C:
		}
		delay *= 2
	}
}

func runOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
