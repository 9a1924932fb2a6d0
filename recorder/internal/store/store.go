// Package store persists recorded events for the recorder.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/locator/dbopen"
)

// SchemaVersion is written to PRAGMA user_version. A database stamped with
// a higher version was created by a newer locator and is refused.
const SchemaVersion = 1

// ErrNewerSchema is returned when opening a database from a newer release.
var ErrNewerSchema = errors.New("store: database schema is newer than this build")

// Store is the event database handle.
type Store struct {
	DB *sql.DB
}

// Open opens or creates the event database at path, applies Schema and
// stamps the schema version.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	opts = append([]dbopen.Option{dbopen.WithMkdirAll(), dbopen.WithSchema(Schema)}, opts...)
	db, err := dbopen.Open(path, opts...)
	if err != nil {
		return nil, err
	}
	if err := stampVersion(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

func stampVersion(db *sql.DB) error {
	var v int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&v); err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}
	if v > SchemaVersion {
		return fmt.Errorf("%w: %d > %d", ErrNewerSchema, v, SchemaVersion)
	}
	if v < SchemaVersion {
		if _, err := db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, SchemaVersion)); err != nil {
			return fmt.Errorf("store: write schema version: %w", err)
		}
	}
	return nil
}

// Ping checks the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
