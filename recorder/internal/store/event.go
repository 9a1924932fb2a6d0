package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/locator/dbopen"
	"github.com/hazyhaar/locator/dom"
	"github.com/hazyhaar/locator/selector"
)

// Event is a recorded action and the locators computed for its element.
// Selector, SelectorKind, MatchMode and Nth form the primary selector.
type Event struct {
	ID           string               `json:"id"`
	URL          string               `json:"url,omitempty"`
	Action       string               `json:"action,omitempty"`
	Value        string               `json:"value,omitempty"`
	Selector     string               `json:"selector"`
	SelectorKind selector.Kind        `json:"selector_kind"`
	MatchMode    selector.MatchMode   `json:"match_mode,omitempty"`
	Nth          int                  `json:"nth,omitempty"`
	Position     dom.Position         `json:"position"`
	Candidates   []selector.Candidate `json:"candidates"`
	AICandidates []selector.Candidate `json:"ai_candidates"`
	Preview      string               `json:"preview,omitempty"`
	CreatedAt    int64                `json:"created_at"`
	UpdatedAt    int64                `json:"updated_at"`
}

// Primary is the selector written back by an apply.
type Primary struct {
	Selector  string
	Kind      selector.Kind
	MatchMode selector.MatchMode
	Nth       int
}

const eventColumns = `id, url, action, value, selector, selector_kind, match_mode, nth,
	position, candidates, ai_candidates, preview, created_at, updated_at`

// InsertEvent stores a new event.
func (s *Store) InsertEvent(ctx context.Context, e *Event) error {
	pos, _ := json.Marshal(e.Position)
	cands, err := marshalCandidates(e.Candidates)
	if err != nil {
		return err
	}
	ai, err := marshalCandidates(e.AICandidates)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	if e.CreatedAt == 0 {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.URL, e.Action, e.Value, e.Selector, string(e.SelectorKind), string(e.MatchMode), e.Nth,
		string(pos), cands, ai, e.Preview, e.CreatedAt, e.UpdatedAt,
	)
	return err
}

// GetEvent returns the event with id, or nil when there is none.
func (s *Store) GetEvent(ctx context.Context, id string) (*Event, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// ListOptions filters ListEvents.
type ListOptions struct {
	URL   string
	Limit int
}

// ListEvents returns events, newest first.
func (s *Store) ListEvents(ctx context.Context, opts ListOptions) ([]*Event, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	query := `SELECT ` + eventColumns + ` FROM events`
	var args []any
	if opts.URL != "" {
		query += ` WHERE url = ?`
		args = append(args, opts.URL)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, opts.Limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// SetPrimary overwrites the primary selector of an event. It reports
// whether the event exists.
func (s *Store) SetPrimary(ctx context.Context, id string, p Primary) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE events SET selector = ?, selector_kind = ?, match_mode = ?, nth = ?, updated_at = ?
		WHERE id = ?`,
		p.Selector, string(p.Kind), string(p.MatchMode), p.Nth, time.Now().UnixMilli(), id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateAICandidates applies fn to the stored AI candidates inside a
// transaction and saves the result. It reports whether the event exists.
func (s *Store) UpdateAICandidates(ctx context.Context, id string, fn func([]selector.Candidate) []selector.Candidate) (bool, error) {
	found := false
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		found = false
		var raw string
		err := tx.QueryRowContext(ctx, `SELECT ai_candidates FROM events WHERE id = ?`, id).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		var cur []selector.Candidate
		if err := json.Unmarshal([]byte(raw), &cur); err != nil {
			return fmt.Errorf("store: decode ai candidates: %w", err)
		}
		out, err := marshalCandidates(fn(cur))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE events SET ai_candidates = ?, updated_at = ? WHERE id = ?`,
			out, time.Now().UnixMilli(), id); err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// DeleteEvent removes an event. It reports whether the event existed.
func (s *Store) DeleteEvent(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CountEvents returns the number of stored events.
func (s *Store) CountEvents(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(sc scanner) (*Event, error) {
	e := &Event{}
	var kind, mode, pos, cands, ai string
	if err := sc.Scan(
		&e.ID, &e.URL, &e.Action, &e.Value, &e.Selector, &kind, &mode, &e.Nth,
		&pos, &cands, &ai, &e.Preview, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	e.SelectorKind = selector.Kind(kind)
	e.MatchMode = selector.MatchMode(mode)
	if err := json.Unmarshal([]byte(pos), &e.Position); err != nil {
		return nil, fmt.Errorf("store: decode position: %w", err)
	}
	if err := json.Unmarshal([]byte(cands), &e.Candidates); err != nil {
		return nil, fmt.Errorf("store: decode candidates: %w", err)
	}
	if err := json.Unmarshal([]byte(ai), &e.AICandidates); err != nil {
		return nil, fmt.Errorf("store: decode ai candidates: %w", err)
	}
	return e, nil
}

func marshalCandidates(c []selector.Candidate) (string, error) {
	if c == nil {
		c = []selector.Candidate{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("store: encode candidates: %w", err)
	}
	return string(data), nil
}
