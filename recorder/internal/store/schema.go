package store

// Schema is the DDL for the recorder tables.
const Schema = `
-- Recorded events: one user action on one element, with its locator candidates.
CREATE TABLE IF NOT EXISTS events (
    id            TEXT PRIMARY KEY,
    url           TEXT NOT NULL DEFAULT '',
    action        TEXT NOT NULL DEFAULT '',
    value         TEXT NOT NULL DEFAULT '',
    selector      TEXT NOT NULL,
    selector_kind TEXT NOT NULL,
    match_mode    TEXT NOT NULL DEFAULT '',
    nth           INTEGER NOT NULL DEFAULT 0,
    position      TEXT NOT NULL DEFAULT '{}',
    candidates    TEXT NOT NULL DEFAULT '[]',
    ai_candidates TEXT NOT NULL DEFAULT '[]',
    preview       TEXT NOT NULL DEFAULT '',
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_url ON events(url);
`
