// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables needed for the engine.
// Safe to call multiple times - uses IF NOT EXISTS.
//
// The SQL is kept portable between postgres and sqlite: timestamps are always
// written explicitly by Go code, so no NOW()/CURRENT_TIMESTAMP defaults, and
// result payloads are stored as TEXT rather than JSONB.
func CreateSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

const schema = `
-- Events
CREATE TABLE IF NOT EXISTS event (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    multivote_policy TEXT NOT NULL DEFAULT 'single'
        CHECK (multivote_policy IN ('single', 'multiple-per-session', 'multiple-per-event')),
    active BOOLEAN NOT NULL DEFAULT TRUE,
    lobby_open BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP NOT NULL
);

-- Participants
CREATE TABLE IF NOT EXISTS participant (
    id TEXT PRIMARY KEY,
    event_id TEXT NOT NULL REFERENCES event(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    token TEXT NOT NULL UNIQUE,
    vote_amount INTEGER NOT NULL DEFAULT 0 CHECK (vote_amount >= 0),
    verified BOOLEAN NOT NULL DEFAULT FALSE,
    allow_to_vote BOOLEAN NOT NULL DEFAULT FALSE,
    online BOOLEAN NOT NULL DEFAULT FALSE,
    last_seen_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_participant_event_id ON participant(event_id);
CREATE INDEX IF NOT EXISTS idx_participant_token ON participant(token);

-- Polls
CREATE TABLE IF NOT EXISTS poll (
    id TEXT PRIMARY KEY,
    event_id TEXT NOT NULL REFERENCES event(id) ON DELETE CASCADE,
    title TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'active', 'closed')),
    min_votes INTEGER NOT NULL DEFAULT 1,
    max_votes INTEGER NOT NULL DEFAULT 1,
    allow_abstain BOOLEAN NOT NULL DEFAULT FALSE,
    max_votes_to_use INTEGER,
    started_at TIMESTAMP,
    closed_at TIMESTAMP,
    final_result_id TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_poll_event_id ON poll(event_id);
CREATE INDEX IF NOT EXISTS idx_poll_status ON poll(event_id, status);

-- Vote cycles: per (participant, poll) consumption state.
-- The single row per pair is the arena for the compare-and-swap consume guard.
-- counter is the next idempotency ordinal: it advances with every consumed
-- ballot and again on each cycle reset, so client-derived tokens never
-- collide across cycles.
CREATE TABLE IF NOT EXISTS vote_cycle (
    participant_id TEXT NOT NULL REFERENCES participant(id) ON DELETE CASCADE,
    poll_id TEXT NOT NULL REFERENCES poll(id) ON DELETE CASCADE,
    counter INTEGER NOT NULL DEFAULT 1,
    used INTEGER NOT NULL DEFAULT 0 CHECK (used >= 0),
    max_votes_to_use INTEGER,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (participant_id, poll_id)
);

-- Ballots: append-only while the poll is open.
-- The UNIQUE constraint is the idempotency backstop for concurrent retries.
CREATE TABLE IF NOT EXISTS poll_answer (
    id TEXT PRIMARY KEY,
    poll_id TEXT NOT NULL REFERENCES poll(id) ON DELETE CASCADE,
    participant_id TEXT NOT NULL REFERENCES participant(id) ON DELETE CASCADE,
    answer TEXT NOT NULL,
    idempotency_token TEXT NOT NULL,
    submitted_at TIMESTAMP NOT NULL,
    UNIQUE (poll_id, participant_id, idempotency_token)
);

CREATE INDEX IF NOT EXISTS idx_poll_answer_poll_id ON poll_answer(poll_id);
CREATE INDEX IF NOT EXISTS idx_poll_answer_participant ON poll_answer(poll_id, participant_id);

-- Result snapshots: the tally cache persisted at poll closure
CREATE TABLE IF NOT EXISTS poll_result (
    id TEXT PRIMARY KEY,
    poll_id TEXT NOT NULL REFERENCES poll(id) ON DELETE CASCADE,
    payload TEXT NOT NULL,
    hidden BOOLEAN NOT NULL DEFAULT FALSE,
    computed_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_poll_result_poll_id ON poll_result(poll_id);

-- Allotment transfers
CREATE TABLE IF NOT EXISTS vote_transfer (
    id TEXT PRIMARY KEY,
    event_id TEXT NOT NULL REFERENCES event(id) ON DELETE CASCADE,
    source_id TEXT NOT NULL REFERENCES participant(id) ON DELETE CASCADE,
    target_id TEXT NOT NULL REFERENCES participant(id) ON DELETE CASCADE,
    amount INTEGER NOT NULL CHECK (amount > 0),
    transferred_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vote_transfer_event ON vote_transfer(event_id);
`
