// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db handles database schema creation.

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.

# Tables

The schema includes:

  - event: event metadata and multivote policy
  - participant: allotment, rights flags, presence
  - poll: lifecycle state and per-ballot constraints
  - vote_cycle: per (participant, poll) consumption state
  - poll_answer: append-only ballot ledger
  - poll_result: persisted tally snapshots
  - vote_transfer: allotment transfer records

# Relationships

	event 1──* participant
	event 1──* poll
	poll 1──* poll_answer
	poll 1──* poll_result
	participant 1──* vote_cycle (one row per poll)
	event 1──* vote_transfer

All foreign keys use ON DELETE CASCADE.

# Portability

One SQL body serves both supported drivers (lib/pq and modernc.org/sqlite):
timestamps are written explicitly by Go code, payloads are TEXT, and $N
placeholders are used in ascending order of first appearance so positional
binding lines up on both drivers.

# Concurrency Anchors

Two constraints carry the engine's consistency guarantees:

  - vote_cycle's single row per (participant, poll) is the target of the
    guarded compare-and-swap UPDATE in the ledger package
  - poll_answer's UNIQUE (poll_id, participant_id, idempotency_token) is the
    backstop that makes concurrent retries collapse to one ballot
*/
package db
