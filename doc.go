// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the Livetally API server.

Livetally is the vote consistency and aggregation engine for live events:
participants spend a finite vote allotment across polls, organizers drive
poll lifecycles, and dashboards follow coalesced tally snapshots over SSE.

# Starting the Server

The server requires environment variables or CLI flags for configuration:

	ORGANIZER_KEY_SALT=... go run main.go

Or with flags:

	go run main.go -p 3324 -t postgres -d "postgres://..."

# Configuration

Required settings:

  - ORGANIZER_KEY_SALT (-organizer-salt): Secret for organizer key HMAC

Optional settings:

  - PORT (-p): Server port (default: 3324)
  - DATABASE_TYPE (-t): sqlite or postgres (default: sqlite)
  - DATABASE_URL (-d): Connection string (default: file:livetally.db)
  - SNAPSHOT_WINDOW_MS (-snapshot-window): Snapshot coalescing window (default: 250)
  - SNAPSHOT_BATCH_SIZE (-snapshot-batch): Snapshot count threshold (default: 32)

# Architecture

The engine is a set of components wired together in main:

  - ledger: vote allotment accounting and transfers (guarded SQL updates)
  - ingest: transactional ballot pipeline with idempotent replay
  - tally: incremental per-poll counters with full-recompute repair
  - lifecycle: poll state transitions with one-active-poll exclusivity
  - publish: coalescing snapshot publisher
  - bus: typed in-process pub/sub feeding the SSE bridge
  - votecache: participant-side durable vote cycle cache
  - handlers, router, middleware: the HTTP surface
  - models, auth, db, cliparse: shared types, keys, schema, configuration

See package documentation for each component.
*/
package main
