// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package tally maintains live per-poll vote counters.

# Update Modes

Two modes, both required:

  - Incremental: one committed ballot applied to running counters, O(1),
    via a worker goroutine fed by Enqueue
  - Full recompute: Recompute re-scans the ballot ledger and overwrites the
    counters; used after restart, at poll closure, and as consistency repair

The ballot table is always the source of truth - the tally is a cache. On
divergence the recomputed values win and a warning is logged; this is a
repair path, not a failure.

# Counters

Per poll: per-answer totals, distinct-voted participant count, total ballots,
and the latest ballot timestamp. All counters are commutative sums, so
out-of-order ballot arrival cannot skew them.

# Wiring

	agg := tally.New(db)
	agg.Start(publisher) // publisher.TallyChanged(pollID) per applied ballot
	defer agg.Stop()

Enqueue never blocks ingestion: a full queue defers the ballot to the next
recompute. Drain blocks until everything already queued has been applied;
the snapshot publisher uses it at poll closure so a queued ballot cannot be
re-applied on top of a recompute that already counted it.
*/
package tally
