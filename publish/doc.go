// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package publish turns tally changes into coalesced snapshot notifications.

# Coalescing

Change signals from the aggregator accumulate per poll. A snapshot goes out
when either trigger fires:

  - count threshold: the poll accumulated SnapshotBatch signals
  - time window: SnapshotWindow elapsed since the first unpublished signal

During a burst the emitted snapshots carry batch_processing=true so clients
can render them as provisional. Final is called synchronously at poll
closure with the snapshot recomputed inside the closing transaction and
emits it verbatim; before emitting it drains the aggregation queue and
resettles the live counters from the ballot table, so ballots queued at
close time are neither lost nor double-counted.

Snapshots publish to the tally bus keyed by event id; the SSE layer fans them
out to stream subscribers.
*/
package publish
