// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package lifecycle drives polls through draft, active, and closed.

# Transitions

	draft -> active   Start (auto-closes any active sibling of the same event)
	active -> closed  Close (terminal; persists the final result)

Both transitions are guarded single-statement updates on the status column,
so two racing organizers cannot double-apply one. Closed is terminal - there
is no reopen, and Start on a closed poll fails with ErrAlreadyClosed.

# Exclusivity

At most one poll per event is active. Start closes the active sibling and
activates the target in one transaction; ballot ingestion reads poll status
transactionally, so no ballot can land on a poll observers were never told
was active.

# Closure

Closing recomputes the tally from the ballot ledger inside the closing
transaction, persists it as a poll_result row, links final_result_id, and
after commit publishes the closed lifecycle event. The same in-transaction
snapshot is handed to the Finalizer, so what subscribers receive is exactly
what was persisted, regardless of ballots still queued for incremental
aggregation at close time.
*/
package lifecycle
