// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package ingest validates and durably records incoming ballots.

# Submission Order

Submit runs five steps, the first four in one transaction:

 1. lifecycle check - the poll must be active (ErrPollNotActive)
 2. idempotent replay lookup - a seen token returns the prior ballot id
    without consuming allotment; replay is success, not an error
 3. ledger consume - the atomic allotment decrement (ErrNotEligible,
    ErrExhausted surface from the ledger without a ballot being written)
 4. ballot append to the append-only poll_answer table
 5. after commit, non-blocking enqueue to the tally aggregator

Allotment consumption and the ballot append share the transaction, so a crash
between them either records both or neither - never a double-spend, never a
silently dropped vote.

# Concurrent Retries

Two in-flight submissions with the same idempotency token may both pass the
replay lookup. The UNIQUE constraint on (poll_id, participant_id,
idempotency_token) arbitrates: the loser's transaction rolls back (undoing
its consume) and the winner's ballot id is returned to both callers.
*/
package ingest
