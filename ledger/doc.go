// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package ledger is the single source of truth for vote allotments.

# Consumption

Consume atomically spends allotment for one (participant, poll) pair:

	remaining, err := ledger.Consume(tx, participantID, pollID, 1)

Errors: ErrNotEligible (unverified or voting disallowed), ErrExhausted
(amount exceeds remaining allotment). The check-and-decrement is a single
guarded UPDATE, so concurrent consumes for the same participant serialize on
the row and can never jointly exceed the cap.

The effective cap per poll is:

	min(sessionCap ?? voteAmount, voteAmount)

clamped to 1 under the event's "single" multivote policy. sessionCap is the
optional max_votes_to_use set when the organizer starts the poll.

# Querier

Ledger methods take a Querier (satisfied by *sql.DB and *sql.Tx). Ballot
ingestion passes its transaction so that allotment consumption and the ballot
append are one atomic unit - a crash between them can neither double-spend
nor drop a vote.

# Transfers

TransferService moves unconsumed allotment between participants of the same
event:

	source, target, err := transfers.Transfer(sourceID, targetID, amount)

Preconditions (checked atomically with the mutation): distinct participants,
positive amount, same event, both verified, sufficient source balance. A
source drained to zero loses allow_to_vote; the target always gains it. Both
updated participants are published to the rights bus.
*/
package ledger
