// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"livetally/models"
)

var (
	// ErrNotEligible means the participant is unverified or voting is disallowed
	ErrNotEligible = errors.New("participant not eligible to vote")
	// ErrExhausted means the requested amount exceeds the remaining allotment
	ErrExhausted = errors.New("vote allotment exhausted")
)

// Querier is the subset of *sql.DB and *sql.Tx the ledger needs. Ballot
// ingestion passes its transaction here so allotment consumption and the
// ballot append commit or roll back as one unit.
type Querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Status is the consumption state for one (participant, poll) pair.
type Status struct {
	Verified     bool
	AllowToVote  bool
	VoteAmount   int
	Policy       string
	Counter      int
	Used         int
	EffectiveCap int
}

// Remaining returns how many votes the participant may still cast in the poll.
func (s Status) Remaining() int {
	r := s.EffectiveCap - s.Used
	if r < 0 {
		return 0
	}
	return r
}

// Ledger is the single source of truth for "can this participant still vote".
// All mutation goes through guarded single-statement updates, so two
// concurrent ballots can never both spend the last unit of allotment.
type Ledger struct{}

func New() *Ledger {
	return &Ledger{}
}

// Status reads the current consumption state without mutating it. A missing
// vote_cycle row reads as counter=1, used=0. Counter is the next idempotency
// ordinal: always used+1 within a cycle, and it keeps advancing across
// resets.
func (l *Ledger) Status(q Querier, participantID, pollID string) (Status, error) {
	var st Status
	var cycleCap, pollCap sql.NullInt64

	err := q.QueryRow(`
		SELECT p.verified, p.allow_to_vote, p.vote_amount, e.multivote_policy,
		       pl.max_votes_to_use,
		       COALESCE(vc.counter, 1), COALESCE(vc.used, 0), vc.max_votes_to_use
		FROM participant p
		JOIN event e ON e.id = p.event_id
		JOIN poll pl ON pl.id = $1
		LEFT JOIN vote_cycle vc ON vc.participant_id = p.id AND vc.poll_id = pl.id
		WHERE p.id = $2
	`, pollID, participantID).Scan(
		&st.Verified, &st.AllowToVote, &st.VoteAmount, &st.Policy,
		&pollCap, &st.Counter, &st.Used, &cycleCap,
	)
	if err != nil {
		return Status{}, fmt.Errorf("failed to read vote cycle status: %w", err)
	}

	// The cycle row's session cap wins once it exists; before the first ballot
	// the poll's cap applies.
	sessionCap := cycleCap
	if !sessionCap.Valid {
		sessionCap = pollCap
	}

	st.EffectiveCap = effectiveCap(st.Policy, st.VoteAmount, sessionCap)
	return st, nil
}

// Remaining implements the getRemaining contract: allotment still available
// for the participant in this poll.
func (l *Ledger) Remaining(q Querier, participantID, pollID string) (int, error) {
	st, err := l.Status(q, participantID, pollID)
	if err != nil {
		return 0, err
	}
	return st.Remaining(), nil
}

// Consume atomically spends amount units of the participant's allotment for
// the poll. The consumption guard lives in the UPDATE's WHERE clause, so the
// check and the decrement are one statement: under any interleaving of
// concurrent calls, used never exceeds the effective cap. counter advances
// with used, keeping it the next idempotency ordinal.
//
// Returns the allotment remaining after consumption. Fails with
// ErrNotEligible or ErrExhausted without mutating anything.
func (l *Ledger) Consume(q Querier, participantID, pollID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("consume amount must be positive, got %d", amount)
	}

	st, err := l.Status(q, participantID, pollID)
	if err != nil {
		return 0, err
	}
	if !st.Verified || !st.AllowToVote {
		return 0, ErrNotEligible
	}

	now := time.Now()

	// Create the cycle row on first ballot attempt, inheriting the poll's
	// session cap. Lost races are fine - the guard below runs either way.
	_, err = q.Exec(`
		INSERT INTO vote_cycle (participant_id, poll_id, counter, used, max_votes_to_use, updated_at)
		SELECT $1, $2, 1, 0, max_votes_to_use, $3 FROM poll WHERE id = $4
		ON CONFLICT (participant_id, poll_id) DO NOTHING
	`, participantID, pollID, now, pollID)
	if err != nil {
		return 0, fmt.Errorf("failed to create vote cycle: %w", err)
	}

	// Compare-and-swap: both cap conditions must still hold at update time.
	// The first bounds used by the participant's full event allotment, the
	// second by the session cap (clamped to 1 under the single policy).
	res, err := q.Exec(`
		UPDATE vote_cycle
		SET used = used + $1, counter = counter + $2, updated_at = $3
		WHERE participant_id = $4 AND poll_id = $5
		  AND used + $6 <= (SELECT vote_amount FROM participant WHERE id = $7)
		  AND used + $8 <= (CASE
		        WHEN $9 = 'single' THEN 1
		        WHEN max_votes_to_use IS NOT NULL THEN max_votes_to_use
		        ELSE (SELECT vote_amount FROM participant WHERE id = $10)
		      END)
	`, amount, amount, now, participantID, pollID, amount, participantID, amount, st.Policy, participantID)
	if err != nil {
		return 0, fmt.Errorf("failed to consume allotment: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read consume result: %w", err)
	}
	if n == 0 {
		return 0, ErrExhausted
	}

	after, err := l.Status(q, participantID, pollID)
	if err != nil {
		return 0, err
	}
	return after.Remaining(), nil
}

// ResetCycle starts a fresh vote cycle for the participant in the poll:
// consumption returns to zero and counter advances once more, so idempotency
// tokens minted in the new cycle cannot collide with the old one's.
// keepSessionCap controls whether the session-specific cap survives the
// reset.
func (l *Ledger) ResetCycle(q Querier, participantID, pollID string, keepSessionCap bool) error {
	var res sql.Result
	var err error
	if keepSessionCap {
		res, err = q.Exec(`
			UPDATE vote_cycle SET used = 0, counter = counter + 1, updated_at = $1
			WHERE participant_id = $2 AND poll_id = $3
		`, time.Now(), participantID, pollID)
	} else {
		res, err = q.Exec(`
			UPDATE vote_cycle SET used = 0, counter = counter + 1, max_votes_to_use = NULL, updated_at = $1
			WHERE participant_id = $2 AND poll_id = $3
		`, time.Now(), participantID, pollID)
	}
	if err != nil {
		return fmt.Errorf("failed to reset vote cycle: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// effectiveCap bounds a cycle by the smaller of the session cap and the
// participant's event allotment, clamped to one ballot under the single
// multivote policy.
func effectiveCap(policy string, voteAmount int, sessionCap sql.NullInt64) int {
	limit := voteAmount
	if sessionCap.Valid && int(sessionCap.Int64) < limit {
		limit = int(sessionCap.Int64)
	}
	if policy == models.PolicySingle && limit > 1 {
		limit = 1
	}
	return limit
}
