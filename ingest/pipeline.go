// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ingest

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"livetally/ledger"
	"livetally/models"
)

// ErrPollNotActive means a ballot arrived for a draft or closed poll. Clients
// treat this as a lifecycle race: refresh state, do not retry the ballot.
var ErrPollNotActive = errors.New("poll is not active")

// Sink receives committed ballots for asynchronous aggregation.
type Sink interface {
	Enqueue(models.Ballot)
}

// Result of a ballot submission. Replay is true when the idempotency token
// matched a previously recorded ballot - the prior id is returned and no
// allotment was consumed.
type Result struct {
	BallotID  string
	Replay    bool
	Remaining int
}

// Pipeline validates and durably records ballots. The ordering inside Submit
// is the crux of the engine's correctness: lifecycle check, idempotent replay
// lookup, allotment consume, and ballot append all run in one transaction, so
// a crash at any point either records both the consumption and the ballot or
// neither.
type Pipeline struct {
	db     *sql.DB
	ledger *ledger.Ledger
	sink   Sink
}

func New(db *sql.DB, l *ledger.Ledger, sink Sink) *Pipeline {
	return &Pipeline{db: db, ledger: l, sink: sink}
}

// Submit records one ballot. Safe to retry with the same idempotency token:
// the retry returns the prior ballot id without consuming allotment again,
// even when the original and the retry race each other.
func (p *Pipeline) Submit(pollID, participantID, answer, idemToken string) (Result, error) {
	if answer == "" {
		return Result{}, fmt.Errorf("answer must not be empty")
	}
	if idemToken == "" {
		return Result{}, fmt.Errorf("idempotency token must not be empty")
	}

	tx, err := p.db.Begin()
	if err != nil {
		return Result{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// (1) Poll must be active.
	var status string
	err = tx.QueryRow(`SELECT status FROM poll WHERE id = $1`, pollID).Scan(&status)
	if err == sql.ErrNoRows {
		return Result{}, sql.ErrNoRows
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to query poll: %w", err)
	}
	if status != models.StatusActive {
		return Result{}, ErrPollNotActive
	}

	// (2) Idempotent replay: a token we have already recorded returns the
	// prior ballot without touching the ledger.
	var priorID string
	err = tx.QueryRow(`
		SELECT id FROM poll_answer
		WHERE poll_id = $1 AND participant_id = $2 AND idempotency_token = $3
	`, pollID, participantID, idemToken).Scan(&priorID)
	if err == nil {
		remaining, rerr := p.ledger.Remaining(tx, participantID, pollID)
		if rerr != nil {
			return Result{}, rerr
		}
		return Result{BallotID: priorID, Replay: true, Remaining: remaining}, nil
	}
	if err != sql.ErrNoRows {
		return Result{}, fmt.Errorf("failed to check idempotency token: %w", err)
	}

	// (3) Consume allotment inside this transaction.
	remaining, err := p.ledger.Consume(tx, participantID, pollID, 1)
	if err != nil {
		return Result{}, err
	}

	// (4) Append the ballot.
	ballot := models.Ballot{
		ID:               uuid.NewString(),
		PollID:           pollID,
		ParticipantID:    participantID,
		Answer:           answer,
		IdempotencyToken: idemToken,
		SubmittedAt:      time.Now(),
	}
	_, err = tx.Exec(`
		INSERT INTO poll_answer (id, poll_id, participant_id, answer, idempotency_token, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ballot.ID, ballot.PollID, ballot.ParticipantID, ballot.Answer, ballot.IdempotencyToken, ballot.SubmittedAt)
	if err != nil {
		if isDuplicateKey(err) {
			// A concurrent retry with the same token won the insert. Roll back
			// (undoing our consume) and return the winner's ballot.
			if rberr := tx.Rollback(); rberr != nil && rberr != sql.ErrTxDone {
				return Result{}, fmt.Errorf("failed to roll back losing retry: %w", rberr)
			}
			return p.replayCommitted(pollID, participantID, idemToken)
		}
		return Result{}, fmt.Errorf("failed to append ballot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("failed to commit ballot: %w", err)
	}

	// (5) Hand off for aggregation. Asynchronous and non-blocking: the
	// caller's success response does not wait for tally propagation.
	if p.sink != nil {
		p.sink.Enqueue(ballot)
	}

	slog.Info("ballot accepted",
		"poll_id", pollID,
		"participant_id", participantID,
		"ballot_id", ballot.ID,
		"remaining", remaining,
	)

	return Result{BallotID: ballot.ID, Remaining: remaining}, nil
}

// replayCommitted re-reads the ballot that beat a losing concurrent retry.
func (p *Pipeline) replayCommitted(pollID, participantID, idemToken string) (Result, error) {
	var priorID string
	err := p.db.QueryRow(`
		SELECT id FROM poll_answer
		WHERE poll_id = $1 AND participant_id = $2 AND idempotency_token = $3
	`, pollID, participantID, idemToken).Scan(&priorID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load winning ballot: %w", err)
	}

	remaining, err := p.ledger.Remaining(p.db, participantID, pollID)
	if err != nil {
		return Result{}, err
	}

	return Result{BallotID: priorID, Replay: true, Remaining: remaining}, nil
}

// isDuplicateKey detects the UNIQUE violation on (poll_id, participant_id,
// idempotency_token) for both supported drivers.
func isDuplicateKey(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "duplicate key value") // postgres
}
