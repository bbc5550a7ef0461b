// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"livetally/bus"
	"livetally/models"
)

// ErrTransferPrecondition means a transfer was rejected without any mutation
var ErrTransferPrecondition = errors.New("transfer precondition failed")

// TransferService moves unconsumed vote allotment between participants of the
// same event. The whole operation is one transaction; both UPDATE statements
// carry their preconditions in the WHERE clause, so a transfer racing a
// concurrent consume or another transfer can never overcommit.
type TransferService struct {
	db     *sql.DB
	rights *bus.Bus[models.RightsEvent]
}

func NewTransferService(db *sql.DB, rights *bus.Bus[models.RightsEvent]) *TransferService {
	return &TransferService{db: db, rights: rights}
}

// Transfer moves amount votes from source to target. On success both updated
// participants are returned and rights events are published so connected
// clients reflect the new allotments without polling.
func (s *TransferService) Transfer(sourceID, targetID string, amount int) (models.Participant, models.Participant, error) {
	var none models.Participant

	if sourceID == targetID {
		return none, none, fmt.Errorf("%w: cannot transfer to self", ErrTransferPrecondition)
	}
	if amount <= 0 {
		return none, none, fmt.Errorf("%w: amount must be positive", ErrTransferPrecondition)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return none, none, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	source, err := loadParticipant(tx, sourceID)
	if err != nil {
		return none, none, err
	}
	target, err := loadParticipant(tx, targetID)
	if err != nil {
		return none, none, err
	}

	if source.EventID != target.EventID {
		return none, none, fmt.Errorf("%w: participants belong to different events", ErrTransferPrecondition)
	}
	if !source.Verified || !target.Verified {
		return none, none, fmt.Errorf("%w: both participants must be verified", ErrTransferPrecondition)
	}
	if source.VoteAmount < amount {
		return none, none, fmt.Errorf("%w: source has %d votes, needs %d", ErrTransferPrecondition, source.VoteAmount, amount)
	}

	// Guarded debit: re-checks the balance at update time. A source drained
	// to zero is auto-demoted. The guard is against the event allotment, not
	// allotment minus the active poll's consumption: consumption is
	// poll-scoped state on vote_cycle, and already-cast ballots stand even
	// when the allotment moves.
	res, err := tx.Exec(`
		UPDATE participant
		SET vote_amount = vote_amount - $1,
		    allow_to_vote = CASE WHEN vote_amount - $2 <= 0 THEN FALSE ELSE allow_to_vote END
		WHERE id = $3 AND verified AND vote_amount >= $4
	`, amount, amount, sourceID, amount)
	if err != nil {
		return none, none, fmt.Errorf("failed to debit source: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return none, none, fmt.Errorf("%w: source allotment changed concurrently", ErrTransferPrecondition)
	}

	// Credit always re-grants voting rights on the target.
	res, err = tx.Exec(`
		UPDATE participant
		SET vote_amount = vote_amount + $1, allow_to_vote = TRUE
		WHERE id = $2 AND verified
	`, amount, targetID)
	if err != nil {
		return none, none, fmt.Errorf("failed to credit target: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return none, none, fmt.Errorf("%w: target changed concurrently", ErrTransferPrecondition)
	}

	_, err = tx.Exec(`
		INSERT INTO vote_transfer (id, event_id, source_id, target_id, amount, transferred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.NewString(), source.EventID, sourceID, targetID, amount, time.Now())
	if err != nil {
		return none, none, fmt.Errorf("failed to record transfer: %w", err)
	}

	source, err = loadParticipant(tx, sourceID)
	if err != nil {
		return none, none, err
	}
	target, err = loadParticipant(tx, targetID)
	if err != nil {
		return none, none, err
	}

	if err := tx.Commit(); err != nil {
		return none, none, fmt.Errorf("failed to commit transfer: %w", err)
	}

	slog.Info("votes transferred",
		"event_id", source.EventID,
		"source_id", sourceID,
		"target_id", targetID,
		"amount", amount,
	)

	s.publishRights(source)
	s.publishRights(target)

	return source, target, nil
}

func (s *TransferService) publishRights(p models.Participant) {
	if s.rights == nil {
		return
	}
	s.rights.Publish(p.ID, models.RightsEvent{
		EventID:       p.EventID,
		ParticipantID: p.ID,
		Verified:      p.Verified,
		AllowToVote:   p.AllowToVote,
		VoteAmount:    p.VoteAmount,
	})
}

func loadParticipant(q Querier, id string) (models.Participant, error) {
	var p models.Participant
	err := q.QueryRow(`
		SELECT id, event_id, name, vote_amount, verified, allow_to_vote, online, created_at
		FROM participant
		WHERE id = $1
	`, id).Scan(
		&p.ID, &p.EventID, &p.Name, &p.VoteAmount,
		&p.Verified, &p.AllowToVote, &p.Online, &p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return p, fmt.Errorf("%w: participant %s not found", ErrTransferPrecondition, id)
	}
	if err != nil {
		return p, fmt.Errorf("failed to load participant: %w", err)
	}
	return p, nil
}
