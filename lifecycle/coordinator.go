// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package lifecycle

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"livetally/bus"
	"livetally/models"
	"livetally/tally"
)

// ErrAlreadyClosed means a lifecycle transition targeted a closed poll.
// Closed is terminal; there is no reopen.
var ErrAlreadyClosed = errors.New("poll is already closed")

// ErrNotStarted means Close targeted a draft poll.
var ErrNotStarted = errors.New("poll has not been started")

// Finalizer receives the settled snapshot after a poll closes. The snapshot
// is the one recomputed inside the closing transaction, so the finalizer
// emits exactly what was persisted rather than re-reading live counters that
// queued ballots may still be mutating. The snapshot publisher implements it;
// tests stub it.
type Finalizer interface {
	Final(snap models.TallySnapshot)
}

// Coordinator owns poll state transitions. At most one poll per event is
// active at a time: Start closes any currently active sibling (running the
// full closure path, result persistence included) in the same transaction
// that activates the target, so no interleaving can observe two active polls.
type Coordinator struct {
	db  *sql.DB
	agg *tally.Aggregator
	fin Finalizer
	out *bus.Bus[models.LifecycleEvent]
}

func New(db *sql.DB, agg *tally.Aggregator, fin Finalizer, out *bus.Bus[models.LifecycleEvent]) *Coordinator {
	return &Coordinator{db: db, agg: agg, fin: fin, out: out}
}

// closure captures everything a completed in-transaction close needs to
// announce after commit.
type closure struct {
	poll     models.Poll
	resultID string
	snapshot models.TallySnapshot
}

// Start activates a poll. Starting an already-active poll is a no-op that
// returns the current state. The optional cap becomes the poll's per-session
// max_votes_to_use, inherited by vote_cycle rows as they are created.
func (c *Coordinator) Start(pollID string, maxVotesToUse *int) (models.Poll, error) {
	tx, err := c.db.Begin()
	if err != nil {
		return models.Poll{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	poll, err := loadPoll(tx, pollID)
	if err != nil {
		return models.Poll{}, err
	}

	switch poll.Status {
	case models.StatusActive:
		return poll, nil
	case models.StatusClosed:
		return models.Poll{}, ErrAlreadyClosed
	}

	// Close whatever is currently active for this event, result persistence
	// included, before the target goes active.
	var closures []closure
	rows, err := tx.Query(`
		SELECT id FROM poll WHERE event_id = $1 AND status = 'active'
	`, poll.EventID)
	if err != nil {
		return models.Poll{}, fmt.Errorf("failed to find active polls: %w", err)
	}
	var activeIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return models.Poll{}, fmt.Errorf("failed to scan active poll: %w", err)
		}
		activeIDs = append(activeIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return models.Poll{}, fmt.Errorf("failed to find active polls: %w", err)
	}
	for _, id := range activeIDs {
		cl, err := c.closeInTx(tx, id)
		if err != nil {
			return models.Poll{}, err
		}
		closures = append(closures, cl)
	}

	now := time.Now()
	res, err := tx.Exec(`
		UPDATE poll SET status = 'active', started_at = $1, max_votes_to_use = $2
		WHERE id = $3 AND status = 'draft'
	`, now, maxVotesToUse, pollID)
	if err != nil {
		return models.Poll{}, fmt.Errorf("failed to activate poll: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Poll{}, fmt.Errorf("failed to activate poll: %w", err)
	}
	if affected == 0 {
		return models.Poll{}, ErrAlreadyClosed
	}

	poll.Status = models.StatusActive
	poll.StartedAt = &now
	poll.MaxVotesToUse = maxVotesToUse

	if err := tx.Commit(); err != nil {
		return models.Poll{}, fmt.Errorf("failed to commit poll start: %w", err)
	}

	for _, cl := range closures {
		c.announceClosed(cl)
	}
	c.out.Publish(poll.EventID, models.LifecycleEvent{
		EventID: poll.EventID,
		State:   models.StatusActive,
		Poll:    poll,
	})
	slog.Info("poll started", "poll_id", pollID, "event_id", poll.EventID, "closed_siblings", len(closures))

	return poll, nil
}

// Close ends a poll. Terminal: the final tally is recomputed from the ballot
// ledger inside the closing transaction and persisted as a poll_result row,
// then a settled snapshot goes out to subscribers.
func (c *Coordinator) Close(pollID string) (models.ClosePollResponse, error) {
	tx, err := c.db.Begin()
	if err != nil {
		return models.ClosePollResponse{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	poll, err := loadPoll(tx, pollID)
	if err != nil {
		return models.ClosePollResponse{}, err
	}
	switch poll.Status {
	case models.StatusClosed:
		return models.ClosePollResponse{}, ErrAlreadyClosed
	case models.StatusDraft:
		return models.ClosePollResponse{}, ErrNotStarted
	}

	cl, err := c.closeInTx(tx, pollID)
	if err != nil {
		return models.ClosePollResponse{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.ClosePollResponse{}, fmt.Errorf("failed to commit poll close: %w", err)
	}

	c.announceClosed(cl)

	return models.ClosePollResponse{
		ClosedAt: *cl.poll.ClosedAt,
		Snapshot: cl.snapshot,
	}, nil
}

// closeInTx runs the closure path for an active poll inside the caller's
// transaction: guarded status flip, final recompute from the ballot ledger,
// result persistence. Announcement happens after the caller commits.
func (c *Coordinator) closeInTx(tx *sql.Tx, pollID string) (closure, error) {
	now := time.Now()
	res, err := tx.Exec(`
		UPDATE poll SET status = 'closed', closed_at = $1
		WHERE id = $2 AND status = 'active'
	`, now, pollID)
	if err != nil {
		return closure{}, fmt.Errorf("failed to close poll: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return closure{}, fmt.Errorf("failed to close poll: %w", err)
	}
	if affected == 0 {
		return closure{}, ErrAlreadyClosed
	}

	counts, err := c.agg.Recompute(tx, pollID)
	if err != nil {
		return closure{}, err
	}

	poll, err := loadPoll(tx, pollID)
	if err != nil {
		return closure{}, err
	}

	var totalParticipants int
	err = tx.QueryRow(`
		SELECT COUNT(*) FROM participant WHERE event_id = $1 AND allow_to_vote
	`, poll.EventID).Scan(&totalParticipants)
	if err != nil {
		return closure{}, fmt.Errorf("failed to count eligible participants: %w", err)
	}

	resultID := uuid.NewString()
	snapshot := models.TallySnapshot{
		PollResultID:      resultID,
		PollID:            pollID,
		EventID:           poll.EventID,
		AnswerCounts:      counts.AnswerCounts,
		DistinctVoted:     counts.DistinctVoted,
		TotalParticipants: totalParticipants,
		TotalBallots:      counts.TotalBallots,
		ComputedAt:        now,
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return closure{}, fmt.Errorf("failed to marshal result payload: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO poll_result (id, poll_id, payload, hidden, computed_at)
		VALUES ($1, $2, $3, FALSE, $4)
	`, resultID, pollID, string(payload), now)
	if err != nil {
		return closure{}, fmt.Errorf("failed to persist poll result: %w", err)
	}

	_, err = tx.Exec(`UPDATE poll SET final_result_id = $1 WHERE id = $2`, resultID, pollID)
	if err != nil {
		return closure{}, fmt.Errorf("failed to link poll result: %w", err)
	}

	poll.FinalResultID = &resultID
	return closure{poll: poll, resultID: resultID, snapshot: snapshot}, nil
}

func (c *Coordinator) announceClosed(cl closure) {
	c.out.Publish(cl.poll.EventID, models.LifecycleEvent{
		EventID:      cl.poll.EventID,
		State:        models.StatusClosed,
		Poll:         cl.poll,
		PollResultID: cl.resultID,
	})
	if c.fin != nil {
		c.fin.Final(cl.snapshot)
	}
	slog.Info("poll closed",
		"poll_id", cl.poll.ID,
		"event_id", cl.poll.EventID,
		"result_id", cl.resultID,
		"total_ballots", cl.snapshot.TotalBallots,
	)
}

// SetResultHidden toggles visibility of a poll's final result. Returns
// sql.ErrNoRows when the poll has no persisted result yet.
func (c *Coordinator) SetResultHidden(pollID string, hidden bool) error {
	res, err := c.db.Exec(`
		UPDATE poll_result SET hidden = $1
		WHERE id = (SELECT final_result_id FROM poll WHERE id = $2)
	`, hidden, pollID)
	if err != nil {
		return fmt.Errorf("failed to update result visibility: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update result visibility: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowQuerier interface {
	QueryRow(query string, args ...any) *sql.Row
}

func loadPoll(q rowQuerier, pollID string) (models.Poll, error) {
	var p models.Poll
	var maxVotesToUse sql.NullInt64
	var startedAt, closedAt sql.NullTime
	var finalResultID sql.NullString

	err := q.QueryRow(`
		SELECT id, event_id, title, status, min_votes, max_votes, allow_abstain,
		       max_votes_to_use, started_at, closed_at, final_result_id, created_at
		FROM poll WHERE id = $1
	`, pollID).Scan(
		&p.ID, &p.EventID, &p.Title, &p.Status, &p.MinVotes, &p.MaxVotes,
		&p.AllowAbstain, &maxVotesToUse, &startedAt, &closedAt, &finalResultID,
		&p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return models.Poll{}, sql.ErrNoRows
	}
	if err != nil {
		return models.Poll{}, fmt.Errorf("failed to load poll: %w", err)
	}

	if maxVotesToUse.Valid {
		v := int(maxVotesToUse.Int64)
		p.MaxVotesToUse = &v
	}
	if startedAt.Valid {
		t := startedAt.Time
		p.StartedAt = &t
	}
	if closedAt.Valid {
		t := closedAt.Time
		p.ClosedAt = &t
	}
	if finalResultID.Valid {
		s := finalResultID.String
		p.FinalResultID = &s
	}
	return p, nil
}
