// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package tally

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"livetally/models"
)

// Notifier receives a signal whenever a poll's counters changed. The snapshot
// publisher implements it; tests stub it.
type Notifier interface {
	TallyChanged(pollID string)
}

// Counts is a read-only copy of one poll's live tally.
type Counts struct {
	AnswerCounts  map[string]int
	DistinctVoted int
	TotalBallots  int
	LastVotedAt   time.Time
}

// pollCounts is the mutable aggregate for one poll. All sums are commutative,
// so out-of-order ballot arrival cannot skew them; only LastVotedAt depends
// on ballot timestamps (not arrival order).
type pollCounts struct {
	answers     map[string]int
	voters      map[string]struct{}
	total       int
	lastVotedAt time.Time
}

func newPollCounts() *pollCounts {
	return &pollCounts{
		answers: make(map[string]int),
		voters:  make(map[string]struct{}),
	}
}

func (pc *pollCounts) apply(b models.Ballot) {
	pc.answers[b.Answer]++
	pc.voters[b.ParticipantID] = struct{}{}
	pc.total++
	if b.SubmittedAt.After(pc.lastVotedAt) {
		pc.lastVotedAt = b.SubmittedAt
	}
}

func (pc *pollCounts) snapshot() Counts {
	answers := make(map[string]int, len(pc.answers))
	for k, v := range pc.answers {
		answers[k] = v
	}
	return Counts{
		AnswerCounts:  answers,
		DistinctVoted: len(pc.voters),
		TotalBallots:  pc.total,
		LastVotedAt:   pc.lastVotedAt,
	}
}

// equal compares the externally visible counters. Voter identity is compared
// by cardinality only; the divergence repair path replaces the whole struct.
func (pc *pollCounts) equal(other *pollCounts) bool {
	if pc.total != other.total || len(pc.voters) != len(other.voters) || len(pc.answers) != len(other.answers) {
		return false
	}
	for k, v := range pc.answers {
		if other.answers[k] != v {
			return false
		}
	}
	return true
}

// Aggregator maintains live per-poll counters over the append-only ballot
// ledger. Incremental updates are O(1) per ballot and flow through a worker
// goroutine, so ballot ingestion never blocks on aggregation. The ballot
// table stays the source of truth: Recompute re-derives the counters from it
// and always wins on divergence.
type Aggregator struct {
	db    *sql.DB
	queue chan models.Ballot
	flush chan chan struct{}
	done  chan struct{}
	wg    sync.WaitGroup

	mu    sync.Mutex
	polls map[string]*pollCounts
}

func New(db *sql.DB) *Aggregator {
	return &Aggregator{
		db:    db,
		queue: make(chan models.Ballot, 1024),
		flush: make(chan chan struct{}),
		done:  make(chan struct{}),
		polls: make(map[string]*pollCounts),
	}
}

// Start launches the worker that drains the ballot queue. notify may be nil.
func (a *Aggregator) Start(notify Notifier) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case b := <-a.queue:
				a.apply(b)
				if notify != nil {
					notify.TallyChanged(b.PollID)
				}
			case ack := <-a.flush:
				// Apply whatever is already queued, silently: drain runs on
				// the closure path, where a change signal would schedule a
				// publish after the final snapshot.
				for more := true; more; {
					select {
					case b := <-a.queue:
						a.apply(b)
					default:
						more = false
					}
				}
				close(ack)
			case <-a.done:
				return
			}
		}
	}()
}

// Drain blocks until every ballot enqueued before the call has been applied.
// The closure path uses it so a final recompute cannot be trailed by a stale
// incremental apply.
func (a *Aggregator) Drain() {
	ack := make(chan struct{})
	select {
	case a.flush <- ack:
		<-ack
	case <-a.done:
	}
}

// Stop drains nothing further and waits for the worker to exit.
func (a *Aggregator) Stop() {
	close(a.done)
	a.wg.Wait()
}

// Enqueue hands a committed ballot to the incremental path. Never blocks: on
// a full queue the ballot is dropped from the incremental path and the next
// recompute repairs the counters.
func (a *Aggregator) Enqueue(b models.Ballot) {
	select {
	case a.queue <- b:
	default:
		slog.Warn("tally queue full, ballot deferred to recompute",
			"poll_id", b.PollID, "ballot_id", b.ID)
	}
}

func (a *Aggregator) apply(b models.Ballot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pc, ok := a.polls[b.PollID]
	if !ok {
		pc = newPollCounts()
		a.polls[b.PollID] = pc
	}
	pc.apply(b)
}

// Counts returns a copy of the live counters for a poll. ok is false when the
// aggregator has never seen the poll (use Recompute to warm it).
func (a *Aggregator) Counts(pollID string) (Counts, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pc, ok := a.polls[pollID]
	if !ok {
		return Counts{AnswerCounts: map[string]int{}}, false
	}
	return pc.snapshot(), true
}

// Recompute re-derives a poll's counters by scanning the ballot ledger. Used
// for recovery after restart, for poll closure, and as the periodic
// consistency repair: if the incremental counters diverged, the recomputed
// values win and the divergence is logged.
func (a *Aggregator) Recompute(q queryer, pollID string) (Counts, error) {
	rows, err := q.Query(`
		SELECT id, poll_id, participant_id, answer, submitted_at
		FROM poll_answer
		WHERE poll_id = $1
	`, pollID)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to scan ballots: %w", err)
	}
	defer rows.Close()

	fresh := newPollCounts()
	for rows.Next() {
		var b models.Ballot
		if err := rows.Scan(&b.ID, &b.PollID, &b.ParticipantID, &b.Answer, &b.SubmittedAt); err != nil {
			return Counts{}, fmt.Errorf("failed to scan ballot: %w", err)
		}
		fresh.apply(b)
	}
	if err := rows.Err(); err != nil {
		return Counts{}, fmt.Errorf("failed to scan ballots: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if prev, ok := a.polls[pollID]; ok && !prev.equal(fresh) {
		slog.Warn("tally divergence repaired by recompute",
			"poll_id", pollID,
			"incremental_total", prev.total,
			"recomputed_total", fresh.total,
		)
	}
	a.polls[pollID] = fresh

	return fresh.snapshot(), nil
}

// queryer covers *sql.DB and *sql.Tx for Recompute, which the lifecycle
// coordinator runs inside its closing transaction.
type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

// RecomputeDB is Recompute against the aggregator's own connection.
func (a *Aggregator) RecomputeDB(pollID string) (Counts, error) {
	return a.Recompute(a.db, pollID)
}
