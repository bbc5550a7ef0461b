// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package publish

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"livetally/bus"
	"livetally/models"
	"livetally/tally"
)

// Publisher decouples tally write-rate from notification-rate. Change signals
// from the aggregator are coalesced - a count threshold OR a time window,
// whichever fires first, triggers one outgoing snapshot - so a ballot burst
// cannot flood subscribers. A single worker goroutine does all emission,
// which keeps snapshot delivery ordered per subscriber.
type Publisher struct {
	db     *sql.DB
	agg    *tally.Aggregator
	out    *bus.Bus[models.TallySnapshot]
	window time.Duration
	batch  int

	signals chan string
	finals  chan finalReq
	done    chan struct{}
	wg      sync.WaitGroup
}

type finalReq struct {
	snap models.TallySnapshot
	ack  chan struct{}
}

func New(db *sql.DB, agg *tally.Aggregator, out *bus.Bus[models.TallySnapshot], window time.Duration, batch int) *Publisher {
	if window <= 0 {
		window = 250 * time.Millisecond
	}
	if batch <= 0 {
		batch = 32
	}
	return &Publisher{
		db:      db,
		agg:     agg,
		out:     out,
		window:  window,
		batch:   batch,
		signals: make(chan string, 1024),
		finals:  make(chan finalReq),
		done:    make(chan struct{}),
	}
}

// TallyChanged schedules a publish for the poll. Called by the aggregator
// once per applied ballot; never blocks (signals beyond the buffer coalesce
// into whatever publish is already scheduled).
func (p *Publisher) TallyChanged(pollID string) {
	select {
	case p.signals <- pollID:
	default:
	}
}

// Final emits the settled closure snapshot, verbatim. The snapshot was
// recomputed inside the closing transaction; re-reading live counters here
// would race ballots still sitting in the aggregation queue and could
// over-count. Blocks until the snapshot is emitted so the caller knows
// subscribers were told.
func (p *Publisher) Final(snap models.TallySnapshot) {
	req := finalReq{snap: snap, ack: make(chan struct{})}
	select {
	case p.finals <- req:
		<-req.ack
	case <-p.done:
	}
}

func (p *Publisher) Start() {
	p.wg.Add(1)
	go p.run()
}

func (p *Publisher) Stop() {
	close(p.done)
	p.wg.Wait()
}

func (p *Publisher) run() {
	defer p.wg.Done()

	pending := make(map[string]int)
	var timer *time.Timer
	var timerC <-chan time.Time

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case pollID := <-p.signals:
			pending[pollID]++
			if timer == nil {
				timer = time.NewTimer(p.window)
				timerC = timer.C
			}
			if pending[pollID] >= p.batch {
				// Count threshold fired mid-burst: emit now, flagged as
				// batch-in-progress so subscribers don't render it as final.
				p.emit(pollID, true)
				delete(pending, pollID)
				if len(pending) == 0 {
					stopTimer()
				}
			}

		case <-timerC:
			// Window elapsed. If more signals already queued up, counts are
			// still settling and the snapshots say so.
			settling := len(p.signals) > 0
			for pollID := range pending {
				p.emit(pollID, settling)
				delete(pending, pollID)
			}
			stopTimer()

		case req := <-p.finals:
			delete(pending, req.snap.PollID)
			if len(pending) == 0 {
				stopTimer()
			}
			// Ballots that committed before the close may still be queued for
			// incremental aggregation. Apply them, then overwrite the live
			// counters from the ballot table so they match the persisted
			// result instead of double-counting.
			p.agg.Drain()
			if _, err := p.agg.RecomputeDB(req.snap.PollID); err != nil {
				slog.Error("failed to settle closed poll tally", "error", err, "poll_id", req.snap.PollID)
			}
			p.out.Publish(req.snap.EventID, req.snap)
			close(req.ack)

		case <-p.done:
			stopTimer()
			return
		}
	}
}

func (p *Publisher) emit(pollID string, batchProcessing bool) {
	counts, ok := p.agg.Counts(pollID)
	if !ok {
		var err error
		counts, err = p.agg.RecomputeDB(pollID)
		if err != nil {
			slog.Error("failed to warm tally for snapshot", "error", err, "poll_id", pollID)
			return
		}
	}

	eventID, totalParticipants, err := p.pollAudience(pollID)
	if err != nil {
		slog.Error("failed to resolve poll audience", "error", err, "poll_id", pollID)
		return
	}

	snap := models.TallySnapshot{
		PollID:            pollID,
		EventID:           eventID,
		AnswerCounts:      counts.AnswerCounts,
		DistinctVoted:     counts.DistinctVoted,
		TotalParticipants: totalParticipants,
		TotalBallots:      counts.TotalBallots,
		BatchProcessing:   batchProcessing,
		ComputedAt:        time.Now(),
	}

	p.out.Publish(eventID, snap)
}

// pollAudience resolves the poll's event and how many participants are
// currently eligible to vote in it.
func (p *Publisher) pollAudience(pollID string) (string, int, error) {
	var eventID string
	var total int
	err := p.db.QueryRow(`
		SELECT pl.event_id,
		       (SELECT COUNT(*) FROM participant pa
		        WHERE pa.event_id = pl.event_id AND pa.allow_to_vote)
		FROM poll pl
		WHERE pl.id = $1
	`, pollID).Scan(&eventID, &total)
	if err != nil {
		return "", 0, fmt.Errorf("failed to query poll audience: %w", err)
	}
	return eventID, total, nil
}
