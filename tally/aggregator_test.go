// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package tally_test

import (
	"sync"
	"testing"
	"time"

	"livetally/models"
	"livetally/tally"
	"livetally/testutil"
)

// notifyRecorder counts change signals.
type notifyRecorder struct {
	mu      sync.Mutex
	signals []string
}

func (n *notifyRecorder) TallyChanged(pollID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.signals = append(n.signals, pollID)
}

func (n *notifyRecorder) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.signals)
}

func waitForTotal(t *testing.T, agg *tally.Aggregator, pollID string, want int) tally.Counts {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c, ok := agg.Counts(pollID); ok && c.TotalBallots >= want {
			return c
		}
		time.Sleep(5 * time.Millisecond)
	}
	c, _ := agg.Counts(pollID)
	t.Fatalf("Timed out waiting for %d ballots, have %d", want, c.TotalBallots)
	return c
}

func TestIncrementalMatchesRecompute(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	eventID, _ := testutil.CreateTestEvent(t, conn, cfg, models.PolicyPerEvent)
	pollID := testutil.CreateTestPoll(t, conn, eventID, models.StatusActive)

	p1, _ := testutil.AddTestParticipant(t, conn, eventID, 5, true)
	p2, _ := testutil.AddTestParticipant(t, conn, eventID, 5, true)

	agg := tally.New(conn)
	notify := &notifyRecorder{}
	agg.Start(notify)
	defer agg.Stop()

	// Persist and enqueue the same ballots, as the pipeline does.
	submit := func(participantID, answer string) {
		id := testutil.SubmitTestBallot(t, conn, pollID, participantID, answer)
		agg.Enqueue(models.Ballot{
			ID: id, PollID: pollID, ParticipantID: participantID,
			Answer: answer, SubmittedAt: time.Now(),
		})
	}

	submit(p1, "option-a")
	submit(p1, "option-b")
	submit(p2, "option-a")

	incremental := waitForTotal(t, agg, pollID, 3)

	fresh := tally.New(conn)
	recomputed, err := fresh.RecomputeDB(pollID)
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}

	if incremental.TotalBallots != recomputed.TotalBallots {
		t.Errorf("Total mismatch: incremental %d, recomputed %d", incremental.TotalBallots, recomputed.TotalBallots)
	}
	if incremental.DistinctVoted != recomputed.DistinctVoted {
		t.Errorf("Distinct mismatch: incremental %d, recomputed %d", incremental.DistinctVoted, recomputed.DistinctVoted)
	}
	for answer, n := range recomputed.AnswerCounts {
		if incremental.AnswerCounts[answer] != n {
			t.Errorf("Count mismatch for %s: incremental %d, recomputed %d", answer, incremental.AnswerCounts[answer], n)
		}
	}
	if recomputed.AnswerCounts["option-a"] != 2 || recomputed.AnswerCounts["option-b"] != 1 {
		t.Errorf("Unexpected recomputed counts: %v", recomputed.AnswerCounts)
	}

	if notify.count() != 3 {
		t.Errorf("Expected 3 change signals, got %d", notify.count())
	}
}

// Arrival order must not affect the counters: sums are commutative and
// LastVotedAt follows submission timestamps, not arrival.
func TestOutOfOrderArrival(t *testing.T) {
	conn := testutil.SetupTestDB(t)

	agg := tally.New(conn)
	agg.Start(nil)
	defer agg.Stop()

	base := time.Now()
	newest := models.Ballot{ID: "b3", PollID: "poll1", ParticipantID: "p1", Answer: "a", SubmittedAt: base.Add(2 * time.Second)}
	middle := models.Ballot{ID: "b2", PollID: "poll1", ParticipantID: "p2", Answer: "b", SubmittedAt: base.Add(time.Second)}
	oldest := models.Ballot{ID: "b1", PollID: "poll1", ParticipantID: "p1", Answer: "a", SubmittedAt: base}

	// Newest first.
	agg.Enqueue(newest)
	agg.Enqueue(middle)
	agg.Enqueue(oldest)

	counts := waitForTotal(t, agg, "poll1", 3)
	if counts.AnswerCounts["a"] != 2 || counts.AnswerCounts["b"] != 1 {
		t.Errorf("Unexpected counts: %v", counts.AnswerCounts)
	}
	if counts.DistinctVoted != 2 {
		t.Errorf("Expected 2 distinct voters, got %d", counts.DistinctVoted)
	}
	if !counts.LastVotedAt.Equal(newest.SubmittedAt) {
		t.Errorf("Expected LastVotedAt %v, got %v", newest.SubmittedAt, counts.LastVotedAt)
	}
}

// Recompute overwrites diverged incremental counters; the ballot table wins.
func TestRecomputeRepairsDivergence(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	eventID, _ := testutil.CreateTestEvent(t, conn, cfg, models.PolicyPerEvent)
	pollID := testutil.CreateTestPoll(t, conn, eventID, models.StatusActive)
	p1, _ := testutil.AddTestParticipant(t, conn, eventID, 5, true)

	agg := tally.New(conn)
	agg.Start(nil)
	defer agg.Stop()

	// Ballot persisted twice in memory, once durably: counters diverge.
	id := testutil.SubmitTestBallot(t, conn, pollID, p1, "option-a")
	b := models.Ballot{ID: id, PollID: pollID, ParticipantID: p1, Answer: "option-a", SubmittedAt: time.Now()}
	agg.Enqueue(b)
	agg.Enqueue(b)
	waitForTotal(t, agg, pollID, 2)

	repaired, err := agg.RecomputeDB(pollID)
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	if repaired.TotalBallots != 1 {
		t.Errorf("Expected repaired total 1, got %d", repaired.TotalBallots)
	}

	counts, ok := agg.Counts(pollID)
	if !ok || counts.TotalBallots != 1 {
		t.Errorf("Expected live counters repaired to 1, got %d (ok=%v)", counts.TotalBallots, ok)
	}
}

// Drain is a barrier: everything enqueued before the call is applied by the
// time it returns, with no polling needed.
func TestDrainWaitsForQueuedBallots(t *testing.T) {
	conn := testutil.SetupTestDB(t)

	agg := tally.New(conn)

	// Queue up ballots before the worker exists; Drain must flush the backlog.
	for i := 0; i < 3; i++ {
		agg.Enqueue(models.Ballot{
			ID:            "b" + string(rune('1'+i)),
			PollID:        "poll-1",
			ParticipantID: "participant-1",
			Answer:        "option-a",
			SubmittedAt:   time.Now(),
		})
	}

	agg.Start(nil)
	defer agg.Stop()
	agg.Drain()

	counts, ok := agg.Counts("poll-1")
	if !ok || counts.TotalBallots != 3 {
		t.Errorf("Expected 3 ballots applied after drain, got %d (ok=%v)", counts.TotalBallots, ok)
	}
}

func TestCountsUnknownPoll(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	agg := tally.New(conn)

	counts, ok := agg.Counts("never-seen")
	if ok {
		t.Error("Expected ok=false for unknown poll")
	}
	if counts.TotalBallots != 0 || len(counts.AnswerCounts) != 0 {
		t.Errorf("Expected zero counts, got %+v", counts)
	}
}

func TestRecomputeWarmsUnknownPoll(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	eventID, _ := testutil.CreateTestEvent(t, conn, cfg, models.PolicyPerEvent)
	pollID := testutil.CreateTestPoll(t, conn, eventID, models.StatusActive)
	p1, _ := testutil.AddTestParticipant(t, conn, eventID, 5, true)
	testutil.SubmitTestBallot(t, conn, pollID, p1, "option-a")

	agg := tally.New(conn)
	counts, err := agg.RecomputeDB(pollID)
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	if counts.TotalBallots != 1 || counts.AnswerCounts["option-a"] != 1 {
		t.Errorf("Expected warmed counters, got %+v", counts)
	}

	if live, ok := agg.Counts(pollID); !ok || live.TotalBallots != 1 {
		t.Errorf("Expected Counts to serve warmed poll, got ok=%v %+v", ok, live)
	}
}
