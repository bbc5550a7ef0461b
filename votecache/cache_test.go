// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package votecache

import (
	"os"
	"path/filepath"
	"testing"

	"livetally/models"
)

func TestRecordVoteFlipsToExhausted(t *testing.T) {
	c := New(NewMemoryStore())

	st, err := c.RecordVote("ev1", "poll1", models.PolicySingle)
	if err != nil {
		t.Fatalf("RecordVote failed: %v", err)
	}
	if st.Used != 1 {
		t.Errorf("Expected used 1, got %d", st.Used)
	}
	if st.State != StateExhausted {
		t.Errorf("Expected exhausted under single policy, got %q", st.State)
	}
}

func TestRecordVoteRespectsSessionCap(t *testing.T) {
	c := New(NewMemoryStore())

	limit := 2
	_, err := c.Sync("ev1", models.VoteStatusResponse{
		PollID:       "poll1",
		Used:         0,
		Remaining:    2,
		EffectiveCap: limit,
		CycleCounter: 1,
	})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	st, err := c.RecordVote("ev1", "poll1", models.PolicyPerSession)
	if err != nil {
		t.Fatalf("RecordVote failed: %v", err)
	}
	if st.State != StateActive {
		t.Errorf("Expected active after 1 of 2 votes, got %q", st.State)
	}

	st, err = c.RecordVote("ev1", "poll1", models.PolicyPerSession)
	if err != nil {
		t.Fatalf("RecordVote failed: %v", err)
	}
	if st.State != StateExhausted {
		t.Errorf("Expected exhausted after 2 of 2 votes, got %q", st.State)
	}
}

func TestRestoreVoteCounterFromExhausted(t *testing.T) {
	c := New(NewMemoryStore())

	for i := 0; i < 3; i++ {
		if _, err := c.RecordVote("ev1", "poll1", models.PolicyPerEvent); err != nil {
			t.Fatalf("RecordVote failed: %v", err)
		}
	}
	if _, err := c.MarkExhausted("ev1", "poll1"); err != nil {
		t.Fatalf("MarkExhausted failed: %v", err)
	}

	counter, err := c.RestoreVoteCounter("ev1", "poll1")
	if err != nil {
		t.Fatalf("RestoreVoteCounter failed: %v", err)
	}
	if counter != 4 {
		t.Errorf("Expected restored counter 4 after 3 used votes, got %d", counter)
	}
}

func TestRestoreVoteCounterUnknownPoll(t *testing.T) {
	c := New(NewMemoryStore())

	counter, err := c.RestoreVoteCounter("ev1", "never-seen")
	if err != nil {
		t.Fatalf("RestoreVoteCounter failed: %v", err)
	}
	if counter != 1 {
		t.Errorf("Expected counter 1 for unknown poll, got %d", counter)
	}
}

func TestStateSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	c := New(NewFileStore(path))
	if _, err := c.RecordVote("ev1", "poll1", models.PolicyPerEvent); err != nil {
		t.Fatalf("RecordVote failed: %v", err)
	}
	if _, err := c.RecordVote("ev1", "poll1", models.PolicyPerEvent); err != nil {
		t.Fatalf("RecordVote failed: %v", err)
	}

	// A fresh cache over the same file simulates a client reload.
	reloaded := New(NewFileStore(path))
	st, ok, err := reloaded.Load("ev1", "poll1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected state to survive reload")
	}
	if st.Used != 2 {
		t.Errorf("Expected used 2 after reload, got %d", st.Used)
	}
	if st.State != StateActive {
		t.Errorf("Expected active state after reload, got %q", st.State)
	}
}

func TestLegacyKeyFallback(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Set("poll-persistence-poll1", "7"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	c := New(store)
	st, ok, err := c.Load("ev1", "poll1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected legacy key to be honored")
	}
	if st.Counter != 7 {
		t.Errorf("Expected counter 7 from legacy key, got %d", st.Counter)
	}
	if st.State != StateActive {
		t.Errorf("Expected active state from legacy key, got %q", st.State)
	}

	// Loading must not rewrite the legacy key into the new format.
	if _, ok, _ := store.Get(Key("ev1", "poll1")); ok {
		t.Error("Expected legacy fallback to stay read-only")
	}
}

func TestScopedKeyWinsOverLegacy(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Set("poll-persistence-poll1", "7"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	c := New(store)
	if _, err := c.Sync("ev1", models.VoteStatusResponse{
		PollID:       "poll1",
		Used:         1,
		Remaining:    1,
		EffectiveCap: 2,
		CycleCounter: 3,
	}); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	st, ok, err := c.Load("ev1", "poll1")
	if err != nil || !ok {
		t.Fatalf("Load failed: ok=%v err=%v", ok, err)
	}
	if st.Counter != 3 {
		t.Errorf("Expected scoped key counter 3, got %d", st.Counter)
	}
}

func TestResetStartsNewCycle(t *testing.T) {
	c := New(NewMemoryStore())

	limit := 2
	_, err := c.Sync("ev1", models.VoteStatusResponse{
		PollID: "poll1", Used: 2, Remaining: 0, EffectiveCap: limit, CycleCounter: 1,
	})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	st, err := c.Reset("ev1", "poll1", true)
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if st.State != StateActive {
		t.Errorf("Expected active state after reset, got %q", st.State)
	}
	if st.Used != 0 {
		t.Errorf("Expected used 0 after reset, got %d", st.Used)
	}
	if st.Counter != 2 {
		t.Errorf("Expected counter 2 after reset, got %d", st.Counter)
	}
	if st.MaxVotesToUse == nil || *st.MaxVotesToUse != 2 {
		t.Errorf("Expected session cap preserved across reset, got %v", st.MaxVotesToUse)
	}

	st, err = c.Reset("ev1", "poll1", false)
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if st.MaxVotesToUse != nil {
		t.Errorf("Expected session cap cleared, got %v", st.MaxVotesToUse)
	}
}

func TestFileStoreToleratesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	s := NewFileStore(path)

	if _, ok, err := s.Get("k"); err != nil || ok {
		t.Fatalf("Expected empty result from missing file, ok=%v err=%v", ok, err)
	}
	if err := s.Set("k", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if v, ok, _ := s.Get("k"); !ok || v != "v" {
		t.Errorf("Expected k=v, got ok=%v v=%q", ok, v)
	}

	if err := s.Delete("k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := s.Get("k"); ok {
		t.Error("Expected key deleted")
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected cache file to exist: %v", err)
	}
}
