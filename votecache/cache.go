// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package votecache

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"livetally/models"
)

// Cycle states. Exhausted is an explicit tag, never a magic counter value: a
// state can always be distinguished from a legitimately large vote count.
const (
	StateActive    = "active"
	StateExhausted = "exhausted"
)

// CycleState is the participant-side record of one vote cycle.
type CycleState struct {
	State         string    `json:"state"`
	Counter       int       `json:"counter"`
	Used          int       `json:"used"`
	MaxVotesToUse *int      `json:"max_votes_to_use,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CanVote reports whether the local state permits another ballot under the
// event's multivote policy. Advisory only - the server-side ledger is the
// arbiter - but it saves a round trip for a ballot that would be rejected.
func (s CycleState) CanVote(policy string) bool {
	if s.State == StateExhausted {
		return false
	}
	switch policy {
	case models.PolicySingle:
		return s.Used < 1
	default:
		if s.MaxVotesToUse != nil {
			return s.Used < *s.MaxVotesToUse
		}
		return true
	}
}

// Cache is the ClientVoteCycleCache: durable participant-side vote state that
// survives page reloads and reconnects. Keys scope state to (event, poll), so
// a new poll always starts from a clean cycle.
type Cache struct {
	store Store
}

func New(store Store) *Cache {
	return &Cache{store: store}
}

// Key builds the storage key for one (event, poll) cycle.
func Key(eventID, pollID string) string {
	return "vote-state-" + eventID + "-" + pollID
}

// legacyKey is the pre-scoping key format: poll only, raw integer payload.
func legacyKey(pollID string) string {
	return "poll-persistence-" + pollID
}

// Load reads the cycle state for a poll. When only a legacy raw-counter key
// exists it is interpreted read-only as an active cycle with that counter;
// the legacy key is never written back.
func (c *Cache) Load(eventID, pollID string) (CycleState, bool, error) {
	raw, ok, err := c.store.Get(Key(eventID, pollID))
	if err != nil {
		return CycleState{}, false, err
	}
	if ok {
		var st CycleState
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return CycleState{}, false, fmt.Errorf("failed to parse cycle state: %w", err)
		}
		return st, true, nil
	}

	raw, ok, err = c.store.Get(legacyKey(pollID))
	if err != nil || !ok {
		return CycleState{}, false, err
	}
	counter, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return CycleState{}, false, fmt.Errorf("failed to parse legacy counter: %w", err)
	}
	return CycleState{State: StateActive, Counter: counter}, true, nil
}

func (c *Cache) save(eventID, pollID string, st CycleState) error {
	st.UpdatedAt = time.Now()
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode cycle state: %w", err)
	}
	return c.store.Set(Key(eventID, pollID), string(data))
}

// RecordVote advances the local state after an accepted ballot: used
// increments, and the state flips to exhausted when the policy's cap is hit.
func (c *Cache) RecordVote(eventID, pollID, policy string) (CycleState, error) {
	st, ok, err := c.Load(eventID, pollID)
	if err != nil {
		return CycleState{}, err
	}
	if !ok {
		st = CycleState{State: StateActive, Counter: 1}
	}

	st.Used++
	if !st.CanVote(policy) {
		st.State = StateExhausted
	}

	if err := c.save(eventID, pollID, st); err != nil {
		return CycleState{}, err
	}
	return st, nil
}

// MarkExhausted records a server-side exhaustion rejection locally.
func (c *Cache) MarkExhausted(eventID, pollID string) (CycleState, error) {
	st, _, err := c.Load(eventID, pollID)
	if err != nil {
		return CycleState{}, err
	}
	st.State = StateExhausted
	if err := c.save(eventID, pollID, st); err != nil {
		return CycleState{}, err
	}
	return st, nil
}

// RestoreVoteCounter recovers the displayable vote counter from an exhausted
// state: the next vote would be number used+1. An exhausted state with three
// used votes restores to 4.
func (c *Cache) RestoreVoteCounter(eventID, pollID string) (int, error) {
	st, ok, err := c.Load(eventID, pollID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 1, nil
	}

	st.Counter = st.Used + 1
	if err := c.save(eventID, pollID, st); err != nil {
		return 0, err
	}
	return st.Counter, nil
}

// Reset starts a fresh cycle: counter advances, used clears, state returns to
// active. keepMaxVotes preserves the per-session cap across the reset.
func (c *Cache) Reset(eventID, pollID string, keepMaxVotes bool) (CycleState, error) {
	st, ok, err := c.Load(eventID, pollID)
	if err != nil {
		return CycleState{}, err
	}
	if !ok {
		st = CycleState{Counter: 0}
	}

	next := CycleState{
		State:   StateActive,
		Counter: st.Counter + 1,
	}
	if keepMaxVotes {
		next.MaxVotesToUse = st.MaxVotesToUse
	}

	if err := c.save(eventID, pollID, next); err != nil {
		return CycleState{}, err
	}
	return next, nil
}

// Sync overwrites local state from the server's vote-status response. Server
// wins unconditionally - the ledger is authoritative and the cache is a
// convenience copy.
func (c *Cache) Sync(eventID string, status models.VoteStatusResponse) (CycleState, error) {
	st := CycleState{
		State:   StateActive,
		Counter: status.CycleCounter,
		Used:    status.Used,
	}
	if status.Remaining <= 0 {
		st.State = StateExhausted
	}
	if status.EffectiveCap > 0 {
		limit := status.EffectiveCap
		st.MaxVotesToUse = &limit
	}

	if err := c.save(eventID, status.PollID, st); err != nil {
		return CycleState{}, err
	}
	return st, nil
}

// Forget drops the cycle state for a poll.
func (c *Cache) Forget(eventID, pollID string) error {
	return c.store.Delete(Key(eventID, pollID))
}
