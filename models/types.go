// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import "time"

// Poll status constants
const (
	StatusDraft  = "draft"
	StatusActive = "active"
	StatusClosed = "closed"
)

// Event multivote policy constants
const (
	PolicySingle     = "single"
	PolicyPerSession = "multiple-per-session"
	PolicyPerEvent   = "multiple-per-event"
)

// Request types

type CreateEventRequest struct {
	Title           string `json:"title"`
	MultivotePolicy string `json:"multivote_policy"`
}

type AddParticipantRequest struct {
	Name       string `json:"name"`
	VoteAmount int    `json:"vote_amount"`
}

type CreatePollRequest struct {
	Title        string `json:"title"`
	MinVotes     int    `json:"min_votes"`
	MaxVotes     int    `json:"max_votes"`
	AllowAbstain bool   `json:"allow_abstain"`
}

type StartPollRequest struct {
	MaxVotesToUse *int `json:"max_votes_to_use,omitempty"`
}

type SubmitBallotRequest struct {
	Answer           string `json:"answer"`
	IdempotencyToken string `json:"idempotency_token"`
}

type TransferRequest struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Amount   int    `json:"amount"`
}

type PresenceRequest struct {
	Online bool `json:"online"`
}

// Response types

type CreateEventResponse struct {
	EventID      string `json:"event_id"`
	OrganizerKey string `json:"organizer_key"`
}

type AddParticipantResponse struct {
	ParticipantID string `json:"participant_id"`
	Token         string `json:"token"`
}

type CreatePollResponse struct {
	PollID string `json:"poll_id"`
}

type SubmitBallotResponse struct {
	BallotID  string `json:"ballot_id"`
	Replay    bool   `json:"replay"`
	Remaining int    `json:"remaining"`
}

type VoteStatusResponse struct {
	PollID       string `json:"poll_id"`
	EventID      string `json:"event_id"`
	Used         int    `json:"used"`
	Remaining    int    `json:"remaining"`
	EffectiveCap int    `json:"effective_cap"`
	CycleCounter int    `json:"cycle_counter"`
}

type TransferResponse struct {
	SourceUser       Participant `json:"source_user"`
	TargetUser       Participant `json:"target_user"`
	TransferredVotes int         `json:"transferred_votes"`
	Success          bool        `json:"success"`
}

type ClosePollResponse struct {
	ClosedAt time.Time     `json:"closed_at"`
	Snapshot TallySnapshot `json:"snapshot"`
}

// Domain types

type Event struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	MultivotePolicy string    `json:"multivote_policy"`
	Active          bool      `json:"active"`
	LobbyOpen       bool      `json:"lobby_open"`
	CreatedAt       time.Time `json:"created_at"`
}

type Participant struct {
	ID          string     `json:"id"`
	EventID     string     `json:"event_id"`
	Name        string     `json:"name"`
	Token       string     `json:"-"` // Never expose in JSON
	VoteAmount  int        `json:"vote_amount"`
	Verified    bool       `json:"verified"`
	AllowToVote bool       `json:"allow_to_vote"`
	Online      bool       `json:"online"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type Poll struct {
	ID            string     `json:"id"`
	EventID       string     `json:"event_id"`
	Title         string     `json:"title"`
	Status        string     `json:"status"`
	MinVotes      int        `json:"min_votes"`
	MaxVotes      int        `json:"max_votes"`
	AllowAbstain  bool       `json:"allow_abstain"`
	MaxVotesToUse *int       `json:"max_votes_to_use,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	FinalResultID *string    `json:"final_result_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type Ballot struct {
	ID               string    `json:"id"`
	PollID           string    `json:"poll_id"`
	ParticipantID    string    `json:"participant_id"`
	Answer           string    `json:"answer"`
	IdempotencyToken string    `json:"-"` // Never expose in JSON
	SubmittedAt      time.Time `json:"submitted_at"`
}

type VoteCycle struct {
	ParticipantID string    `json:"participant_id"`
	PollID        string    `json:"poll_id"`
	Counter       int       `json:"counter"`
	Used          int       `json:"used"`
	MaxVotesToUse *int      `json:"max_votes_to_use,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Stream payload types

// TallySnapshot is the unit of fan-out to dashboards. BatchProcessing is true
// while a coalesced burst is still settling; subscribers must not render a
// batched snapshot as final.
type TallySnapshot struct {
	PollResultID      string         `json:"poll_result_id,omitempty"`
	PollID            string         `json:"poll_id"`
	EventID           string         `json:"event_id"`
	AnswerCounts      map[string]int `json:"answer_counts"`
	DistinctVoted     int            `json:"distinct_voted"`
	TotalParticipants int            `json:"total_participants"`
	TotalBallots      int            `json:"total_ballots"`
	BatchProcessing   bool           `json:"batch_processing"`
	ComputedAt        time.Time      `json:"computed_at"`
}

type LifecycleEvent struct {
	EventID      string `json:"event_id"`
	State        string `json:"state"`
	Poll         Poll   `json:"poll"`
	PollResultID string `json:"poll_result_id,omitempty"`
}

type RightsEvent struct {
	EventID       string `json:"event_id"`
	ParticipantID string `json:"participant_id"`
	Verified      bool   `json:"verified"`
	AllowToVote   bool   `json:"allow_to_vote"`
	VoteAmount    int    `json:"vote_amount"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
