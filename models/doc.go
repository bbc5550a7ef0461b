// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, domain, and stream payload types.

# Request Types

Types for parsing incoming JSON:

  - CreateEventRequest: title, multivote_policy
  - AddParticipantRequest: name, vote_amount
  - CreatePollRequest: title, min_votes, max_votes, allow_abstain
  - StartPollRequest: optional max_votes_to_use session cap
  - SubmitBallotRequest: answer, idempotency_token
  - TransferRequest: source_id, target_id, amount

# Response Types

Types for JSON responses:

  - CreateEventResponse: event_id, organizer_key
  - AddParticipantResponse: participant_id, token
  - SubmitBallotResponse: ballot_id, replay, remaining
  - VoteStatusResponse: used, remaining, effective_cap, cycle_counter
  - TransferResponse: source_user, target_user, transferred_votes, success
  - ClosePollResponse: closed_at, final snapshot
  - ErrorResponse: error, message

# Domain Types

Internal data structures:

  - Event: multivote policy, active and lobby flags
  - Participant: allotment (vote_amount), verified/allow_to_vote rights
  - Poll: lifecycle state and per-ballot min/max constraints
  - Ballot: append-only answer record with idempotency token
  - VoteCycle: per (participant, poll) consumption state

# Stream Payloads

Server-push message bodies:

  - TallySnapshot: answer counts, distinct voters, batch_processing flag
  - LifecycleEvent: poll state transition per event
  - RightsEvent: verified/allow_to_vote/vote_amount per participant

# Constants

Poll status values:

	StatusDraft  = "draft"
	StatusActive = "active"
	StatusClosed = "closed"

Event multivote policies:

	PolicySingle     = "single"
	PolicyPerSession = "multiple-per-session"
	PolicyPerEvent   = "multiple-per-event"
*/
package models
