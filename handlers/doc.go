// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the Livetally API.

# Handler Types

Each handler is a struct holding its dependencies, created via a constructor:

  - EventHandler: event creation, participant enrollment and verification
  - PollHandler: poll creation and lifecycle (start, close, result visibility)
  - VoteHandler: ballot submission and vote-status resync
  - TransferHandler: allotment transfers between participants
  - ParticipantHandler: presence heartbeats and self lookup
  - ResultsHandler: live tallies and persisted final results
  - StreamHandler: SSE fan-out of lifecycle, tally, and rights events

# Authorization

Three access levels:

	X-Organizer-Key     HMAC key scoped to one event (organizer mutations)
	X-Participant-Token opaque per-participant token (voting, presence)
	public              tallies, final results, SSE streams

# Voting Flow

	POST /polls/{id}/ballots     → SubmitBallot (idempotency_token required)
	GET  /polls/{id}/vote-status → VoteStatus (cache resync)

A retried ballot with the same idempotency token returns 200 with the prior
ballot id; a fresh ballot returns 201. Exhausted allotment is 409, missing
eligibility 403.

# Streams

	GET /stream?stream=lifecycle-{eventID}
	GET /stream?stream=tally-{eventID}
	GET /stream?stream=rights-{participantID}

Streams never replay missed events; clients resync through the REST surface
after a reconnect.
*/
package handlers
