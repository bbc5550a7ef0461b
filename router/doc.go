// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the Livetally API.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(db, cfg, deps)

Deps carries the wired engine components (ledger, pipeline, coordinator,
aggregator, transfer service, stream handler).

# Endpoints

Health:

	GET /health

Event management (organizer, requires X-Organizer-Key):

	POST /events                               - Create event
	POST /events/{id}/participants             - Enroll participant
	POST /events/{id}/participants/{pid}/verify - Verify and grant rights
	POST /events/{id}/polls                    - Create draft poll
	POST /events/{id}/transfer                 - Transfer allotment

Poll lifecycle (organizer):

	POST /polls/{id}/start  - Activate (closes any active sibling)
	POST /polls/{id}/close  - Close and persist final result
	POST /polls/{id}/hide   - Hide final result
	POST /polls/{id}/unhide - Reveal final result

Voting (participant, requires X-Participant-Token):

	POST /polls/{id}/ballots     - Submit ballot
	GET  /polls/{id}/vote-status - Remaining allotment for resync
	POST /events/{id}/presence   - Presence heartbeat
	GET  /participants/me        - Own rights and allotment

Results and streams (public):

	GET /events/{id}/tally   - Live tally of the active poll
	GET /polls/{id}/results  - Final results (closed, not hidden)
	GET /stream?stream=...   - SSE subscription
*/
package router
