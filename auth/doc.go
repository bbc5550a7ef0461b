// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides authentication and token generation utilities.

# Organizer Keys

Organizer keys use HMAC-SHA256 to create deterministic, verifiable keys:

	organizerKey := auth.GenerateOrganizerKey(eventID, salt)
	err := auth.ValidateOrganizerKey(eventID, organizerKey, salt)

The key is URL-safe base64 encoded without padding. Since it's deterministic,
the same event ID and salt always produce the same key. This allows validation
without storing the key in the database.

# Participant Tokens

Participant tokens are random 24-byte (192-bit) secrets:

	token, err := auth.GenerateParticipantToken()

Tokens are URL-safe base64 encoded and sent in the X-Participant-Token header
to authenticate ballot submissions, vote-status reads, and presence updates.

# Idempotency Tokens

Idempotency tokens make ballot submission retry-safe:

	token := auth.IdempotencyToken(participantID, pollID, cycleCounter)

The token is a SHA-256 derivation of (participant, poll, cycle counter), so a
client retrying a timed-out submission sends the same token and the pipeline
replays the prior result instead of consuming allotment again.
*/
package auth
