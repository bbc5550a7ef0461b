// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidOrganizerKey = errors.New("invalid organizer key")
)

// GenerateOrganizerKey creates an HMAC-based organizer key for an event.
// This is deterministic and verifiable
func GenerateOrganizerKey(eventID, salt string) string {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(eventID))
	sum := h.Sum(nil)
	// Use URL-safe base64 and trim padding for cleaner keys
	return strings.TrimRight(base64.URLEncoding.EncodeToString(sum), "=")
}

// ValidateOrganizerKey checks if the provided organizer key is valid for the event
func ValidateOrganizerKey(eventID, organizerKey, salt string) error {
	expected := GenerateOrganizerKey(eventID, salt)
	if !hmac.Equal([]byte(organizerKey), []byte(expected)) {
		return ErrInvalidOrganizerKey
	}
	return nil
}

// GenerateParticipantToken creates a random secure token for a participant.
// The token authenticates ballot submissions and presence updates
func GenerateParticipantToken() (string, error) {
	b := make([]byte, 24) // 24 bytes = 192 bits of entropy
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("failed to generate participant token: %w", err)
	}
	// URL-safe base64 without padding
	return strings.TrimRight(base64.URLEncoding.EncodeToString(b), "="), nil
}

// IdempotencyToken derives the retry-safe token for one ballot attempt from
// (participantID, pollID, cycleCounter). Clients derive the same value for a
// retry of the same attempt, so a network timeout never double-consumes
// allotment. The next successful ballot advances the cycle counter and with
// it the token.
func IdempotencyToken(participantID, pollID string, cycleCounter int) string {
	h := sha256.New()
	h.Write([]byte(participantID))
	h.Write([]byte{0})
	h.Write([]byte(pollID))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(cycleCounter)))
	sum := h.Sum(nil)
	// First 16 bytes (32 hex chars) is plenty for uniqueness per participant+poll
	return hex.EncodeToString(sum[:16])
}
