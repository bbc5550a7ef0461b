// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"strings"
	"testing"
)

func TestGenerateOrganizerKeyDeterministic(t *testing.T) {
	key1 := GenerateOrganizerKey("event123", "salt")
	key2 := GenerateOrganizerKey("event123", "salt")

	if key1 != key2 {
		t.Errorf("Expected deterministic keys, got %s and %s", key1, key2)
	}

	if strings.Contains(key1, "=") {
		t.Errorf("Expected no padding in key, got %s", key1)
	}
}

func TestGenerateOrganizerKeyDiffersByEvent(t *testing.T) {
	key1 := GenerateOrganizerKey("event1", "salt")
	key2 := GenerateOrganizerKey("event2", "salt")

	if key1 == key2 {
		t.Error("Expected different keys for different events")
	}
}

func TestValidateOrganizerKey(t *testing.T) {
	key := GenerateOrganizerKey("event123", "salt")

	if err := ValidateOrganizerKey("event123", key, "salt"); err != nil {
		t.Errorf("Expected valid key, got error: %v", err)
	}

	if err := ValidateOrganizerKey("event123", "wrong-key", "salt"); err != ErrInvalidOrganizerKey {
		t.Errorf("Expected ErrInvalidOrganizerKey, got %v", err)
	}

	if err := ValidateOrganizerKey("other-event", key, "salt"); err != ErrInvalidOrganizerKey {
		t.Errorf("Expected ErrInvalidOrganizerKey for wrong event, got %v", err)
	}

	if err := ValidateOrganizerKey("event123", key, "other-salt"); err != ErrInvalidOrganizerKey {
		t.Errorf("Expected ErrInvalidOrganizerKey for wrong salt, got %v", err)
	}
}

func TestGenerateParticipantTokenUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := GenerateParticipantToken()
		if err != nil {
			t.Fatalf("Failed to generate token: %v", err)
		}
		if seen[token] {
			t.Fatalf("Duplicate token generated: %s", token)
		}
		seen[token] = true
	}
}

func TestIdempotencyTokenDeterministic(t *testing.T) {
	tok1 := IdempotencyToken("p1", "poll1", 3)
	tok2 := IdempotencyToken("p1", "poll1", 3)

	if tok1 != tok2 {
		t.Errorf("Expected identical tokens for identical inputs, got %s and %s", tok1, tok2)
	}

	if len(tok1) != 32 {
		t.Errorf("Expected 32 hex chars, got %d", len(tok1))
	}
}

func TestIdempotencyTokenVariesByInput(t *testing.T) {
	base := IdempotencyToken("p1", "poll1", 1)

	if IdempotencyToken("p2", "poll1", 1) == base {
		t.Error("Expected different token for different participant")
	}
	if IdempotencyToken("p1", "poll2", 1) == base {
		t.Error("Expected different token for different poll")
	}
	if IdempotencyToken("p1", "poll1", 2) == base {
		t.Error("Expected different token for different cycle counter")
	}
}

func TestIdempotencyTokenNoFieldCollision(t *testing.T) {
	// Field separators must prevent ("ab", "c") colliding with ("a", "bc")
	if IdempotencyToken("ab", "c", 1) == IdempotencyToken("a", "bc", 1) {
		t.Error("Expected field boundaries to be preserved in derivation")
	}
}
