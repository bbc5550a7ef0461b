// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"livetally/bus"
	"livetally/models"
)

func TestStreamRequiresStreamParam(t *testing.T) {
	h := NewStreamHandler(
		bus.New[models.LifecycleEvent](),
		bus.New[models.TallySnapshot](),
		bus.New[models.RightsEvent](),
	)
	defer h.Close()

	req := httptest.NewRequest("GET", "/stream", nil)
	w := httptest.NewRecorder()
	h.Subscribe(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without stream param, got %d", w.Code)
	}
}

func TestStreamDeliversLifecycleEvents(t *testing.T) {
	lifecycleBus := bus.New[models.LifecycleEvent]()
	h := NewStreamHandler(
		lifecycleBus,
		bus.New[models.TallySnapshot](),
		bus.New[models.RightsEvent](),
	)
	defer h.Close()

	srv := httptest.NewServer(http.HandlerFunc(h.Subscribe))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stream?stream=lifecycle-ev1")
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer resp.Body.Close()

	// Give the subscription a moment to register before publishing.
	time.Sleep(50 * time.Millisecond)
	lifecycleBus.Publish("ev1", models.LifecycleEvent{
		EventID: "ev1",
		State:   models.StatusActive,
		Poll:    models.Poll{ID: "poll1", EventID: "ev1"},
	})

	type result struct {
		payload string
		err     error
	}
	got := make(chan result, 1)
	go func() {
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				got <- result{err: err}
				return
			}
			if strings.HasPrefix(line, "data:") {
				got <- result{payload: strings.TrimSpace(strings.TrimPrefix(line, "data:"))}
				return
			}
		}
	}()

	select {
	case r := <-got:
		if r.err != nil {
			t.Fatalf("Failed to read stream: %v", r.err)
		}
		var ev models.LifecycleEvent
		if err := json.Unmarshal([]byte(r.payload), &ev); err != nil {
			t.Fatalf("Failed to parse event payload %q: %v", r.payload, err)
		}
		if ev.EventID != "ev1" || ev.State != models.StatusActive || ev.Poll.ID != "poll1" {
			t.Errorf("Unexpected lifecycle event: %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for SSE event")
	}
}
