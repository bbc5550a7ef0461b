// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/r3labs/sse/v2"

	"livetally/bus"
	"livetally/models"
)

// StreamHandler bridges the in-process buses onto SSE streams. Stream names
// scope what a subscriber sees:
//
//	lifecycle-{eventID}   poll state transitions
//	tally-{eventID}       coalesced tally snapshots
//	rights-{participantID} allotment and rights changes
//
// Clients subscribe with GET /stream?stream=<name>.
type StreamHandler struct {
	srv *sse.Server

	lifecycle *bus.Subscription[models.LifecycleEvent]
	tally     *bus.Subscription[models.TallySnapshot]
	rights    *bus.Subscription[models.RightsEvent]

	done chan struct{}
	wg   sync.WaitGroup
}

func NewStreamHandler(
	lifecycleBus *bus.Bus[models.LifecycleEvent],
	tallyBus *bus.Bus[models.TallySnapshot],
	rightsBus *bus.Bus[models.RightsEvent],
) *StreamHandler {
	srv := sse.New()
	// Late subscribers must not receive stale engine state; the REST surface
	// is the resync path.
	srv.AutoReplay = false
	srv.AutoStream = true

	h := &StreamHandler{
		srv:       srv,
		lifecycle: lifecycleBus.Subscribe("", 256),
		tally:     tallyBus.Subscribe("", 256),
		rights:    rightsBus.Subscribe("", 256),
		done:      make(chan struct{}),
	}

	h.wg.Add(3)
	go h.pumpLifecycle()
	go h.pumpTally()
	go h.pumpRights()

	return h
}

// Subscribe handles GET /stream
func (h *StreamHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("stream") == "" {
		http.Error(w, "stream query parameter is required", http.StatusBadRequest)
		return
	}
	h.srv.ServeHTTP(w, r)
}

// Close stops the bridge goroutines and disconnects all subscribers.
func (h *StreamHandler) Close() {
	close(h.done)
	h.lifecycle.Close()
	h.tally.Close()
	h.rights.Close()
	h.wg.Wait()
	h.srv.Close()
}

func (h *StreamHandler) pumpLifecycle() {
	defer h.wg.Done()
	for {
		select {
		case ev, ok := <-h.lifecycle.C:
			if !ok {
				return
			}
			h.emit("lifecycle-"+ev.EventID, "lifecycle", ev)
		case <-h.done:
			return
		}
	}
}

func (h *StreamHandler) pumpTally() {
	defer h.wg.Done()
	for {
		select {
		case snap, ok := <-h.tally.C:
			if !ok {
				return
			}
			h.emit("tally-"+snap.EventID, "tally", snap)
		case <-h.done:
			return
		}
	}
}

func (h *StreamHandler) pumpRights() {
	defer h.wg.Done()
	for {
		select {
		case ev, ok := <-h.rights.C:
			if !ok {
				return
			}
			h.emit("rights-"+ev.ParticipantID, "rights", ev)
		case <-h.done:
			return
		}
	}
}

func (h *StreamHandler) emit(stream, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to encode stream payload", "error", err, "stream", stream)
		return
	}

	h.srv.CreateStream(stream)
	h.srv.Publish(stream, &sse.Event{
		Event: []byte(event),
		Data:  data,
	})
}
