// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"livetally/cliparse"
	"livetally/middleware"
	"livetally/models"
)

type ParticipantHandler struct {
	db  *sql.DB
	cfg cliparse.Config
}

func NewParticipantHandler(db *sql.DB, cfg cliparse.Config) *ParticipantHandler {
	return &ParticipantHandler{db: db, cfg: cfg}
}

// Presence handles POST /events/{id}/presence. Clients heartbeat on connect
// and disconnect so organizers see who is in the room.
func (h *ParticipantHandler) Presence(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")
	if eventID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "event_id is required")
		return
	}

	participant, ok := authParticipant(h.db, w, r)
	if !ok {
		return
	}
	if participant.EventID != eventID {
		middleware.ErrorResponse(w, http.StatusForbidden, "Participant belongs to a different event")
		return
	}

	var req models.PresenceRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	_, err := h.db.Exec(`
		UPDATE participant SET online = $1, last_seen_at = $2 WHERE id = $3
	`, req.Online, time.Now(), participant.ID)
	if err != nil {
		slog.Error("failed to update presence", "error", err, "participant_id", participant.ID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to update presence")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /participants/me
func (h *ParticipantHandler) Me(w http.ResponseWriter, r *http.Request) {
	participant, ok := authParticipant(h.db, w, r)
	if !ok {
		return
	}

	middleware.JSONResponse(w, http.StatusOK, participant)
}
