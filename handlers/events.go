// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"livetally/auth"
	"livetally/bus"
	"livetally/cliparse"
	"livetally/middleware"
	"livetally/models"
)

type EventHandler struct {
	db     *sql.DB
	cfg    cliparse.Config
	rights *bus.Bus[models.RightsEvent]
}

func NewEventHandler(db *sql.DB, cfg cliparse.Config, rights *bus.Bus[models.RightsEvent]) *EventHandler {
	return &EventHandler{db: db, cfg: cfg, rights: rights}
}

// CreateEvent handles POST /events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req models.CreateEventRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Title == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.MultivotePolicy == "" {
		req.MultivotePolicy = models.PolicySingle
	}
	switch req.MultivotePolicy {
	case models.PolicySingle, models.PolicyPerSession, models.PolicyPerEvent:
	default:
		middleware.ErrorResponse(w, http.StatusBadRequest, "unknown multivote_policy")
		return
	}

	eventID := uuid.NewString()
	organizerKey := auth.GenerateOrganizerKey(eventID, h.cfg.OrganizerKeySalt)

	_, err := h.db.Exec(`
		INSERT INTO event (id, title, multivote_policy, active, lobby_open, created_at)
		VALUES ($1, $2, $3, TRUE, TRUE, $4)
	`, eventID, req.Title, req.MultivotePolicy, time.Now())
	if err != nil {
		slog.Error("failed to insert event", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create event")
		return
	}

	slog.Info("event created", "event_id", eventID, "policy", req.MultivotePolicy)

	middleware.JSONResponse(w, http.StatusCreated, models.CreateEventResponse{
		EventID:      eventID,
		OrganizerKey: organizerKey,
	})
}

// AddParticipant handles POST /events/{id}/participants
func (h *EventHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")
	if eventID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "event_id is required")
		return
	}

	organizerKey := r.Header.Get("X-Organizer-Key")
	if err := auth.ValidateOrganizerKey(eventID, organizerKey, h.cfg.OrganizerKeySalt); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid organizer key")
		return
	}

	var req models.AddParticipantRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Name == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.VoteAmount < 0 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "vote_amount must not be negative")
		return
	}

	var exists bool
	err := h.db.QueryRow(`SELECT TRUE FROM event WHERE id = $1`, eventID).Scan(&exists)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Event not found")
		return
	}
	if err != nil {
		slog.Error("failed to query event", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	participantID := uuid.NewString()
	token, err := auth.GenerateParticipantToken()
	if err != nil {
		slog.Error("failed to generate participant token", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to add participant")
		return
	}

	_, err = h.db.Exec(`
		INSERT INTO participant (id, event_id, name, token, vote_amount, verified, allow_to_vote, online, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, FALSE, FALSE, $6)
	`, participantID, eventID, req.Name, token, req.VoteAmount, time.Now())
	if err != nil {
		slog.Error("failed to insert participant", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to add participant")
		return
	}

	slog.Info("participant added", "event_id", eventID, "participant_id", participantID)

	middleware.JSONResponse(w, http.StatusCreated, models.AddParticipantResponse{
		ParticipantID: participantID,
		Token:         token,
	})
}

// VerifyParticipant handles POST /events/{id}/participants/{pid}/verify
func (h *EventHandler) VerifyParticipant(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")
	participantID := r.PathValue("pid")
	if eventID == "" || participantID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "event_id and participant_id are required")
		return
	}

	organizerKey := r.Header.Get("X-Organizer-Key")
	if err := auth.ValidateOrganizerKey(eventID, organizerKey, h.cfg.OrganizerKeySalt); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid organizer key")
		return
	}

	// Voting rights follow the allotment: a participant with nothing to spend
	// is verified but not votable.
	res, err := h.db.Exec(`
		UPDATE participant
		SET verified = TRUE, allow_to_vote = (vote_amount > 0)
		WHERE id = $1 AND event_id = $2
	`, participantID, eventID)
	if err != nil {
		slog.Error("failed to verify participant", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to verify participant")
		return
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		middleware.ErrorResponse(w, http.StatusNotFound, "Participant not found")
		return
	}

	p, err := loadParticipant(h.db, participantID)
	if err != nil {
		slog.Error("failed to load participant", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if h.rights != nil {
		h.rights.Publish(p.ID, models.RightsEvent{
			EventID:       p.EventID,
			ParticipantID: p.ID,
			Verified:      p.Verified,
			AllowToVote:   p.AllowToVote,
			VoteAmount:    p.VoteAmount,
		})
	}

	slog.Info("participant verified", "event_id", eventID, "participant_id", participantID)

	middleware.JSONResponse(w, http.StatusOK, p)
}

func loadParticipant(db *sql.DB, id string) (models.Participant, error) {
	var p models.Participant
	err := db.QueryRow(`
		SELECT id, event_id, name, vote_amount, verified, allow_to_vote, online, last_seen_at, created_at
		FROM participant
		WHERE id = $1
	`, id).Scan(
		&p.ID, &p.EventID, &p.Name, &p.VoteAmount,
		&p.Verified, &p.AllowToVote, &p.Online, &p.LastSeenAt, &p.CreatedAt,
	)
	return p, err
}
