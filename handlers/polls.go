// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"livetally/auth"
	"livetally/cliparse"
	"livetally/lifecycle"
	"livetally/middleware"
	"livetally/models"
)

type PollHandler struct {
	db    *sql.DB
	cfg   cliparse.Config
	coord *lifecycle.Coordinator
}

func NewPollHandler(db *sql.DB, cfg cliparse.Config, coord *lifecycle.Coordinator) *PollHandler {
	return &PollHandler{db: db, cfg: cfg, coord: coord}
}

// CreatePoll handles POST /events/{id}/polls
func (h *PollHandler) CreatePoll(w http.ResponseWriter, r *http.Request) {
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

	var req models.CreatePollRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Title == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.MinVotes <= 0 {
		req.MinVotes = 1
	}
	if req.MaxVotes < req.MinVotes {
		req.MaxVotes = req.MinVotes
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

	pollID := uuid.NewString()
	_, err = h.db.Exec(`
		INSERT INTO poll (id, event_id, title, status, min_votes, max_votes, allow_abstain, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, pollID, eventID, req.Title, models.StatusDraft, req.MinVotes, req.MaxVotes, req.AllowAbstain, time.Now())
	if err != nil {
		slog.Error("failed to insert poll", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create poll")
		return
	}

	slog.Info("poll created", "poll_id", pollID, "event_id", eventID)

	middleware.JSONResponse(w, http.StatusCreated, models.CreatePollResponse{
		PollID: pollID,
	})
}

// StartPoll handles POST /polls/{id}/start
func (h *PollHandler) StartPoll(w http.ResponseWriter, r *http.Request) {
	pollID := r.PathValue("id")
	if pollID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "poll_id is required")
		return
	}

	if !h.authorizePollOrganizer(w, r, pollID) {
		return
	}

	var req models.StartPollRequest
	if r.ContentLength > 0 {
		if err := middleware.ParseJSONBody(r, &req); err != nil {
			middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
	}
	if req.MaxVotesToUse != nil && *req.MaxVotesToUse <= 0 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "max_votes_to_use must be positive")
		return
	}

	poll, err := h.coord.Start(pollID, req.MaxVotesToUse)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
		return
	}
	if errors.Is(err, lifecycle.ErrAlreadyClosed) {
		middleware.ErrorResponse(w, http.StatusConflict, "Poll is already closed")
		return
	}
	if err != nil {
		slog.Error("failed to start poll", "error", err, "poll_id", pollID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to start poll")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, poll)
}

// ClosePoll handles POST /polls/{id}/close
func (h *PollHandler) ClosePoll(w http.ResponseWriter, r *http.Request) {
	pollID := r.PathValue("id")
	if pollID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "poll_id is required")
		return
	}

	if !h.authorizePollOrganizer(w, r, pollID) {
		return
	}

	resp, err := h.coord.Close(pollID)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
		return
	}
	if errors.Is(err, lifecycle.ErrAlreadyClosed) {
		middleware.ErrorResponse(w, http.StatusConflict, "Poll is already closed")
		return
	}
	if errors.Is(err, lifecycle.ErrNotStarted) {
		middleware.ErrorResponse(w, http.StatusConflict, "Poll has not been started")
		return
	}
	if err != nil {
		slog.Error("failed to close poll", "error", err, "poll_id", pollID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to close poll")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, resp)
}

// HideResult handles POST /polls/{id}/hide
func (h *PollHandler) HideResult(w http.ResponseWriter, r *http.Request) {
	h.setResultHidden(w, r, true)
}

// UnhideResult handles POST /polls/{id}/unhide
func (h *PollHandler) UnhideResult(w http.ResponseWriter, r *http.Request) {
	h.setResultHidden(w, r, false)
}

func (h *PollHandler) setResultHidden(w http.ResponseWriter, r *http.Request, hidden bool) {
	pollID := r.PathValue("id")
	if pollID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "poll_id is required")
		return
	}

	if !h.authorizePollOrganizer(w, r, pollID) {
		return
	}

	err := h.coord.SetResultHidden(pollID, hidden)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll has no result")
		return
	}
	if err != nil {
		slog.Error("failed to toggle result visibility", "error", err, "poll_id", pollID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to update result")
		return
	}

	slog.Info("result visibility changed", "poll_id", pollID, "hidden", hidden)

	w.WriteHeader(http.StatusNoContent)
}

// authorizePollOrganizer resolves the poll's event and validates the
// organizer key against it. Writes the error response on failure.
func (h *PollHandler) authorizePollOrganizer(w http.ResponseWriter, r *http.Request, pollID string) bool {
	var eventID string
	err := h.db.QueryRow(`SELECT event_id FROM poll WHERE id = $1`, pollID).Scan(&eventID)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
		return false
	}
	if err != nil {
		slog.Error("failed to query poll", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return false
	}

	organizerKey := r.Header.Get("X-Organizer-Key")
	if err := auth.ValidateOrganizerKey(eventID, organizerKey, h.cfg.OrganizerKeySalt); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid organizer key")
		return false
	}
	return true
}
