// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"livetally/cliparse"
	"livetally/ingest"
	"livetally/ledger"
	"livetally/middleware"
	"livetally/models"
)

type VoteHandler struct {
	db       *sql.DB
	cfg      cliparse.Config
	pipeline *ingest.Pipeline
	ledger   *ledger.Ledger
}

func NewVoteHandler(db *sql.DB, cfg cliparse.Config, pipeline *ingest.Pipeline, l *ledger.Ledger) *VoteHandler {
	return &VoteHandler{db: db, cfg: cfg, pipeline: pipeline, ledger: l}
}

// SubmitBallot handles POST /polls/{id}/ballots
func (h *VoteHandler) SubmitBallot(w http.ResponseWriter, r *http.Request) {
	pollID := r.PathValue("id")
	if pollID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "poll_id is required")
		return
	}

	participant, ok := authParticipant(h.db, w, r)
	if !ok {
		return
	}

	var req models.SubmitBallotRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Answer == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "answer is required")
		return
	}
	if req.IdempotencyToken == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "idempotency_token is required")
		return
	}

	res, err := h.pipeline.Submit(pollID, participant.ID, req.Answer, req.IdempotencyToken)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
		return
	}
	if errors.Is(err, ingest.ErrPollNotActive) {
		middleware.ErrorResponse(w, http.StatusConflict, "Poll is not accepting ballots")
		return
	}
	if errors.Is(err, ledger.ErrNotEligible) {
		middleware.ErrorResponse(w, http.StatusForbidden, "Not eligible to vote")
		return
	}
	if errors.Is(err, ledger.ErrExhausted) {
		middleware.ErrorResponse(w, http.StatusConflict, "Vote allotment exhausted")
		return
	}
	if err != nil {
		slog.Error("failed to submit ballot", "error", err, "poll_id", pollID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to submit ballot")
		return
	}

	status := http.StatusCreated
	if res.Replay {
		status = http.StatusOK
	}
	middleware.JSONResponse(w, status, models.SubmitBallotResponse{
		BallotID:  res.BallotID,
		Replay:    res.Replay,
		Remaining: res.Remaining,
	})
}

// VoteStatus handles GET /polls/{id}/vote-status. Clients use it to resync
// their local vote cycle cache after a reload.
func (h *VoteHandler) VoteStatus(w http.ResponseWriter, r *http.Request) {
	pollID := r.PathValue("id")
	if pollID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "poll_id is required")
		return
	}

	participant, ok := authParticipant(h.db, w, r)
	if !ok {
		return
	}

	var exists bool
	err := h.db.QueryRow(`SELECT TRUE FROM poll WHERE id = $1`, pollID).Scan(&exists)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
		return
	}
	if err != nil {
		slog.Error("failed to query poll", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	st, err := h.ledger.Status(h.db, participant.ID, pollID)
	if err != nil {
		slog.Error("failed to read vote status", "error", err, "poll_id", pollID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.VoteStatusResponse{
		PollID:       pollID,
		EventID:      participant.EventID,
		Used:         st.Used,
		Remaining:    st.Remaining(),
		EffectiveCap: st.EffectiveCap,
		CycleCounter: st.Counter,
	})
}

// authParticipant resolves the X-Participant-Token header to a participant.
// Writes the error response on failure.
func authParticipant(db *sql.DB, w http.ResponseWriter, r *http.Request) (models.Participant, bool) {
	token := r.Header.Get("X-Participant-Token")
	if token == "" {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Participant token required")
		return models.Participant{}, false
	}

	var p models.Participant
	err := db.QueryRow(`
		SELECT id, event_id, name, vote_amount, verified, allow_to_vote, online, last_seen_at, created_at
		FROM participant
		WHERE token = $1
	`, token).Scan(
		&p.ID, &p.EventID, &p.Name, &p.VoteAmount,
		&p.Verified, &p.AllowToVote, &p.Online, &p.LastSeenAt, &p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid participant token")
		return models.Participant{}, false
	}
	if err != nil {
		slog.Error("failed to resolve participant token", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return models.Participant{}, false
	}

	return p, true
}
