// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"livetally/middleware"
	"livetally/models"
	"livetally/tally"
)

type ResultsHandler struct {
	db  *sql.DB
	agg *tally.Aggregator
}

func NewResultsHandler(db *sql.DB, agg *tally.Aggregator) *ResultsHandler {
	return &ResultsHandler{db: db, agg: agg}
}

// EventTally handles GET /events/{id}/tally. Returns the live tally of the
// event's active poll; dashboards poll this once and then follow the SSE
// stream.
func (h *ResultsHandler) EventTally(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")
	if eventID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "event_id is required")
		return
	}

	var pollID string
	err := h.db.QueryRow(`
		SELECT id FROM poll WHERE event_id = $1 AND status = 'active'
	`, eventID).Scan(&pollID)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "No active poll")
		return
	}
	if err != nil {
		slog.Error("failed to query active poll", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	counts, ok := h.agg.Counts(pollID)
	if !ok {
		counts, err = h.agg.RecomputeDB(pollID)
		if err != nil {
			slog.Error("failed to recompute tally", "error", err, "poll_id", pollID)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to compute tally")
			return
		}
	}

	var totalParticipants int
	err = h.db.QueryRow(`
		SELECT COUNT(*) FROM participant WHERE event_id = $1 AND allow_to_vote
	`, eventID).Scan(&totalParticipants)
	if err != nil {
		slog.Error("failed to count participants", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.TallySnapshot{
		PollID:            pollID,
		EventID:           eventID,
		AnswerCounts:      counts.AnswerCounts,
		DistinctVoted:     counts.DistinctVoted,
		TotalParticipants: totalParticipants,
		TotalBallots:      counts.TotalBallots,
		ComputedAt:        time.Now(),
	})
}

// PollResults handles GET /polls/{id}/results. Serves the persisted final
// result of a closed poll; hidden results are withheld.
func (h *ResultsHandler) PollResults(w http.ResponseWriter, r *http.Request) {
	pollID := r.PathValue("id")
	if pollID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "poll_id is required")
		return
	}

	var status string
	var resultID sql.NullString
	err := h.db.QueryRow(`SELECT status, final_result_id FROM poll WHERE id = $1`, pollID).Scan(&status, &resultID)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
		return
	}
	if err != nil {
		slog.Error("failed to query poll", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if status != models.StatusClosed || !resultID.Valid {
		middleware.ErrorResponse(w, http.StatusConflict, "Poll is not closed")
		return
	}

	var payload string
	var hidden bool
	err = h.db.QueryRow(`SELECT payload, hidden FROM poll_result WHERE id = $1`, resultID.String).Scan(&payload, &hidden)
	if err != nil {
		slog.Error("failed to load poll result", "error", err, "result_id", resultID.String)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if hidden {
		middleware.ErrorResponse(w, http.StatusForbidden, "Results are hidden")
		return
	}

	var snapshot models.TallySnapshot
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		slog.Error("failed to parse result payload", "error", err, "result_id", resultID.String)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Corrupt result payload")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, snapshot)
}
