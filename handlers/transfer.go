// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"livetally/auth"
	"livetally/cliparse"
	"livetally/ledger"
	"livetally/middleware"
	"livetally/models"
)

type TransferHandler struct {
	db  *sql.DB
	cfg cliparse.Config
	svc *ledger.TransferService
}

func NewTransferHandler(db *sql.DB, cfg cliparse.Config, svc *ledger.TransferService) *TransferHandler {
	return &TransferHandler{db: db, cfg: cfg, svc: svc}
}

// Transfer handles POST /events/{id}/transfer
func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
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

	var req models.TransferRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.SourceID == "" || req.TargetID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "source_id and target_id are required")
		return
	}

	// The transfer itself re-checks event membership; this guards against a
	// valid key for a different event.
	var sourceEvent string
	err := h.db.QueryRow(`SELECT event_id FROM participant WHERE id = $1`, req.SourceID).Scan(&sourceEvent)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Source participant not found")
		return
	}
	if err != nil {
		slog.Error("failed to query participant", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if sourceEvent != eventID {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Participant belongs to a different event")
		return
	}

	source, target, err := h.svc.Transfer(req.SourceID, req.TargetID, req.Amount)
	if errors.Is(err, ledger.ErrTransferPrecondition) {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("failed to transfer votes", "error", err, "event_id", eventID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to transfer votes")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.TransferResponse{
		SourceUser:       source,
		TargetUser:       target,
		TransferredVotes: req.Amount,
		Success:          true,
	})
}
