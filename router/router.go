// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"database/sql"
	"net/http"

	"livetally/bus"
	"livetally/cliparse"
	"livetally/handlers"
	"livetally/ingest"
	"livetally/ledger"
	"livetally/lifecycle"
	"livetally/middleware"
	"livetally/models"
	"livetally/tally"
)

// Deps carries the wired engine components into the route table.
type Deps struct {
	Ledger      *ledger.Ledger
	Transfer    *ledger.TransferService
	Pipeline    *ingest.Pipeline
	Coordinator *lifecycle.Coordinator
	Aggregator  *tally.Aggregator
	Streams     *handlers.StreamHandler
	RightsBus   *bus.Bus[models.RightsEvent]
}

func NewRouter(db *sql.DB, cfg cliparse.Config, deps Deps) *http.ServeMux {
	mux := http.NewServeMux()

	// Initialize handlers
	eventHandler := handlers.NewEventHandler(db, cfg, deps.RightsBus)
	pollHandler := handlers.NewPollHandler(db, cfg, deps.Coordinator)
	voteHandler := handlers.NewVoteHandler(db, cfg, deps.Pipeline, deps.Ledger)
	transferHandler := handlers.NewTransferHandler(db, cfg, deps.Transfer)
	participantHandler := handlers.NewParticipantHandler(db, cfg)
	resultsHandler := handlers.NewResultsHandler(db, deps.Aggregator)

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Event management (organizer operations)
	mux.HandleFunc("POST /events", middleware.WithLogging(eventHandler.CreateEvent))
	mux.HandleFunc("POST /events/{id}/participants", middleware.WithLogging(eventHandler.AddParticipant))
	mux.HandleFunc("POST /events/{id}/participants/{pid}/verify", middleware.WithLogging(eventHandler.VerifyParticipant))
	mux.HandleFunc("POST /events/{id}/polls", middleware.WithLogging(pollHandler.CreatePoll))
	mux.HandleFunc("POST /events/{id}/transfer", middleware.WithLogging(transferHandler.Transfer))

	// Poll lifecycle (organizer operations)
	mux.HandleFunc("POST /polls/{id}/start", middleware.WithLogging(pollHandler.StartPoll))
	mux.HandleFunc("POST /polls/{id}/close", middleware.WithLogging(pollHandler.ClosePoll))
	mux.HandleFunc("POST /polls/{id}/hide", middleware.WithLogging(pollHandler.HideResult))
	mux.HandleFunc("POST /polls/{id}/unhide", middleware.WithLogging(pollHandler.UnhideResult))

	// Voting operations (participant token)
	mux.HandleFunc("POST /polls/{id}/ballots", middleware.WithLogging(voteHandler.SubmitBallot))
	mux.HandleFunc("GET /polls/{id}/vote-status", middleware.WithLogging(voteHandler.VoteStatus))
	mux.HandleFunc("POST /events/{id}/presence", middleware.WithLogging(participantHandler.Presence))
	mux.HandleFunc("GET /participants/me", middleware.WithLogging(participantHandler.Me))

	// Results and streams (public)
	mux.HandleFunc("GET /events/{id}/tally", middleware.WithLogging(resultsHandler.EventTally))
	mux.HandleFunc("GET /polls/{id}/results", middleware.WithLogging(resultsHandler.PollResults))
	if deps.Streams != nil {
		mux.HandleFunc("GET /stream", deps.Streams.Subscribe)
	}

	// Root endpoint
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("livetally API v1"))
	})

	return mux
}
