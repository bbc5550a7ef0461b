// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"livetally/auth"
	"livetally/models"
	"livetally/testutil"
)

// TestFullVotingWorkflow exercises the complete engine end to end:
// 1. Create an event with the single multivote policy
// 2. Enroll and verify two participants with one vote each
// 3. Start a poll; one participant votes and then hits exhaustion
// 4. Transfer the other participant's allotment to the exhausted one
// 5. Start a second poll (auto-closing the first) and vote again
// 6. Read the first poll's persisted final results
func TestFullVotingWorkflow(t *testing.T) {
	e := testutil.NewEngine(t)
	cfg := testutil.GetTestConfig()

	eventHandler := NewEventHandler(e.DB, cfg, e.RightsBus)
	pollHandler := NewPollHandler(e.DB, cfg, e.Coordinator)
	voteHandler := NewVoteHandler(e.DB, cfg, e.Pipeline, e.Ledger)
	transferHandler := NewTransferHandler(e.DB, cfg, e.Transfer)
	resultsHandler := NewResultsHandler(e.DB, e.Aggregator)

	// Step 1: Create the event
	w := httptest.NewRecorder()
	eventHandler.CreateEvent(w, testutil.MakeRequest("POST", "/events", models.CreateEventRequest{
		Title:           "Annual Meetup",
		MultivotePolicy: models.PolicySingle,
	}, nil))
	testutil.AssertStatus(t, w, http.StatusCreated)

	var event models.CreateEventResponse
	testutil.AssertJSON(t, w, &event)
	organizer := map[string]string{"X-Organizer-Key": event.OrganizerKey}
	t.Logf("Step 1 - Created event: %s", event.EventID)

	// Step 2: Enroll and verify two participants
	enroll := func(name string) models.AddParticipantResponse {
		req := testutil.MakeRequest("POST", "/events/"+event.EventID+"/participants",
			models.AddParticipantRequest{Name: name, VoteAmount: 1}, organizer)
		req.SetPathValue("id", event.EventID)
		w := httptest.NewRecorder()
		eventHandler.AddParticipant(w, req)
		testutil.AssertStatus(t, w, http.StatusCreated)

		var resp models.AddParticipantResponse
		testutil.AssertJSON(t, w, &resp)

		vreq := testutil.MakeRequest("POST",
			"/events/"+event.EventID+"/participants/"+resp.ParticipantID+"/verify", nil, organizer)
		vreq.SetPathValue("id", event.EventID)
		vreq.SetPathValue("pid", resp.ParticipantID)
		vw := httptest.NewRecorder()
		eventHandler.VerifyParticipant(vw, vreq)
		testutil.AssertStatus(t, vw, http.StatusOK)

		return resp
	}
	alice := enroll("Alice")
	bob := enroll("Bob")
	t.Logf("Step 2 - Enrolled %s and %s", alice.ParticipantID, bob.ParticipantID)

	// Step 3: Create and start the first poll
	createPoll := func(title string) string {
		req := testutil.MakeRequest("POST", "/events/"+event.EventID+"/polls",
			models.CreatePollRequest{Title: title}, organizer)
		req.SetPathValue("id", event.EventID)
		w := httptest.NewRecorder()
		pollHandler.CreatePoll(w, req)
		testutil.AssertStatus(t, w, http.StatusCreated)

		var resp models.CreatePollResponse
		testutil.AssertJSON(t, w, &resp)
		return resp.PollID
	}
	startPoll := func(pollID string) {
		req := testutil.MakeRequest("POST", "/polls/"+pollID+"/start", nil, organizer)
		req.SetPathValue("id", pollID)
		w := httptest.NewRecorder()
		pollHandler.StartPoll(w, req)
		testutil.AssertStatus(t, w, http.StatusOK)
	}
	firstPoll := createPoll("Best Talk")
	startPoll(firstPoll)

	vote := func(pollID, participantID, token, answer string, cycle int) *httptest.ResponseRecorder {
		req := testutil.MakeRequest("POST", "/polls/"+pollID+"/ballots",
			models.SubmitBallotRequest{
				Answer:           answer,
				IdempotencyToken: auth.IdempotencyToken(participantID, pollID, cycle),
			},
			map[string]string{"X-Participant-Token": token})
		req.SetPathValue("id", pollID)
		w := httptest.NewRecorder()
		voteHandler.SubmitBallot(w, req)
		return w
	}

	w = vote(firstPoll, alice.ParticipantID, alice.Token, "keynote", 1)
	testutil.AssertStatus(t, w, http.StatusCreated)
	t.Log("Step 3 - Alice voted")

	// Step 4: Alice is exhausted under the single policy
	w = vote(firstPoll, alice.ParticipantID, alice.Token, "keynote", 2)
	testutil.AssertStatus(t, w, http.StatusConflict)
	t.Log("Step 4 - Alice exhausted")

	// Step 5: Bob transfers his allotment to Alice
	treq := testutil.MakeRequest("POST", "/events/"+event.EventID+"/transfer",
		models.TransferRequest{SourceID: bob.ParticipantID, TargetID: alice.ParticipantID, Amount: 1},
		organizer)
	treq.SetPathValue("id", event.EventID)
	w = httptest.NewRecorder()
	transferHandler.Transfer(w, treq)
	testutil.AssertStatus(t, w, http.StatusOK)

	var transfer models.TransferResponse
	testutil.AssertJSON(t, w, &transfer)
	if transfer.SourceUser.VoteAmount != 0 || transfer.SourceUser.AllowToVote {
		t.Errorf("Expected Bob drained and demoted, got %+v", transfer.SourceUser)
	}
	if transfer.TargetUser.VoteAmount != 2 || !transfer.TargetUser.AllowToVote {
		t.Errorf("Expected Alice credited, got %+v", transfer.TargetUser)
	}
	t.Log("Step 5 - Transferred Bob's vote to Alice")

	// Step 6: A new poll starts (closing the first) and Alice votes again
	secondPoll := createPoll("Best Snack")
	startPoll(secondPoll)

	var firstStatus string
	e.DB.QueryRow(`SELECT status FROM poll WHERE id = $1`, firstPoll).Scan(&firstStatus)
	if firstStatus != models.StatusClosed {
		t.Fatalf("Expected first poll auto-closed, got %q", firstStatus)
	}

	w = vote(secondPoll, alice.ParticipantID, alice.Token, "pretzels", 1)
	testutil.AssertStatus(t, w, http.StatusCreated)
	t.Log("Step 6 - Alice voted in the new poll")

	// Step 7: The first poll's final results are persisted and readable
	rreq := testutil.MakeRequest("GET", "/polls/"+firstPoll+"/results", nil, nil)
	rreq.SetPathValue("id", firstPoll)
	w = httptest.NewRecorder()
	resultsHandler.PollResults(w, rreq)
	testutil.AssertStatus(t, w, http.StatusOK)

	var final models.TallySnapshot
	testutil.AssertJSON(t, w, &final)
	if final.TotalBallots != 1 || final.AnswerCounts["keynote"] != 1 {
		t.Errorf("Unexpected final results: %+v", final)
	}
	if final.DistinctVoted != 1 {
		t.Errorf("Expected 1 distinct voter, got %d", final.DistinctVoted)
	}
	t.Log("Step 7 - Final results verified")
}
