// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"livetally/models"
	"livetally/testutil"
)

func TestCreateEvent(t *testing.T) {
	e := testutil.NewEngine(t)
	cfg := testutil.GetTestConfig()
	h := NewEventHandler(e.DB, cfg, e.RightsBus)

	req := testutil.MakeRequest("POST", "/events", models.CreateEventRequest{
		Title:           "Town Hall",
		MultivotePolicy: models.PolicyPerEvent,
	}, nil)
	w := httptest.NewRecorder()
	h.CreateEvent(w, req)

	testutil.AssertStatus(t, w, http.StatusCreated)

	var resp models.CreateEventResponse
	testutil.AssertJSON(t, w, &resp)
	if resp.EventID == "" || resp.OrganizerKey == "" {
		t.Fatal("Expected event_id and organizer_key")
	}

	var policy string
	e.DB.QueryRow(`SELECT multivote_policy FROM event WHERE id = $1`, resp.EventID).Scan(&policy)
	if policy != models.PolicyPerEvent {
		t.Errorf("Expected policy persisted, got %q", policy)
	}
}

func TestCreateEventDefaultsToSinglePolicy(t *testing.T) {
	e := testutil.NewEngine(t)
	cfg := testutil.GetTestConfig()
	h := NewEventHandler(e.DB, cfg, e.RightsBus)

	req := testutil.MakeRequest("POST", "/events", models.CreateEventRequest{Title: "Quick Show"}, nil)
	w := httptest.NewRecorder()
	h.CreateEvent(w, req)

	testutil.AssertStatus(t, w, http.StatusCreated)

	var resp models.CreateEventResponse
	testutil.AssertJSON(t, w, &resp)

	var policy string
	e.DB.QueryRow(`SELECT multivote_policy FROM event WHERE id = $1`, resp.EventID).Scan(&policy)
	if policy != models.PolicySingle {
		t.Errorf("Expected default single policy, got %q", policy)
	}
}

func TestCreateEventValidation(t *testing.T) {
	e := testutil.NewEngine(t)
	cfg := testutil.GetTestConfig()
	h := NewEventHandler(e.DB, cfg, e.RightsBus)

	cases := []struct {
		name string
		req  models.CreateEventRequest
	}{
		{"missing title", models.CreateEventRequest{MultivotePolicy: models.PolicySingle}},
		{"unknown policy", models.CreateEventRequest{Title: "X", MultivotePolicy: "free-for-all"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := testutil.MakeRequest("POST", "/events", tc.req, nil)
			w := httptest.NewRecorder()
			h.CreateEvent(w, req)
			testutil.AssertStatus(t, w, http.StatusBadRequest)
		})
	}
}

func TestAddParticipant(t *testing.T) {
	e := testutil.NewEngine(t)
	cfg := testutil.GetTestConfig()
	h := NewEventHandler(e.DB, cfg, e.RightsBus)
	eventID, organizerKey := testutil.CreateTestEvent(t, e.DB, cfg, models.PolicyPerEvent)

	req := testutil.MakeRequest("POST", "/events/"+eventID+"/participants",
		models.AddParticipantRequest{Name: "Alice", VoteAmount: 3},
		map[string]string{"X-Organizer-Key": organizerKey})
	req.SetPathValue("id", eventID)
	w := httptest.NewRecorder()
	h.AddParticipant(w, req)

	testutil.AssertStatus(t, w, http.StatusCreated)

	var resp models.AddParticipantResponse
	testutil.AssertJSON(t, w, &resp)
	if resp.ParticipantID == "" || resp.Token == "" {
		t.Fatal("Expected participant_id and token")
	}

	// New participants start unverified with no voting rights.
	var verified, allow bool
	e.DB.QueryRow(`SELECT verified, allow_to_vote FROM participant WHERE id = $1`, resp.ParticipantID).Scan(&verified, &allow)
	if verified || allow {
		t.Errorf("Expected unverified participant, got verified=%v allow=%v", verified, allow)
	}
}

func TestAddParticipantRequiresOrganizerKey(t *testing.T) {
	e := testutil.NewEngine(t)
	cfg := testutil.GetTestConfig()
	h := NewEventHandler(e.DB, cfg, e.RightsBus)
	eventID, _ := testutil.CreateTestEvent(t, e.DB, cfg, models.PolicyPerEvent)

	req := testutil.MakeRequest("POST", "/events/"+eventID+"/participants",
		models.AddParticipantRequest{Name: "Mallory", VoteAmount: 3},
		map[string]string{"X-Organizer-Key": "wrong-key"})
	req.SetPathValue("id", eventID)
	w := httptest.NewRecorder()
	h.AddParticipant(w, req)

	testutil.AssertStatus(t, w, http.StatusUnauthorized)
}

func TestVerifyParticipantGrantsRights(t *testing.T) {
	e := testutil.NewEngine(t)
	cfg := testutil.GetTestConfig()
	h := NewEventHandler(e.DB, cfg, e.RightsBus)
	eventID, organizerKey := testutil.CreateTestEvent(t, e.DB, cfg, models.PolicyPerEvent)
	participantID, _ := testutil.AddTestParticipant(t, e.DB, eventID, 3, false)

	sub := e.RightsBus.Subscribe(participantID, 4)
	defer sub.Close()

	req := testutil.MakeRequest("POST", "/events/"+eventID+"/participants/"+participantID+"/verify",
		nil, map[string]string{"X-Organizer-Key": organizerKey})
	req.SetPathValue("id", eventID)
	req.SetPathValue("pid", participantID)
	w := httptest.NewRecorder()
	h.VerifyParticipant(w, req)

	testutil.AssertStatus(t, w, http.StatusOK)

	var p models.Participant
	testutil.AssertJSON(t, w, &p)
	if !p.Verified || !p.AllowToVote {
		t.Errorf("Expected verified votable participant, got %+v", p)
	}

	ev := <-sub.C
	if !ev.AllowToVote || ev.VoteAmount != 3 {
		t.Errorf("Expected rights event granting vote, got %+v", ev)
	}
}

func TestVerifyParticipantWithoutAllotment(t *testing.T) {
	e := testutil.NewEngine(t)
	cfg := testutil.GetTestConfig()
	h := NewEventHandler(e.DB, cfg, e.RightsBus)
	eventID, organizerKey := testutil.CreateTestEvent(t, e.DB, cfg, models.PolicyPerEvent)
	participantID, _ := testutil.AddTestParticipant(t, e.DB, eventID, 0, false)

	req := testutil.MakeRequest("POST", "/events/"+eventID+"/participants/"+participantID+"/verify",
		nil, map[string]string{"X-Organizer-Key": organizerKey})
	req.SetPathValue("id", eventID)
	req.SetPathValue("pid", participantID)
	w := httptest.NewRecorder()
	h.VerifyParticipant(w, req)

	testutil.AssertStatus(t, w, http.StatusOK)

	var p models.Participant
	testutil.AssertJSON(t, w, &p)
	if !p.Verified {
		t.Error("Expected participant verified")
	}
	if p.AllowToVote {
		t.Error("Participant with no allotment must not gain voting rights")
	}
}

func TestVerifyUnknownParticipant(t *testing.T) {
	e := testutil.NewEngine(t)
	cfg := testutil.GetTestConfig()
	h := NewEventHandler(e.DB, cfg, e.RightsBus)
	eventID, organizerKey := testutil.CreateTestEvent(t, e.DB, cfg, models.PolicyPerEvent)

	req := testutil.MakeRequest("POST", "/events/"+eventID+"/participants/nope/verify",
		nil, map[string]string{"X-Organizer-Key": organizerKey})
	req.SetPathValue("id", eventID)
	req.SetPathValue("pid", "nope")
	w := httptest.NewRecorder()
	h.VerifyParticipant(w, req)

	testutil.AssertStatus(t, w, http.StatusNotFound)
}
