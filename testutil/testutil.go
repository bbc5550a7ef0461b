// Copyright (c) 2026 Livetally contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"livetally/auth"
	"livetally/bus"
	"livetally/cliparse"
	"livetally/db"
	"livetally/ingest"
	"livetally/ledger"
	"livetally/lifecycle"
	"livetally/models"
	"livetally/publish"
	"livetally/tally"
)

var dbCounter atomic.Int64

// SetupTestDB opens a fresh in-memory sqlite database with the full schema.
// Each call gets its own database (named, cache=shared) so parallel tests
// never see each other's rows. Connections are capped at one: the shared
// cache serializes access, and a test must never query the database while a
// transaction holds the only connection.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	n := dbCounter.Add(1)
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", n)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	conn.SetMaxOpenConns(1)

	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:             3324,
		DatabaseType:     "sqlite",
		OrganizerKeySalt: "test-organizer-salt",
		SnapshotWindow:   20 * time.Millisecond,
		SnapshotBatch:    8,
	}
}

// Engine wires the full vote engine over a test database. Aggregator and
// publisher workers are running; cleanup stops them.
type Engine struct {
	DB           *sql.DB
	Ledger       *ledger.Ledger
	Transfer     *ledger.TransferService
	Aggregator   *tally.Aggregator
	Publisher    *publish.Publisher
	Pipeline     *ingest.Pipeline
	Coordinator  *lifecycle.Coordinator
	LifecycleBus *bus.Bus[models.LifecycleEvent]
	TallyBus     *bus.Bus[models.TallySnapshot]
	RightsBus    *bus.Bus[models.RightsEvent]
}

// NewEngine builds a complete engine over a fresh test database.
func NewEngine(t *testing.T) *Engine {
	t.Helper()

	conn := SetupTestDB(t)
	cfg := GetTestConfig()

	e := &Engine{
		DB:           conn,
		Ledger:       ledger.New(),
		LifecycleBus: bus.New[models.LifecycleEvent](),
		TallyBus:     bus.New[models.TallySnapshot](),
		RightsBus:    bus.New[models.RightsEvent](),
	}
	e.Transfer = ledger.NewTransferService(conn, e.RightsBus)
	e.Aggregator = tally.New(conn)
	e.Publisher = publish.New(conn, e.Aggregator, e.TallyBus, cfg.SnapshotWindow, cfg.SnapshotBatch)
	e.Pipeline = ingest.New(conn, e.Ledger, e.Aggregator)
	e.Coordinator = lifecycle.New(conn, e.Aggregator, e.Publisher, e.LifecycleBus)

	e.Aggregator.Start(e.Publisher)
	e.Publisher.Start()
	t.Cleanup(func() {
		e.Publisher.Stop()
		e.Aggregator.Stop()
	})

	return e
}

// CreateTestEvent creates an event and returns its ID and organizer key
func CreateTestEvent(t *testing.T, conn *sql.DB, cfg cliparse.Config, policy string) (eventID, organizerKey string) {
	t.Helper()

	eventID = uuid.NewString()
	organizerKey = auth.GenerateOrganizerKey(eventID, cfg.OrganizerKeySalt)

	_, err := conn.Exec(`
		INSERT INTO event (id, title, multivote_policy, active, lobby_open, created_at)
		VALUES ($1, 'Test Event', $2, TRUE, TRUE, $3)
	`, eventID, policy, time.Now())
	if err != nil {
		t.Fatalf("Failed to create test event: %v", err)
	}

	return eventID, organizerKey
}

// AddTestParticipant creates a participant and returns its ID and token.
// verified controls both the verified and allow_to_vote flags.
func AddTestParticipant(t *testing.T, conn *sql.DB, eventID string, voteAmount int, verified bool) (participantID, token string) {
	t.Helper()

	participantID = uuid.NewString()
	tok, err := auth.GenerateParticipantToken()
	if err != nil {
		t.Fatalf("Failed to generate participant token: %v", err)
	}
	token = tok

	_, err = conn.Exec(`
		INSERT INTO participant (id, event_id, name, token, vote_amount, verified, allow_to_vote, online, created_at)
		VALUES ($1, $2, 'Test Participant', $3, $4, $5, $6, FALSE, $7)
	`, participantID, eventID, token, voteAmount, verified, verified, time.Now())
	if err != nil {
		t.Fatalf("Failed to create test participant: %v", err)
	}

	return participantID, token
}

// CreateTestPoll creates a poll in the given status and returns its ID.
// status should be "draft", "active", or "closed".
func CreateTestPoll(t *testing.T, conn *sql.DB, eventID, status string) string {
	t.Helper()

	pollID := uuid.NewString()

	var startedAt, closedAt *time.Time
	now := time.Now()
	if status == models.StatusActive || status == models.StatusClosed {
		startedAt = &now
	}
	if status == models.StatusClosed {
		closedAt = &now
	}

	_, err := conn.Exec(`
		INSERT INTO poll (id, event_id, title, status, min_votes, max_votes, allow_abstain, started_at, closed_at, created_at)
		VALUES ($1, $2, 'Test Poll', $3, 1, 1, FALSE, $4, $5, $6)
	`, pollID, eventID, status, startedAt, closedAt, now)
	if err != nil {
		t.Fatalf("Failed to create test poll: %v", err)
	}

	return pollID
}

// SubmitTestBallot inserts a ballot row directly, bypassing the pipeline.
func SubmitTestBallot(t *testing.T, conn *sql.DB, pollID, participantID, answer string) string {
	t.Helper()

	ballotID := uuid.NewString()
	_, err := conn.Exec(`
		INSERT INTO poll_answer (id, poll_id, participant_id, answer, idempotency_token, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ballotID, pollID, participantID, answer, uuid.NewString(), time.Now())
	if err != nil {
		t.Fatalf("Failed to create test ballot: %v", err)
	}

	return ballotID
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
