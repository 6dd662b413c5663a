package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"live-trivia-service/internal/app"
	"live-trivia-service/internal/domain"
	"live-trivia-service/internal/hub"
	"live-trivia-service/internal/infra/memory"
)

const testOwnerID = "7"

func newTestStack(t *testing.T) (*httptest.Server, *app.Controller) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(quizFixture()), time.Minute)
	snaps := memory.NewSnapshotStore(time.Hour)
	connHub := hub.New(zerolog.Nop())
	ctrl := app.NewController(store, quizzes, snaps, connHub, clockwork.NewFakeClock(), zerolog.Nop())

	router := gin.New()
	NewGameHandler(ctrl, zerolog.Nop()).RegisterRoutes(router)
	NewWSHandler(ctrl, connHub, zerolog.Nop()).RegisterRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, ctrl
}

func quizFixture() map[int64]domain.Quiz {
	return map[int64]domain.Quiz{
		1: {
			ID:      1,
			OwnerID: 7,
			Title:   "Capitals",
			Questions: []domain.Question{
				{
					ID:        10,
					Text:      "Capital of France?",
					TimeLimit: 30,
					Options: []domain.Option{
						{ID: 101, Text: "Lyon"},
						{ID: 102, Text: "Paris", Correct: true},
					},
				},
			},
		},
	}
}

func doJSON(t *testing.T, method, url, userID, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestGameAPIFlow(t *testing.T) {
	server, _ := newTestStack(t)
	base := server.URL + "/api/games"

	// Session creation needs the requester identity.
	resp, _ := doJSON(t, http.MethodPost, base, "", `{"quiz_id":1}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, base, "8", `{"quiz_id":1}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for non-owner, got %d", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodPost, base, testOwnerID, `{"quiz_id":1}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%v)", resp.StatusCode, body)
	}
	code, _ := body["code"].(string)
	if code == "" {
		t.Fatalf("expected session code in response, got %v", body)
	}

	resp, body = doJSON(t, http.MethodPost, base+"/"+code+"/join", "", `{"name":"Alice"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join: expected 200, got %d (%v)", resp.StatusCode, body)
	}
	participantID := int64(body["id"].(float64))
	if participantID != 1 {
		t.Fatalf("expected participant id 1, got %d", participantID)
	}
	resp, _ = doJSON(t, http.MethodPost, base+"/"+code+"/join", "", `{"name":"Alice"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate name: expected 409, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, base+"/"+code+"/activate", "8", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("foreign activate: expected 401, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, base+"/"+code+"/activate", testOwnerID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate: expected 200, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, base+"/"+code+"/advance", testOwnerID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("advance: expected 200, got %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodGet, base+"/"+code, "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get session: expected 200, got %d", resp.StatusCode)
	}
	if body["status"] != string(domain.StatusActive) || body["question_open"] != true {
		t.Fatalf("unexpected snapshot: %v", body)
	}

	answer := `{"participant_id":1,"question_id":10,"option_id":102,"time_spent":10}`
	resp, body = doJSON(t, http.MethodPost, base+"/"+code+"/answer", "", answer)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("answer: expected 200, got %d (%v)", resp.StatusCode, body)
	}
	if points := body["points"].(float64); points != 133 {
		t.Fatalf("expected 133 points, got %v", points)
	}
	resp, _ = doJSON(t, http.MethodPost, base+"/"+code+"/answer", "", answer)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate answer: expected 409, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, base+"/"+code+"/answer", "", `{"participant_id":1}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed answer: expected 400, got %d", resp.StatusCode)
	}

	// Final advance past the only question ends the game.
	resp, _ = doJSON(t, http.MethodPost, base+"/"+code+"/advance", testOwnerID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("final advance: expected 200, got %d", resp.StatusCode)
	}
	resp, body = doJSON(t, http.MethodGet, base+"/"+code, "", "")
	if body["status"] != string(domain.StatusFinished) {
		t.Fatalf("expected finished session, got %v", body)
	}
	resp, _ = doJSON(t, http.MethodPost, base+"/"+code+"/advance", testOwnerID, "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("advance after finish: expected 409, got %d", resp.StatusCode)
	}
}

func TestGameAPIUnknownSession(t *testing.T) {
	server, _ := newTestStack(t)

	resp, _ := doJSON(t, http.MethodGet, server.URL+"/api/games/nope42", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown code, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/games/nope42/join", "", `{"name":"Alice"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 joining unknown code, got %d", resp.StatusCode)
	}
}
