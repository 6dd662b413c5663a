package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"live-trivia-service/internal/app"
	"live-trivia-service/internal/domain"
	"live-trivia-service/internal/infra/memory"
)

const ownerID int64 = 7

// eventRecorder captures broadcasts instead of pushing them to sockets.
type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	Code    string
	Type    string
	Payload any
}

func (r *eventRecorder) BroadcastToSession(code, eventType string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Code: code, Type: eventType, Payload: payload})
}

func (r *eventRecorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func (r *eventRecorder) last(eventType string) (recordedEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == eventType {
			return r.events[i], true
		}
	}
	return recordedEvent{}, false
}

type engine struct {
	ctrl   *app.Controller
	events *eventRecorder
	snaps  *memory.SnapshotStore
	clock  *clockwork.FakeClock
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	clock := clockwork.NewFakeClock()
	store := memory.NewStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(testQuizzes()), time.Minute)
	snaps := memory.NewSnapshotStore(time.Hour)
	events := &eventRecorder{}
	ctrl := app.NewController(store, quizzes, snaps, events, clock, zerolog.Nop())
	return &engine{ctrl: ctrl, events: events, snaps: snaps, clock: clock}
}

func testQuizzes() map[int64]domain.Quiz {
	return map[int64]domain.Quiz{
		1: {
			ID:      1,
			OwnerID: ownerID,
			Title:   "Two rounds",
			Questions: []domain.Question{
				{
					ID:        10,
					Text:      "First question",
					TimeLimit: 30,
					Options: []domain.Option{
						{ID: 101, Text: "Wrong"},
						{ID: 102, Text: "Right", Correct: true},
					},
				},
				{
					ID:        20,
					Text:      "Second question",
					TimeLimit: 15,
					Options: []domain.Option{
						{ID: 201, Text: "Right", Correct: true},
						{ID: 202, Text: "Wrong"},
					},
				},
			},
		},
		2: {
			ID:      2,
			OwnerID: ownerID,
			Title:   "Speed round",
			Questions: []domain.Question{
				{
					ID:        30,
					Text:      "Only question",
					TimeLimit: 2,
					Options: []domain.Option{
						{ID: 301, Text: "Right", Correct: true},
						{ID: 302, Text: "Wrong"},
					},
				},
			},
		},
	}
}

func TestCreateSession(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	rec, err := e.ctrl.CreateSession(ctx, 1, ownerID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(rec.Code) != 6 {
		t.Fatalf("expected 6-char code, got %q", rec.Code)
	}
	if rec.Status != domain.StatusWaiting {
		t.Fatalf("expected waiting session, got %s", rec.Status)
	}

	if _, err := e.ctrl.CreateSession(ctx, 1, ownerID+1); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner for foreign quiz, got %v", err)
	}
	if _, err := e.ctrl.CreateSession(ctx, 99, ownerID); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestJoinSession(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	rec, _ := e.ctrl.CreateSession(ctx, 1, ownerID)

	alice, err := e.ctrl.JoinSession(ctx, rec.Code, "Alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if alice.ID != 1 {
		t.Fatalf("expected first participant id 1, got %d", alice.ID)
	}

	// Codes are shared by humans; case must not matter.
	bob, err := e.ctrl.JoinSession(ctx, "  "+capitalize(rec.Code)+"  ", "Bob")
	if err != nil {
		t.Fatalf("join with messy code: %v", err)
	}
	if bob.ID != 2 {
		t.Fatalf("expected second participant id 2, got %d", bob.ID)
	}

	if _, err := e.ctrl.JoinSession(ctx, rec.Code, "Alice"); !errors.Is(err, domain.ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}
	if _, err := e.ctrl.JoinSession(ctx, rec.Code, "   "); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for blank name, got %v", err)
	}
	if _, err := e.ctrl.JoinSession(ctx, "nope42", "Eve"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	if got := e.events.count(domain.EventPlayerUpdate); got != 2 {
		t.Fatalf("expected 2 player_update broadcasts, got %d", got)
	}
}

func TestActivateSession(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	rec, _ := e.ctrl.CreateSession(ctx, 1, ownerID)

	if err := e.ctrl.ActivateSession(ctx, rec.Code, ownerID+1); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := e.ctrl.ActivateSession(ctx, rec.Code, ownerID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := e.ctrl.ActivateSession(ctx, rec.Code, ownerID); !errors.Is(err, domain.ErrSessionNotWaiting) {
		t.Fatalf("expected ErrSessionNotWaiting on re-activate, got %v", err)
	}
}

func TestFullLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	rec, _ := e.ctrl.CreateSession(ctx, 1, ownerID)
	alice, _ := e.ctrl.JoinSession(ctx, rec.Code, "Alice")
	bob, _ := e.ctrl.JoinSession(ctx, rec.Code, "Bob")

	if err := e.ctrl.AdvanceQuestion(ctx, rec.Code, ownerID); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("expected ErrSessionNotActive before activation, got %v", err)
	}
	if err := e.ctrl.ActivateSession(ctx, rec.Code, ownerID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	// First advance opens question 0.
	if err := e.ctrl.AdvanceQuestion(ctx, rec.Code, ownerID); err != nil {
		t.Fatalf("advance to q0: %v", err)
	}
	start, ok := e.events.last(domain.EventQuestionStart)
	if !ok {
		t.Fatalf("expected question_start broadcast")
	}
	startPayload := start.Payload.(domain.QuestionStartPayload)
	if startPayload.QuestionIndex != 0 || startPayload.Question.ID != 10 {
		t.Fatalf("unexpected question_start payload: %+v", startPayload)
	}
	for _, opt := range startPayload.Question.Options {
		if opt.ID == 0 || opt.Text == "" {
			t.Fatalf("option view incomplete: %+v", opt)
		}
	}

	answer, err := e.ctrl.SubmitAnswer(ctx, rec.Code, alice.ID, 10, 102, 10)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !answer.Correct || answer.Points != 133 {
		t.Fatalf("expected correct answer worth 133, got %+v", answer)
	}
	if _, err := e.ctrl.SubmitAnswer(ctx, rec.Code, alice.ID, 10, 102, 5); !errors.Is(err, domain.ErrAnswerExists) {
		t.Fatalf("expected ErrAnswerExists on resubmit, got %v", err)
	}
	wrong, err := e.ctrl.SubmitAnswer(ctx, rec.Code, bob.ID, 10, 101, 3)
	if err != nil {
		t.Fatalf("submit wrong: %v", err)
	}
	if wrong.Correct || wrong.Points != 0 {
		t.Fatalf("expected incorrect zero-point answer, got %+v", wrong)
	}

	score, ok := e.events.last(domain.EventScoreUpdate)
	if !ok {
		t.Fatalf("expected score_update broadcast")
	}
	scorePayload := score.Payload.(domain.ScoreUpdatePayload)
	if scorePayload.PlayerID != bob.ID || scorePayload.PointsEarned != 0 {
		t.Fatalf("unexpected score_update: %+v", scorePayload)
	}
	for _, p := range scorePayload.Players {
		if p.ID == alice.ID && p.Score != 133 {
			t.Fatalf("expected Alice at 133 in broadcast, got %+v", p)
		}
	}

	// Second advance closes question 0 and opens question 1.
	if err := e.ctrl.AdvanceQuestion(ctx, rec.Code, ownerID); err != nil {
		t.Fatalf("advance to q1: %v", err)
	}
	end, ok := e.events.last(domain.EventQuestionEnd)
	if !ok {
		t.Fatalf("expected question_end broadcast")
	}
	endPayload := end.Payload.(domain.QuestionEndPayload)
	if endPayload.QuestionIndex != 0 || endPayload.CorrectOption == nil || endPayload.CorrectOption.ID != 102 {
		t.Fatalf("unexpected question_end: %+v", endPayload)
	}
	if len(endPayload.Answers) != 2 {
		t.Fatalf("expected both answers revealed, got %+v", endPayload.Answers)
	}

	// Answers against the closed question are rejected.
	if _, err := e.ctrl.SubmitAnswer(ctx, rec.Code, bob.ID, 10, 102, 1); !errors.Is(err, domain.ErrQuestionNotOpen) {
		t.Fatalf("expected ErrQuestionNotOpen for stale question, got %v", err)
	}

	// Third advance walks past the last question and finishes.
	if err := e.ctrl.AdvanceQuestion(ctx, rec.Code, ownerID); err != nil {
		t.Fatalf("final advance: %v", err)
	}
	gameEnd, ok := e.events.last(domain.EventGameEnd)
	if !ok {
		t.Fatalf("expected game_end broadcast")
	}
	endGame := gameEnd.Payload.(domain.GameEndPayload)
	if endGame.Reason != "" {
		t.Fatalf("normal completion should carry no reason, got %q", endGame.Reason)
	}
	if len(endGame.FinalLeaderboard) != 2 || endGame.FinalLeaderboard[0].ID != alice.ID {
		t.Fatalf("expected Alice leading the final leaderboard, got %+v", endGame.FinalLeaderboard)
	}

	snap, err := e.ctrl.GameState(ctx, rec.Code)
	if err != nil {
		t.Fatalf("game state: %v", err)
	}
	if snap.Status != domain.StatusFinished || snap.CurrentQuestionIndex != snap.TotalQuestions {
		t.Fatalf("expected terminal snapshot, got %+v", snap)
	}

	if err := e.ctrl.AdvanceQuestion(ctx, rec.Code, ownerID); !errors.Is(err, domain.ErrSessionFinished) {
		t.Fatalf("expected ErrSessionFinished after the end, got %v", err)
	}
	if _, err := e.ctrl.JoinSession(ctx, rec.Code, "Late"); !errors.Is(err, domain.ErrSessionFinished) {
		t.Fatalf("expected ErrSessionFinished for late join, got %v", err)
	}
}

func TestEndQuestionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	rec, _ := e.ctrl.CreateSession(ctx, 1, ownerID)
	_, _ = e.ctrl.JoinSession(ctx, rec.Code, "Alice")
	_ = e.ctrl.ActivateSession(ctx, rec.Code, ownerID)
	_ = e.ctrl.AdvanceQuestion(ctx, rec.Code, ownerID)

	if err := e.ctrl.EndQuestion(ctx, rec.Code, 0); err != nil {
		t.Fatalf("first end: %v", err)
	}
	if err := e.ctrl.EndQuestion(ctx, rec.Code, 0); !errors.Is(err, domain.ErrQuestionClosed) {
		t.Fatalf("expected ErrQuestionClosed on second end, got %v", err)
	}
	if got := e.events.count(domain.EventQuestionEnd); got != 1 {
		t.Fatalf("expected exactly one question_end, got %d", got)
	}

	// Nobody answered: the reveal is empty but still broadcast.
	end, _ := e.events.last(domain.EventQuestionEnd)
	if answers := end.Payload.(domain.QuestionEndPayload).Answers; len(answers) != 0 {
		t.Fatalf("expected empty reveal, got %+v", answers)
	}
}

func TestSubmitAnswerValidation(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	rec, _ := e.ctrl.CreateSession(ctx, 1, ownerID)
	alice, _ := e.ctrl.JoinSession(ctx, rec.Code, "Alice")
	_ = e.ctrl.ActivateSession(ctx, rec.Code, ownerID)
	_ = e.ctrl.AdvanceQuestion(ctx, rec.Code, ownerID)

	if _, err := e.ctrl.SubmitAnswer(ctx, rec.Code, domain.HostParticipantID, 10, 102, 1); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("host must not score, got %v", err)
	}
	if _, err := e.ctrl.SubmitAnswer(ctx, rec.Code, 42, 10, 102, 1); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
	if _, err := e.ctrl.SubmitAnswer(ctx, rec.Code, alice.ID, 10, 999, 1); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("expected ErrOptionNotFound, got %v", err)
	}
	if _, err := e.ctrl.SubmitAnswer(ctx, rec.Code, alice.ID, 20, 201, 1); !errors.Is(err, domain.ErrQuestionNotOpen) {
		t.Fatalf("expected ErrQuestionNotOpen for future question, got %v", err)
	}
}

func TestHostDisconnectFinishesOnce(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	rec, _ := e.ctrl.CreateSession(ctx, 1, ownerID)
	_, _ = e.ctrl.JoinSession(ctx, rec.Code, "Alice")
	_ = e.ctrl.ActivateSession(ctx, rec.Code, ownerID)
	_ = e.ctrl.AdvanceQuestion(ctx, rec.Code, ownerID)

	e.ctrl.HandleHostDisconnect(rec.Code)
	e.ctrl.HandleHostDisconnect(rec.Code)

	if got := e.events.count(domain.EventGameEnd); got != 1 {
		t.Fatalf("expected exactly one game_end, got %d", got)
	}
	end, _ := e.events.last(domain.EventGameEnd)
	if reason := end.Payload.(domain.GameEndPayload).Reason; reason != domain.GameEndReasonHostLeft {
		t.Fatalf("expected host-left reason, got %q", reason)
	}

	snap, err := e.ctrl.GameState(ctx, rec.Code)
	if err != nil {
		t.Fatalf("game state: %v", err)
	}
	if snap.Status != domain.StatusFinished {
		t.Fatalf("expected finished session, got %s", snap.Status)
	}
}

func TestGameStateRebuildsFromDurableStore(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	rec, _ := e.ctrl.CreateSession(ctx, 1, ownerID)
	alice, _ := e.ctrl.JoinSession(ctx, rec.Code, "Alice")

	// Simulate the cache expiring mid-session.
	if err := e.snaps.Delete(ctx, rec.Code); err != nil {
		t.Fatalf("delete snapshot: %v", err)
	}

	snap, err := e.ctrl.GameState(ctx, rec.Code)
	if err != nil {
		t.Fatalf("game state after cache loss: %v", err)
	}
	if snap.Status != domain.StatusWaiting || snap.CurrentQuestionIndex != -1 {
		t.Fatalf("unexpected rebuilt snapshot: %+v", snap)
	}
	if snap.Player(alice.ID) == nil {
		t.Fatalf("expected Alice in rebuilt snapshot, got %+v", snap.Players)
	}
	if snap.TotalQuestions != 2 {
		t.Fatalf("expected question count restored, got %d", snap.TotalQuestions)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	upper := []byte(s)
	for i, ch := range upper {
		if ch >= 'a' && ch <= 'z' {
			upper[i] = ch - 'a' + 'A'
		}
	}
	return string(upper)
}
