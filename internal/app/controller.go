package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"live-trivia-service/internal/domain"
)

// Store is the narrow durable contract the engine needs. Implementations must
// return domain.ErrCodeTaken, domain.ErrNameTaken and domain.ErrAnswerExists
// on the respective uniqueness violations. CreateAnswer applies the record's
// points to the participant's score in the same operation, so an answer row
// can never persist without its score.
type Store interface {
	CreateSession(ctx context.Context, rec domain.SessionRecord) error
	SessionByCode(ctx context.Context, code string) (domain.SessionRecord, error)
	SetSessionStatus(ctx context.Context, code string, status domain.SessionStatus, at time.Time) error
	AddParticipant(ctx context.Context, code string, p *domain.Participant) error
	Participants(ctx context.Context, code string) ([]domain.Participant, error)
	CreateAnswer(ctx context.Context, rec domain.AnswerRecord) error
	AnswersForQuestion(ctx context.Context, code string, questionID int64) ([]domain.AnswerRecord, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
}

// SnapshotStore holds the live snapshot per normalized session code. Get
// returns domain.ErrSessionNotFound on a cache miss.
type SnapshotStore interface {
	Get(ctx context.Context, code string) (*domain.SessionSnapshot, error)
	Put(ctx context.Context, code string, snap *domain.SessionSnapshot) error
	Delete(ctx context.Context, code string) error
}

// Broadcaster fans an event out to every connection of a session.
type Broadcaster interface {
	BroadcastToSession(code, eventType string, payload any)
}

const codeAttempts = 5

// Controller is the sole authority over session state transitions and
// scoring. All snapshot read-modify-write sequences for one session are
// serialized through a per-code mutex; independent sessions never contend.
type Controller struct {
	store   Store
	quizzes QuizRepository
	snaps   SnapshotStore
	bus     Broadcaster
	clock   clockwork.Clock
	log     zerolog.Logger

	locks  keyedMutex
	timers timerRegistry
}

func NewController(store Store, quizzes QuizRepository, snaps SnapshotStore, bus Broadcaster, clock clockwork.Clock, log zerolog.Logger) *Controller {
	return &Controller{
		store:   store,
		quizzes: quizzes,
		snaps:   snaps,
		bus:     bus,
		clock:   clock,
		log:     log,
	}
}

// NormalizeCode canonicalizes a human-shared session code.
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// CreateSession loads the quiz, verifies ownership, and creates a waiting
// session under a fresh code. Code generation retries on collision with a
// live session.
func (c *Controller) CreateSession(ctx context.Context, quizID, ownerID int64) (domain.SessionRecord, error) {
	quiz, err := c.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.SessionRecord{}, err
	}
	if quiz.OwnerID != ownerID {
		return domain.SessionRecord{}, domain.ErrNotOwner
	}

	rec := domain.SessionRecord{
		QuizID:    quizID,
		Status:    domain.StatusWaiting,
		CreatedAt: c.clock.Now(),
	}
	for attempt := 0; ; attempt++ {
		rec.Code = generateCode()
		err = c.store.CreateSession(ctx, rec)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrCodeTaken) || attempt+1 >= codeAttempts {
			return domain.SessionRecord{}, fmt.Errorf("create session: %w", err)
		}
	}

	snap := &domain.SessionSnapshot{
		Code:                 rec.Code,
		QuizID:               quizID,
		Status:               domain.StatusWaiting,
		CurrentQuestionIndex: -1,
		Players:              []domain.Participant{},
		TotalQuestions:       len(quiz.Questions),
	}
	if err := c.snaps.Put(ctx, rec.Code, snap); err != nil {
		return domain.SessionRecord{}, fmt.Errorf("store snapshot: %w", err)
	}

	c.log.Info().Str("session", rec.Code).Int64("quiz_id", quizID).Msg("session created")
	return rec, nil
}

// JoinSession registers a new participant under a unique display name and
// announces them to the session.
func (c *Controller) JoinSession(ctx context.Context, code, name string) (domain.Participant, error) {
	code = NormalizeCode(code)
	if name = strings.TrimSpace(name); name == "" {
		return domain.Participant{}, domain.ErrInvalidPayload
	}
	unlock := c.locks.lock(code)
	defer unlock()

	rec, err := c.store.SessionByCode(ctx, code)
	if err != nil {
		return domain.Participant{}, err
	}
	if rec.Status == domain.StatusFinished {
		return domain.Participant{}, domain.ErrSessionFinished
	}

	p := domain.Participant{Name: name, JoinedAt: c.clock.Now()}
	if err := c.store.AddParticipant(ctx, code, &p); err != nil {
		return domain.Participant{}, err
	}

	snap, err := c.snapshotLocked(ctx, code)
	if err != nil {
		return domain.Participant{}, err
	}
	snap.Players = append(snap.Players, p)
	if err := c.snaps.Put(ctx, code, snap); err != nil {
		return domain.Participant{}, fmt.Errorf("store snapshot: %w", err)
	}

	c.bus.BroadcastToSession(code, domain.EventPlayerUpdate, domain.PlayerUpdatePayload{
		Action: "joined",
		Player: p,
	})
	c.log.Info().Str("session", code).Int64("participant", p.ID).Str("name", name).Msg("participant joined")
	return p, nil
}

// ActivateSession transitions waiting -> active. It does not start a
// question; the host advances explicitly once everyone is ready.
func (c *Controller) ActivateSession(ctx context.Context, code string, requesterID int64) error {
	code = NormalizeCode(code)
	unlock := c.locks.lock(code)
	defer unlock()

	rec, err := c.store.SessionByCode(ctx, code)
	if err != nil {
		return err
	}
	quiz, err := c.quizzes.GetQuiz(ctx, rec.QuizID)
	if err != nil {
		return err
	}
	if quiz.OwnerID != requesterID {
		return domain.ErrNotOwner
	}
	if rec.Status != domain.StatusWaiting {
		return domain.ErrSessionNotWaiting
	}

	now := c.clock.Now()
	if err := c.store.SetSessionStatus(ctx, code, domain.StatusActive, now); err != nil {
		return fmt.Errorf("activate session: %w", err)
	}

	snap, err := c.snapshotLocked(ctx, code)
	if err != nil {
		return err
	}
	snap.Status = domain.StatusActive
	snap.TotalQuestions = len(quiz.Questions)
	if err := c.snaps.Put(ctx, code, snap); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}

	c.log.Info().Str("session", code).Msg("session activated")
	return nil
}

// AdvanceQuestion closes the open question if any, then either starts the
// next question or finishes the session past the last one.
func (c *Controller) AdvanceQuestion(ctx context.Context, code string, requesterID int64) error {
	code = NormalizeCode(code)
	unlock := c.locks.lock(code)
	defer unlock()

	rec, err := c.store.SessionByCode(ctx, code)
	if err != nil {
		return err
	}
	quiz, err := c.quizzes.GetQuiz(ctx, rec.QuizID)
	if err != nil {
		return err
	}
	if quiz.OwnerID != requesterID {
		return domain.ErrNotOwner
	}

	snap, err := c.snapshotLocked(ctx, code)
	if err != nil {
		return err
	}
	if snap.Status == domain.StatusFinished {
		return domain.ErrSessionFinished
	}
	if snap.Status != domain.StatusActive {
		return domain.ErrSessionNotActive
	}

	if snap.QuestionOpen {
		if err := c.endQuestionLocked(ctx, code, snap.CurrentQuestionIndex); err != nil && !errors.Is(err, domain.ErrQuestionClosed) {
			return err
		}
	}

	next := snap.CurrentQuestionIndex + 1
	if next >= snap.TotalQuestions {
		return c.finishLocked(ctx, code, "Quiz completed! Here are the final results:", "")
	}
	return c.startQuestionLocked(ctx, code, next)
}

// GameState returns the current snapshot for resynchronization and fetches.
// A cache miss degrades to a minimal snapshot rebuilt from durable storage.
func (c *Controller) GameState(ctx context.Context, code string) (*domain.SessionSnapshot, error) {
	code = NormalizeCode(code)
	unlock := c.locks.lock(code)
	defer unlock()
	return c.snapshotLocked(ctx, code)
}

// HandleHostDisconnect force-finishes a session whose host connection
// dropped. Safe to call for unknown or already finished sessions.
func (c *Controller) HandleHostDisconnect(code string) {
	ctx := context.Background()
	code = NormalizeCode(code)
	unlock := c.locks.lock(code)
	defer unlock()

	snap, err := c.snapshotLocked(ctx, code)
	if err != nil {
		c.log.Warn().Err(err).Str("session", code).Msg("host disconnect for unknown session")
		return
	}
	if snap.Status == domain.StatusFinished {
		return
	}
	err = c.finishLocked(ctx, code, "Quiz host has left the game. The quiz has ended.", domain.GameEndReasonHostLeft)
	if err != nil && !errors.Is(err, domain.ErrSessionFinished) {
		c.log.Error().Err(err).Str("session", code).Msg("force-finish after host disconnect failed")
	}
}

// snapshotLocked loads the live snapshot, rebuilding a minimal one from the
// durable store on a cache miss so reconnecting clients always get some valid
// state. Callers must hold the per-code lock.
func (c *Controller) snapshotLocked(ctx context.Context, code string) (*domain.SessionSnapshot, error) {
	snap, err := c.snaps.Get(ctx, code)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		c.log.Warn().Err(err).Str("session", code).Msg("snapshot read degraded to durable store")
	}

	rec, err := c.store.SessionByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	players, err := c.store.Participants(ctx, code)
	if err != nil {
		return nil, err
	}
	snap = &domain.SessionSnapshot{
		Code:                 code,
		QuizID:               rec.QuizID,
		Status:               rec.Status,
		CurrentQuestionIndex: -1,
		Players:              players,
	}
	if quiz, err := c.quizzes.GetQuiz(ctx, rec.QuizID); err == nil {
		snap.TotalQuestions = len(quiz.Questions)
	}
	if rec.Status == domain.StatusFinished {
		snap.CurrentQuestionIndex = snap.TotalQuestions
	}
	if err := c.snaps.Put(ctx, code, snap); err != nil {
		c.log.Warn().Err(err).Str("session", code).Msg("failed to re-store rebuilt snapshot")
	}
	return snap, nil
}

// finishLocked performs the one-way transition to finished and broadcasts the
// final leaderboard. Callers must hold the per-code lock.
func (c *Controller) finishLocked(ctx context.Context, code, message, reason string) error {
	snap, err := c.snapshotLocked(ctx, code)
	if err != nil {
		return err
	}
	if snap.Status == domain.StatusFinished {
		return domain.ErrSessionFinished
	}

	c.timers.cancel(code)

	now := c.clock.Now()
	if err := c.store.SetSessionStatus(ctx, code, domain.StatusFinished, now); err != nil {
		return fmt.Errorf("finish session: %w", err)
	}

	snap.Status = domain.StatusFinished
	snap.CurrentQuestion = nil
	snap.QuestionOpen = false
	snap.CurrentQuestionIndex = snap.TotalQuestions
	if err := c.snaps.Put(ctx, code, snap); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}

	c.bus.BroadcastToSession(code, domain.EventGameEnd, domain.GameEndPayload{
		Message:          message,
		Reason:           reason,
		FinalLeaderboard: rankPlayers(snap.Players),
		TotalQuestions:   snap.TotalQuestions,
	})
	c.log.Info().Str("session", code).Str("reason", reason).Msg("session finished")
	return nil
}

// generateCode produces a short shareable token. Collisions are possible and
// handled by retrying against the store's uniqueness check.
func generateCode() string {
	buf := make([]byte, 3)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
