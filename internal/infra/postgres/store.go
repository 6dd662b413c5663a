package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-trivia-service/internal/domain"
)

// Store is the Postgres implementation of the engine's durable contract.
// Uniqueness conflicts surface as the domain sentinels the controller
// understands, mapped from the constraint that fired.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// LoadQuiz reads the quiz JSONB document. Satisfies the cache loader
// interfaces in infra/memory and infra/redis.
func (s *Store) LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	var (
		ownerID int64
		raw     []byte
	)
	err := s.pool.QueryRow(ctx, `SELECT owner_id, data FROM quizzes WHERE id=$1`, quizID).Scan(&ownerID, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Quiz{}, domain.ErrQuizNotFound
		}
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	quiz.ID = quizID
	quiz.OwnerID = ownerID
	return quiz, nil
}

// CreateSession inserts the session row. A code already held by a live
// session is a conflict; a finished session's code may be recycled, taking
// its participants and answers with it.
func (s *Store) CreateSession(ctx context.Context, rec domain.SessionRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer tx.Rollback(ctx)

	var status domain.SessionStatus
	err = tx.QueryRow(ctx, `SELECT status FROM game_sessions WHERE code=$1 FOR UPDATE`, rec.Code).Scan(&status)
	switch {
	case err == nil:
		if status != domain.StatusFinished {
			return domain.ErrCodeTaken
		}
		if _, err := tx.Exec(ctx, `DELETE FROM game_sessions WHERE code=$1`, rec.Code); err != nil {
			return fmt.Errorf("recycle session code: %w", err)
		}
	case errors.Is(err, pgx.ErrNoRows):
		// fresh code
	default:
		return fmt.Errorf("create session: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO game_sessions (code, quiz_id, status, created_at) VALUES ($1, $2, $3, $4)`,
		rec.Code, rec.QuizID, rec.Status, rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCodeTaken
		}
		return fmt.Errorf("create session: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) SessionByCode(ctx context.Context, code string) (domain.SessionRecord, error) {
	rec := domain.SessionRecord{Code: code}
	err := s.pool.QueryRow(ctx,
		`SELECT quiz_id, status, started_at, ended_at, created_at FROM game_sessions WHERE code=$1`, code).
		Scan(&rec.QuizID, &rec.Status, &rec.StartedAt, &rec.EndedAt, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SessionRecord{}, domain.ErrSessionNotFound
		}
		return domain.SessionRecord{}, fmt.Errorf("session by code: %w", err)
	}
	return rec, nil
}

func (s *Store) SetSessionStatus(ctx context.Context, code string, status domain.SessionStatus, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE game_sessions
		 SET status=$2,
		     started_at = CASE WHEN $2='active' THEN $3 ELSE started_at END,
		     ended_at   = CASE WHEN $2='finished' THEN $3 ELSE ended_at END
		 WHERE code=$1`,
		code, status, at)
	if err != nil {
		return fmt.Errorf("set session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *Store) AddParticipant(ctx context.Context, code string, p *domain.Participant) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO session_participants (session_code, name, score, joined_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		code, p.Name, p.Score, p.JoinedAt).Scan(&p.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrNameTaken
		}
		if isForeignKeyViolation(err) {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

func (s *Store) Participants(ctx context.Context, code string) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, score, joined_at FROM session_participants WHERE session_code=$1 ORDER BY joined_at, id`, code)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.ID, &p.Name, &p.Score, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateAnswer inserts the answer row and applies its points to the
// participant's score in one transaction, so the two can never diverge.
func (s *Store) CreateAnswer(ctx context.Context, rec domain.AnswerRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO session_answers (session_code, participant_id, question_id, option_id, is_correct, time_spent, points, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.SessionCode, rec.ParticipantID, rec.QuestionID, rec.OptionID, rec.Correct, rec.TimeSpent, rec.Points, rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAnswerExists
		}
		if isForeignKeyViolation(err) {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("create answer: %w", err)
	}

	if rec.Points > 0 {
		tag, err := tx.Exec(ctx,
			`UPDATE session_participants SET score = score + $3 WHERE session_code=$1 AND id=$2`,
			rec.SessionCode, rec.ParticipantID, rec.Points)
		if err != nil {
			return fmt.Errorf("apply answer points: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrParticipantNotFound
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) AnswersForQuestion(ctx context.Context, code string, questionID int64) ([]domain.AnswerRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT participant_id, option_id, is_correct, time_spent, points, created_at
		 FROM session_answers WHERE session_code=$1 AND question_id=$2 ORDER BY created_at`, code, questionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var out []domain.AnswerRecord
	for rows.Next() {
		rec := domain.AnswerRecord{SessionCode: code, QuestionID: questionID}
		if err := rows.Scan(&rec.ParticipantID, &rec.OptionID, &rec.Correct, &rec.TimeSpent, &rec.Points, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
