package memory

import (
	"context"
	"sync"
	"time"

	"live-trivia-service/internal/domain"
)

// Store is the in-process implementation of the engine's durable contract,
// used for Postgres-less runs and tests. Uniqueness rules match the SQL
// constraints: session code among live sessions, display name per session,
// one answer per (session, participant, question).
type Store struct {
	mu       sync.Mutex
	sessions map[string]*sessionRow
}

type sessionRow struct {
	rec          domain.SessionRecord
	participants []domain.Participant
	nextID       int64
	answers      map[answerKey]domain.AnswerRecord
}

type answerKey struct {
	participantID int64
	questionID    int64
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*sessionRow)}
}

func (s *Store) CreateSession(_ context.Context, rec domain.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.sessions[rec.Code]; ok && row.rec.Status != domain.StatusFinished {
		return domain.ErrCodeTaken
	}
	s.sessions[rec.Code] = &sessionRow{
		rec:     rec,
		nextID:  domain.HostParticipantID + 1,
		answers: make(map[answerKey]domain.AnswerRecord),
	}
	return nil
}

func (s *Store) SessionByCode(_ context.Context, code string) (domain.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.sessions[code]
	if !ok {
		return domain.SessionRecord{}, domain.ErrSessionNotFound
	}
	return row.rec, nil
}

func (s *Store) SetSessionStatus(_ context.Context, code string, status domain.SessionStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.sessions[code]
	if !ok {
		return domain.ErrSessionNotFound
	}
	row.rec.Status = status
	switch status {
	case domain.StatusActive:
		row.rec.StartedAt = &at
	case domain.StatusFinished:
		row.rec.EndedAt = &at
	}
	return nil
}

func (s *Store) AddParticipant(_ context.Context, code string, p *domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.sessions[code]
	if !ok {
		return domain.ErrSessionNotFound
	}
	for _, existing := range row.participants {
		if existing.Name == p.Name {
			return domain.ErrNameTaken
		}
	}
	p.ID = row.nextID
	row.nextID++
	row.participants = append(row.participants, *p)
	return nil
}

func (s *Store) Participants(_ context.Context, code string) ([]domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.sessions[code]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	out := make([]domain.Participant, len(row.participants))
	copy(out, row.participants)
	return out, nil
}

// CreateAnswer stores the answer and applies its points to the participant's
// score under the same lock, so the two can never diverge.
func (s *Store) CreateAnswer(_ context.Context, rec domain.AnswerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.sessions[rec.SessionCode]
	if !ok {
		return domain.ErrSessionNotFound
	}
	participant := -1
	for i := range row.participants {
		if row.participants[i].ID == rec.ParticipantID {
			participant = i
			break
		}
	}
	if participant < 0 {
		return domain.ErrParticipantNotFound
	}
	key := answerKey{participantID: rec.ParticipantID, questionID: rec.QuestionID}
	if _, exists := row.answers[key]; exists {
		return domain.ErrAnswerExists
	}
	row.answers[key] = rec
	row.participants[participant].Score += rec.Points
	return nil
}

func (s *Store) AnswersForQuestion(_ context.Context, code string, questionID int64) ([]domain.AnswerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.sessions[code]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	var out []domain.AnswerRecord
	for key, rec := range row.answers {
		if key.questionID == questionID {
			out = append(out, rec)
		}
	}
	return out, nil
}
