package domain

import "time"

// SessionStatus enumerates the lifecycle of a live session. Transitions are
// monotone: waiting -> active -> finished.
type SessionStatus string

const (
	StatusWaiting  SessionStatus = "waiting"
	StatusActive   SessionStatus = "active"
	StatusFinished SessionStatus = "finished"
)

// HostParticipantID is the sentinel identity of the host connection. It never
// scores points and its disconnect ends the session.
const HostParticipantID int64 = 0

// DefaultTimeLimit applies when a question carries no time limit of its own.
const DefaultTimeLimit = 30

// Option represents a possible answer for a question.
type Option struct {
	ID      int64  `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"is_correct"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID        int64    `json:"id"`
	Text      string   `json:"text"`
	TimeLimit int      `json:"time_limit"` // seconds, defaults to DefaultTimeLimit if zero
	Options   []Option `json:"options"`
}

// Quiz is an ordered collection of questions owned by a single user.
type Quiz struct {
	ID        int64      `json:"id"`
	OwnerID   int64      `json:"owner_id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// EffectiveTimeLimit returns the question's countdown length in seconds.
func (q Question) EffectiveTimeLimit() int {
	if q.TimeLimit <= 0 {
		return DefaultTimeLimit
	}
	return q.TimeLimit
}

// CorrectOption returns the first option flagged correct, or nil.
func (q Question) CorrectOption() *Option {
	for i := range q.Options {
		if q.Options[i].Correct {
			return &q.Options[i]
		}
	}
	return nil
}

// SessionRecord is the durable row for one live play-through of a quiz.
// Code is stored normalized (lowercase) and is unique among live sessions.
type SessionRecord struct {
	Code      string        `json:"code"`
	QuizID    int64         `json:"quiz_id"`
	Status    SessionStatus `json:"status"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Participant is a joined player and their cumulative score. The score only
// ever increases. ID 0 is reserved for the host sentinel.
type Participant struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Score    int       `json:"score"`
	JoinedAt time.Time `json:"joined_at"`
}

// AnswerRecord is the immutable result of one participant answering one
// question. At most one exists per (session, participant, question).
type AnswerRecord struct {
	SessionCode   string    `json:"session_code"`
	ParticipantID int64     `json:"participant_id"`
	QuestionID    int64     `json:"question_id"`
	OptionID      int64     `json:"option_id"`
	Correct       bool      `json:"is_correct"`
	TimeSpent     int       `json:"time_spent"` // seconds
	Points        int       `json:"points"`
	CreatedAt     time.Time `json:"created_at"`
}

// OptionView is an option as shown to participants while a question is open:
// the correctness flag is withheld.
type OptionView struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// QuestionView is the live projection of the currently open question.
type QuestionView struct {
	ID        int64        `json:"id"`
	Text      string       `json:"text"`
	TimeLimit int          `json:"time_limit"`
	TimeLeft  int          `json:"time_left"`
	Options   []OptionView `json:"options"`
}

// SessionSnapshot is the cached live state of a session, keyed by normalized
// code. CurrentQuestionIndex is -1 before the first question and equals
// TotalQuestions once the session has finished. QuestionOpen is the closure
// flag that makes ending a question idempotent per index.
type SessionSnapshot struct {
	Code                 string        `json:"code"`
	QuizID               int64         `json:"quiz_id"`
	Status               SessionStatus `json:"status"`
	CurrentQuestionIndex int           `json:"current_question_index"`
	CurrentQuestion      *QuestionView `json:"current_question,omitempty"`
	QuestionOpen         bool          `json:"question_open"`
	Players              []Participant `json:"players"`
	TotalQuestions       int           `json:"total_questions"`
}

// Player returns a pointer into Players for the given id, or nil.
func (s *SessionSnapshot) Player(id int64) *Participant {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return nil
}

// ViewOf projects a question for live consumption without correctness flags.
func ViewOf(q Question) *QuestionView {
	limit := q.EffectiveTimeLimit()
	view := &QuestionView{
		ID:        q.ID,
		Text:      q.Text,
		TimeLimit: limit,
		TimeLeft:  limit,
		Options:   make([]OptionView, len(q.Options)),
	}
	for i, opt := range q.Options {
		view.Options[i] = OptionView{ID: opt.ID, Text: opt.Text}
	}
	return view
}
