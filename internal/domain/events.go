package domain

// Event types broadcast to every connection of a session, plus the direct
// replies used for resynchronization.
const (
	EventQuestionStart = "question_start"
	EventTimerUpdate   = "timer_update"
	EventQuestionEnd   = "question_end"
	EventScoreUpdate   = "score_update"
	EventGameEnd       = "game_end"
	EventGameStateSync = "game_state_sync"
	EventPlayerUpdate  = "player_update"
	EventPong          = "pong"
	EventError         = "error"
)

// Inbound message types accepted on a participant connection.
const (
	MsgPing             = "ping"
	MsgPlayerReady      = "player_ready"
	MsgRequestGameState = "request_game_state"
)

// GameEndReasonHostLeft marks a game_end caused by the host disconnecting
// rather than the quiz running to completion.
const GameEndReasonHostLeft = "host_disconnected"

// QuestionStartPayload announces a newly opened question. Options carry no
// correctness flags.
type QuestionStartPayload struct {
	QuestionIndex  int           `json:"question_index"`
	Question       *QuestionView `json:"question"`
	TotalQuestions int           `json:"total_questions"`
}

// TimerUpdatePayload is broadcast once per second while a question is open.
type TimerUpdatePayload struct {
	QuestionIndex int `json:"question_index"`
	TimeLeft      int `json:"time_left"`
}

// AnswerReveal is one participant's result, revealed at question end.
type AnswerReveal struct {
	ParticipantID   int64  `json:"participant_id"`
	ParticipantName string `json:"participant_name"`
	OptionID        int64  `json:"option_id"`
	Correct         bool   `json:"is_correct"`
	Points          int    `json:"points"`
	TimeSpent       int    `json:"time_spent"`
}

// QuestionEndPayload reveals the full question (correct option included) and
// everyone's answers. Answers may be empty if nobody submitted in time.
type QuestionEndPayload struct {
	QuestionIndex  int            `json:"question_index"`
	Question       Question       `json:"question"`
	CorrectOption  *Option        `json:"correct_option,omitempty"`
	Answers        []AnswerReveal `json:"answers"`
	TotalQuestions int            `json:"total_questions"`
}

// ScoreUpdatePayload is the narrow broadcast after an answer submission. It
// reveals the points earned and the submitter's own result, never the correct
// option.
type ScoreUpdatePayload struct {
	Players      []Participant `json:"players"`
	PlayerID     int64         `json:"player_id"`
	PointsEarned int           `json:"points_earned"`
	Correct      bool          `json:"is_correct"`
}

// GameEndPayload carries the final leaderboard. Reason is empty for a normal
// completion and GameEndReasonHostLeft when the host disconnected.
type GameEndPayload struct {
	Message          string        `json:"message"`
	Reason           string        `json:"reason,omitempty"`
	FinalLeaderboard []Participant `json:"final_leaderboard"`
	TotalQuestions   int           `json:"total_questions"`
}

// GameStateSyncPayload is the direct reply to player_ready and
// request_game_state messages.
type GameStateSyncPayload struct {
	GameStatus           SessionStatus `json:"game_status"`
	CurrentQuestionIndex int           `json:"current_question_index"`
	CurrentQuestion      *QuestionView `json:"current_question,omitempty"`
	Players              []Participant `json:"players"`
}

// PlayerUpdatePayload announces a participant joining or leaving.
type PlayerUpdatePayload struct {
	Action string      `json:"action"` // "joined" or "left"
	Player Participant `json:"player"`
}
