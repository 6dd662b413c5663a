package app

import (
	"context"
	"fmt"

	"live-trivia-service/internal/domain"
)

// StartQuestion opens the question at index, broadcasts it without
// correctness flags, and spawns its countdown timer. Indexes advance strictly
// by one; starting while another question is open is a conflict.
func (c *Controller) StartQuestion(ctx context.Context, code string, index int) error {
	code = NormalizeCode(code)
	unlock := c.locks.lock(code)
	defer unlock()
	return c.startQuestionLocked(ctx, code, index)
}

func (c *Controller) startQuestionLocked(ctx context.Context, code string, index int) error {
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
		return domain.ErrQuestionAlreadyOpen
	}
	if index != snap.CurrentQuestionIndex+1 {
		return domain.ErrQuestionOutOfRange
	}

	quiz, err := c.quizzes.GetQuiz(ctx, snap.QuizID)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(quiz.Questions) {
		return domain.ErrQuestionOutOfRange
	}
	question := quiz.Questions[index]

	snap.CurrentQuestionIndex = index
	snap.CurrentQuestion = domain.ViewOf(question)
	snap.QuestionOpen = true
	snap.TotalQuestions = len(quiz.Questions)
	if err := c.snaps.Put(ctx, code, snap); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}

	c.bus.BroadcastToSession(code, domain.EventQuestionStart, domain.QuestionStartPayload{
		QuestionIndex:  index,
		Question:       snap.CurrentQuestion,
		TotalQuestions: snap.TotalQuestions,
	})
	c.spawnTimer(code, index, question.EffectiveTimeLimit())

	c.log.Info().Str("session", code).Int("question", index).Int("time_limit", question.EffectiveTimeLimit()).Msg("question started")
	return nil
}

// SubmitAnswer records one participant's answer for the currently open
// question, scores it, and broadcasts a score update that reveals the points
// earned but not the correct option.
func (c *Controller) SubmitAnswer(ctx context.Context, code string, participantID, questionID, optionID int64, timeSpent int) (domain.AnswerRecord, error) {
	code = NormalizeCode(code)
	unlock := c.locks.lock(code)
	defer unlock()

	snap, err := c.snapshotLocked(ctx, code)
	if err != nil {
		return domain.AnswerRecord{}, err
	}
	if snap.Status == domain.StatusFinished {
		return domain.AnswerRecord{}, domain.ErrSessionFinished
	}
	if snap.Status != domain.StatusActive {
		return domain.AnswerRecord{}, domain.ErrSessionNotActive
	}
	if !snap.QuestionOpen || snap.CurrentQuestion == nil || snap.CurrentQuestion.ID != questionID {
		return domain.AnswerRecord{}, domain.ErrQuestionNotOpen
	}
	player := snap.Player(participantID)
	if player == nil || participantID == domain.HostParticipantID {
		return domain.AnswerRecord{}, domain.ErrParticipantNotFound
	}

	quiz, err := c.quizzes.GetQuiz(ctx, snap.QuizID)
	if err != nil {
		return domain.AnswerRecord{}, err
	}
	question, err := questionByID(quiz, questionID)
	if err != nil {
		return domain.AnswerRecord{}, err
	}
	option, err := optionByID(question, optionID)
	if err != nil {
		return domain.AnswerRecord{}, err
	}

	limit := question.EffectiveTimeLimit()
	spent := clampTimeSpent(timeSpent, limit)
	points := Score(option.Correct, spent, limit)

	rec := domain.AnswerRecord{
		SessionCode:   code,
		ParticipantID: participantID,
		QuestionID:    questionID,
		OptionID:      optionID,
		Correct:       option.Correct,
		TimeSpent:     spent,
		Points:        points,
		CreatedAt:     c.clock.Now(),
	}
	if err := c.store.CreateAnswer(ctx, rec); err != nil {
		return domain.AnswerRecord{}, err
	}

	player.Score += points
	if err := c.snaps.Put(ctx, code, snap); err != nil {
		return domain.AnswerRecord{}, fmt.Errorf("store snapshot: %w", err)
	}

	c.bus.BroadcastToSession(code, domain.EventScoreUpdate, domain.ScoreUpdatePayload{
		Players:      snap.Players,
		PlayerID:     participantID,
		PointsEarned: points,
		Correct:      option.Correct,
	})
	c.log.Info().Str("session", code).Int64("participant", participantID).Int64("question", questionID).Int("points", points).Msg("answer recorded")
	return rec, nil
}

// EndQuestion closes the question at index and broadcasts the full results
// with the correct option revealed. The first caller wins; concurrent
// triggers (timer expiry vs manual advance) see ErrQuestionClosed.
func (c *Controller) EndQuestion(ctx context.Context, code string, index int) error {
	code = NormalizeCode(code)
	unlock := c.locks.lock(code)
	defer unlock()
	return c.endQuestionLocked(ctx, code, index)
}

func (c *Controller) endQuestionLocked(ctx context.Context, code string, index int) error {
	snap, err := c.snapshotLocked(ctx, code)
	if err != nil {
		return err
	}
	if snap.Status == domain.StatusFinished {
		return domain.ErrSessionFinished
	}
	if !snap.QuestionOpen || snap.CurrentQuestionIndex != index {
		return domain.ErrQuestionClosed
	}

	snap.QuestionOpen = false
	if snap.CurrentQuestion != nil {
		snap.CurrentQuestion.TimeLeft = 0
	}
	if err := c.snaps.Put(ctx, code, snap); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	c.timers.cancel(code)

	quiz, err := c.quizzes.GetQuiz(ctx, snap.QuizID)
	if err != nil {
		return err
	}
	if index >= len(quiz.Questions) {
		return domain.ErrQuestionOutOfRange
	}
	question := quiz.Questions[index]

	// A failed answer fetch degrades to an empty reveal; the question still
	// closes and the broadcast still goes out.
	records, err := c.store.AnswersForQuestion(ctx, code, question.ID)
	if err != nil {
		c.log.Error().Err(err).Str("session", code).Int("question", index).Msg("fetching answers failed")
		records = nil
	}
	reveals := make([]domain.AnswerReveal, 0, len(records))
	for _, rec := range records {
		name := ""
		if p := snap.Player(rec.ParticipantID); p != nil {
			name = p.Name
		}
		reveals = append(reveals, domain.AnswerReveal{
			ParticipantID:   rec.ParticipantID,
			ParticipantName: name,
			OptionID:        rec.OptionID,
			Correct:         rec.Correct,
			Points:          rec.Points,
			TimeSpent:       rec.TimeSpent,
		})
	}

	c.bus.BroadcastToSession(code, domain.EventQuestionEnd, domain.QuestionEndPayload{
		QuestionIndex:  index,
		Question:       question,
		CorrectOption:  question.CorrectOption(),
		Answers:        reveals,
		TotalQuestions: snap.TotalQuestions,
	})
	c.log.Info().Str("session", code).Int("question", index).Int("answers", len(reveals)).Msg("question ended")
	return nil
}

func questionByID(quiz domain.Quiz, questionID int64) (domain.Question, error) {
	for _, q := range quiz.Questions {
		if q.ID == questionID {
			return q, nil
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

func optionByID(q domain.Question, optionID int64) (domain.Option, error) {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return opt, nil
		}
	}
	return domain.Option{}, domain.ErrOptionNotFound
}
