package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no live or durable session exists for a code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrParticipantNotFound is returned when a user acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")

	// ErrNotOwner is returned when a control action comes from someone other
	// than the quiz owner.
	ErrNotOwner = errors.New("not the quiz owner")

	// ErrCodeTaken is returned by the store when a generated session code
	// collides with a live session. The controller retries generation.
	ErrCodeTaken = errors.New("session code already in use")
	// ErrNameTaken is returned when a display name is already used in a session.
	ErrNameTaken = errors.New("display name already taken")
	// ErrSessionNotWaiting rejects activation of an already active or finished session.
	ErrSessionNotWaiting = errors.New("session is not in waiting state")
	// ErrSessionNotActive rejects gameplay actions outside the active state.
	ErrSessionNotActive = errors.New("session is not active")
	// ErrSessionFinished rejects any mutation of a finished session.
	ErrSessionFinished = errors.New("session already finished")
	// ErrQuestionAlreadyOpen rejects starting a question while one is open.
	ErrQuestionAlreadyOpen = errors.New("a question is already open")
	// ErrQuestionNotOpen rejects answers for a question that is not the
	// currently open one.
	ErrQuestionNotOpen = errors.New("question is not open")
	// ErrQuestionClosed is returned to the second of two concurrent attempts
	// to end the same question.
	ErrQuestionClosed = errors.New("question already closed")
	// ErrAnswerExists rejects a second answer for the same
	// (session, participant, question) triple.
	ErrAnswerExists = errors.New("answer already submitted")

	// ErrQuestionOutOfRange rejects a question index beyond the quiz length
	// or one that would skip ahead.
	ErrQuestionOutOfRange = errors.New("question index out of range")
	// ErrInvalidPayload covers malformed request values, such as a blank
	// display name. Full quiz validation belongs to the authoring service.
	ErrInvalidPayload = errors.New("invalid payload")
)

// IsNotFound reports whether err belongs to the not-found taxonomy.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrQuizNotFound) ||
		errors.Is(err, ErrQuestionNotFound) ||
		errors.Is(err, ErrOptionNotFound) ||
		errors.Is(err, ErrParticipantNotFound)
}

// IsConflict reports whether err belongs to the conflict taxonomy.
func IsConflict(err error) bool {
	return errors.Is(err, ErrCodeTaken) ||
		errors.Is(err, ErrNameTaken) ||
		errors.Is(err, ErrSessionNotWaiting) ||
		errors.Is(err, ErrSessionNotActive) ||
		errors.Is(err, ErrSessionFinished) ||
		errors.Is(err, ErrQuestionAlreadyOpen) ||
		errors.Is(err, ErrQuestionNotOpen) ||
		errors.Is(err, ErrQuestionClosed) ||
		errors.Is(err, ErrAnswerExists)
}

// IsUnauthorized reports whether err belongs to the unauthorized taxonomy.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrNotOwner)
}

// IsValidation reports whether err belongs to the validation taxonomy.
func IsValidation(err error) bool {
	return errors.Is(err, ErrQuestionOutOfRange) || errors.Is(err, ErrInvalidPayload)
}
