package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAssignmentNotFound is returned when the referenced assignment does not exist.
	ErrAssignmentNotFound = errors.New("assignment not found")
	// ErrSessionNotFound is returned when a live session has not been created.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSubmissionNotFound is returned for point reads of missing submissions.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrPermissionDenied is returned when the caller is neither the assignment's
	// student nor the quiz's owning teacher.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidTransition is returned when the session state machine rejects a
	// move. State is unchanged.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrAttemptsExhausted is returned when a student has no attempts left.
	ErrAttemptsExhausted = errors.New("attempts exhausted")
	// ErrPastDeadline is returned when the due date or session deadline lapsed.
	ErrPastDeadline = errors.New("past deadline")
	// ErrSessionEnded is returned when the teacher has ended the live session.
	ErrSessionEnded = errors.New("session ended")
	// ErrSessionNotActive is returned when a live quiz is accessed while the
	// session is not accepting answers.
	ErrSessionNotActive = errors.New("session not active")
	// ErrAnswerRequired is returned when a live-quiz client tries to advance past
	// an unanswered question.
	ErrAnswerRequired = errors.New("current question must be answered first")
	// ErrInvalidQuestion is returned when a question bank fails shape validation.
	ErrInvalidQuestion = errors.New("invalid question")
)
