package app

import (
	"context"
	"errors"
	"time"

	"classquiz-service/internal/domain"
)

// QuizRepository loads quiz content for the read path (usually through a
// cache in front of the backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizStore persists quiz documents.
type QuizStore interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	PutQuiz(ctx context.Context, quiz domain.Quiz) error
}

// SessionStore persists live-session documents keyed by (quiz, class).
type SessionStore interface {
	GetSession(ctx context.Context, quizID, classID string) (domain.Session, error)
	PutSession(ctx context.Context, session domain.Session) error
}

// AssignmentStore persists per-student assignment records.
type AssignmentStore interface {
	GetAssignment(ctx context.Context, id string) (domain.Assignment, error)
	PutAssignment(ctx context.Context, a domain.Assignment) error
	ListAssignments(ctx context.Context, quizID, classID string) ([]domain.Assignment, error)
}

// SubmissionStore persists completed attempts.
type SubmissionStore interface {
	InsertSubmission(ctx context.Context, s domain.Submission) error
	ListSubmissions(ctx context.Context, quizID, classID string) ([]domain.Submission, error)
	LatestSubmission(ctx context.Context, assignmentID string) (domain.Submission, error)
}

// RescoreStore applies the cascade's per-student pair write: the submission's
// and the assignment's score fields must change together or not at all.
type RescoreStore interface {
	ApplyRescore(ctx context.Context, sub domain.Submission, asg domain.Assignment) error
}

// Store is the full persistence contract the core needs from its collaborator.
type Store interface {
	QuizStore
	SessionStore
	AssignmentStore
	SubmissionStore
	RescoreStore
}

const (
	storeRetries   = 3
	storeRetryBase = 100 * time.Millisecond
)

// withRetry retries a store call a bounded number of times with backoff.
// Domain errors are surfaced immediately; only infrastructure failures are
// worth a second try. Answer state held by the caller is never discarded on
// failure.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < storeRetries; attempt++ {
		if err = fn(); err == nil || isDomainError(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(storeRetryBase << attempt):
		}
	}
	return err
}

func isDomainError(err error) bool {
	for _, sentinel := range []error{
		domain.ErrQuizNotFound,
		domain.ErrAssignmentNotFound,
		domain.ErrSessionNotFound,
		domain.ErrSubmissionNotFound,
		domain.ErrPermissionDenied,
		domain.ErrInvalidTransition,
		domain.ErrAttemptsExhausted,
		domain.ErrPastDeadline,
		domain.ErrSessionEnded,
		domain.ErrSessionNotActive,
		domain.ErrAnswerRequired,
		domain.ErrInvalidQuestion,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
