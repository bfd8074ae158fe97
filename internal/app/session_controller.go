package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"classquiz-service/internal/domain"
)

// SessionController owns every mutation of live-session state. All transitions
// are teacher-initiated; the ownership check precedes every write, and every
// state change is pushed to all subscribers of the (quiz, class) pair.
type SessionController struct {
	store Store
	hub   *Hub
	now   func() time.Time

	mu sync.Mutex // serializes transitions; a session has exactly one writer
}

func NewSessionController(store Store, hub *Hub) *SessionController {
	return &SessionController{store: store, hub: hub, now: time.Now}
}

// Get returns the current session state. Readable by any authenticated caller.
func (c *SessionController) Get(ctx context.Context, quizID, classID string) (domain.Session, error) {
	return c.store.GetSession(ctx, quizID, classID)
}

// Subscribe registers a listener for session and progress changes.
func (c *SessionController) Subscribe(quizID, classID string) (<-chan SessionEvent, func()) {
	return c.hub.Subscribe(quizID, classID)
}

// Start moves not_started -> active and stamps startedAt.
func (c *SessionController) Start(ctx context.Context, caller domain.Identity, quizID, classID string) (domain.Session, error) {
	return c.transition(ctx, caller, quizID, classID, func(s *domain.Session, now time.Time) error {
		if s.Status != domain.SessionNotStarted {
			return fmt.Errorf("%w: start from %s", domain.ErrInvalidTransition, s.Status)
		}
		s.Status = domain.SessionActive
		s.StartedAt = &now
		return nil
	})
}

// Pause moves active -> paused and stamps pausedAt.
func (c *SessionController) Pause(ctx context.Context, caller domain.Identity, quizID, classID string) (domain.Session, error) {
	return c.transition(ctx, caller, quizID, classID, func(s *domain.Session, now time.Time) error {
		if s.Status != domain.SessionActive {
			return fmt.Errorf("%w: pause from %s", domain.ErrInvalidTransition, s.Status)
		}
		s.Status = domain.SessionPaused
		s.PausedAt = &now
		return nil
	})
}

// Resume moves paused -> active and clears pausedAt. startedAt is untouched:
// elapsed time for attempt timers is measured against the original start, so a
// pause does not extend a student's time limit.
func (c *SessionController) Resume(ctx context.Context, caller domain.Identity, quizID, classID string) (domain.Session, error) {
	return c.transition(ctx, caller, quizID, classID, func(s *domain.Session, now time.Time) error {
		if s.Status != domain.SessionPaused {
			return fmt.Errorf("%w: resume from %s", domain.ErrInvalidTransition, s.Status)
		}
		s.Status = domain.SessionActive
		s.PausedAt = nil
		return nil
	})
}

// End moves active or paused -> ended and stamps endedAt. Terminal.
func (c *SessionController) End(ctx context.Context, caller domain.Identity, quizID, classID string) (domain.Session, error) {
	return c.transition(ctx, caller, quizID, classID, func(s *domain.Session, now time.Time) error {
		if s.Status != domain.SessionActive && s.Status != domain.SessionPaused {
			return fmt.Errorf("%w: end from %s", domain.ErrInvalidTransition, s.Status)
		}
		s.Status = domain.SessionEnded
		s.EndedAt = &now
		return nil
	})
}

func (c *SessionController) transition(ctx context.Context, caller domain.Identity, quizID, classID string, step func(*domain.Session, time.Time) error) (domain.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, err := c.store.GetSession(ctx, quizID, classID)
	if err != nil {
		return domain.Session{}, err
	}
	if caller.Role != domain.RoleTeacher || caller.UserID != session.TeacherID {
		return domain.Session{}, domain.ErrPermissionDenied
	}

	if err := step(&session, c.now()); err != nil {
		return domain.Session{}, err
	}
	if err := withRetry(ctx, func() error { return c.store.PutSession(ctx, session) }); err != nil {
		return domain.Session{}, fmt.Errorf("persist session: %w", err)
	}

	c.hub.Publish(quizID, classID, SessionEvent{Session: session})
	return session, nil
}
