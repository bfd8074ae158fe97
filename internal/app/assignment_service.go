package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"classquiz-service/internal/domain"
	"classquiz-service/internal/scoring"
)

// QuestionView is a question as shown to a student: correct answers stripped,
// choices flattened to display text.
type QuestionView struct {
	Index   int                 `json:"index"`
	Type    domain.QuestionType `json:"type"`
	Text    string              `json:"question"`
	Points  int                 `json:"points"`
	Choices []string            `json:"choices,omitempty"`
}

// AttemptView is everything a student's client needs to render (or resume) an
// attempt. Choice ordering is deterministic per attempt, so a reconnect shows
// the same layout.
type AttemptView struct {
	Assignment    domain.Assignment `json:"assignment"`
	QuizTitle     string            `json:"quizTitle"`
	TotalPoints   int               `json:"totalPoints"`
	Questions     []QuestionView    `json:"questions"`
	TimeRemaining time.Duration     `json:"timeRemaining"` // 0 = unlimited
	Session       *domain.Session   `json:"session,omitempty"`
}

// SubmitResult reports the scored outcome of one attempt.
type SubmitResult struct {
	SubmissionID string         `json:"submissionId"`
	Scores       scoring.Result `json:"scores"`
	Remark       string         `json:"remark"`
}

// RosterEntry identifies one student receiving an assignment.
type RosterEntry struct {
	StudentID string `json:"studentId"`
	Name      string `json:"name"`
}

// AssignmentService drives the per-student attempt lifecycle:
// pending -> in_progress -> completed, with write-through answer persistence
// and an exactly-once submit guard shared by manual and timer-fired submits.
type AssignmentService struct {
	store   Store
	quizzes QuizRepository
	hub     *Hub
	timers  *TimerService
	grace   time.Duration
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewAssignmentService(store Store, quizzes QuizRepository, hub *Hub, timers *TimerService, grace time.Duration) *AssignmentService {
	s := &AssignmentService{
		store:   store,
		quizzes: quizzes,
		hub:     hub,
		timers:  timers,
		grace:   grace,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
	if timers != nil {
		timers.Bind(s.autoSubmit)
	}
	return s
}

// lock serializes mutations of one assignment. Each record has a single writer
// (its student) plus the timer; contention is per-assignment only.
func (s *AssignmentService) lock(assignmentID string) func() {
	s.mu.Lock()
	l, ok := s.locks[assignmentID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[assignmentID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Assign creates an assignment record per roster student. For synchronous
// quizzes it also seeds the not_started session for the class.
func (s *AssignmentService) Assign(ctx context.Context, caller domain.Identity, quizID, classID string, dueDate *time.Time, roster []RosterEntry) ([]domain.Assignment, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if caller.Role != domain.RoleTeacher || caller.UserID != quiz.OwnerID {
		return nil, domain.ErrPermissionDenied
	}

	due := dueDate
	if quiz.Settings.Mode == domain.Synchronous {
		due = quiz.Settings.Deadline
	}

	created := make([]domain.Assignment, 0, len(roster))
	for _, entry := range roster {
		a := domain.Assignment{
			ID:          uuid.NewString(),
			QuizID:      quizID,
			ClassID:     classID,
			StudentID:   entry.StudentID,
			StudentName: entry.Name,
			TeacherID:   quiz.OwnerID,
			QuizMode:    quiz.Settings.Mode,
			DueDate:     due,
			MaxAttempts: quiz.Settings.MaxAttempts,
			Status:      domain.AssignmentPending,
		}
		if err := withRetry(ctx, func() error { return s.store.PutAssignment(ctx, a) }); err != nil {
			return created, fmt.Errorf("assign student %s: %w", entry.StudentID, err)
		}
		created = append(created, a)
	}

	if quiz.Settings.Mode == domain.Synchronous {
		if _, err := s.store.GetSession(ctx, quizID, classID); err == domain.ErrSessionNotFound {
			session := domain.Session{
				QuizID:    quizID,
				ClassID:   classID,
				TeacherID: quiz.OwnerID,
				Status:    domain.SessionNotStarted,
			}
			if err := withRetry(ctx, func() error { return s.store.PutSession(ctx, session) }); err != nil {
				return created, fmt.Errorf("seed session: %w", err)
			}
		} else if err != nil {
			return created, err
		}
	}
	return created, nil
}

// SubscribeSession registers a listener for the session governing this
// assignment's class. Students use it to follow pause/resume/end in real time.
func (s *AssignmentService) SubscribeSession(quizID, classID string) (<-chan SessionEvent, func()) {
	return s.hub.Subscribe(quizID, classID)
}

// Get returns an assignment, readable by its student or the assigning teacher.
func (s *AssignmentService) Get(ctx context.Context, caller domain.Identity, assignmentID string) (domain.Assignment, error) {
	a, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return domain.Assignment{}, err
	}
	if caller.UserID != a.StudentID && caller.UserID != a.TeacherID {
		return domain.Assignment{}, domain.ErrPermissionDenied
	}
	return a, nil
}

// StartAttempt gives the student access to quiz content, moving
// pending -> in_progress on first access and arming the attempt timer. A
// completed assignment starts a fresh attempt only while attempts remain.
// Calling it again mid-attempt resumes with persisted progress intact.
func (s *AssignmentService) StartAttempt(ctx context.Context, caller domain.Identity, assignmentID string) (AttemptView, error) {
	unlock := s.lock(assignmentID)
	defer unlock()

	a, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return AttemptView{}, err
	}
	if caller.Role != domain.RoleStudent || caller.UserID != a.StudentID {
		return AttemptView{}, domain.ErrPermissionDenied
	}

	quiz, err := s.quizzes.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return AttemptView{}, err
	}

	now := s.now()
	var session *domain.Session
	if a.QuizMode == domain.Synchronous {
		sess, err := s.store.GetSession(ctx, a.QuizID, a.ClassID)
		if err != nil {
			return AttemptView{}, err
		}
		switch sess.Status {
		case domain.SessionNotStarted:
			if quiz.Settings.Deadline != nil && now.After(*quiz.Settings.Deadline) {
				return AttemptView{}, domain.ErrPastDeadline
			}
			return AttemptView{}, domain.ErrSessionNotActive
		case domain.SessionPaused:
			return AttemptView{}, domain.ErrSessionNotActive
		case domain.SessionEnded:
			return AttemptView{}, domain.ErrSessionEnded
		}
		session = &sess
	} else if a.DueDate != nil && now.After(*a.DueDate) {
		return AttemptView{}, domain.ErrPastDeadline
	}

	switch a.Status {
	case domain.AssignmentPending:
		a.Status = domain.AssignmentInProgress
		a.StartedAt = &now
		a.CurrentAnswers = make(map[int]string)
		a.CurrentQuestionIndex = 0
	case domain.AssignmentInProgress:
		// Reconnect: resume from persisted progress, keep the running clock.
	case domain.AssignmentCompleted:
		if a.Attempts >= a.EffectiveMaxAttempts() {
			return AttemptView{}, domain.ErrAttemptsExhausted
		}
		a.Status = domain.AssignmentInProgress
		a.Completed = false
		a.StartedAt = &now
		a.SubmittedAt = nil
		a.CurrentAnswers = make(map[int]string)
		a.CurrentQuestionIndex = 0
	}

	if err := withRetry(ctx, func() error { return s.store.PutAssignment(ctx, a) }); err != nil {
		return AttemptView{}, fmt.Errorf("persist attempt start: %w", err)
	}

	if quiz.Settings.TimeLimit > 0 && a.StartedAt != nil {
		remaining := time.Duration(quiz.Settings.TimeLimit)*time.Minute - now.Sub(*a.StartedAt)
		if remaining <= 0 {
			remaining = time.Millisecond
		}
		s.timers.Schedule(a.ID, remaining)
	}

	s.publishProgress(ctx, a)
	return s.buildView(quiz, a, session, now), nil
}

// SaveAnswer persists one answer write-through, so a reconnecting client never
// loses progress and the teacher's monitor stays current.
func (s *AssignmentService) SaveAnswer(ctx context.Context, caller domain.Identity, assignmentID string, questionIndex int, answer string) error {
	unlock := s.lock(assignmentID)
	defer unlock()

	a, quiz, err := s.loadForMutation(ctx, caller, assignmentID)
	if err != nil {
		return err
	}
	if questionIndex < 0 || questionIndex >= len(quiz.Questions) {
		return fmt.Errorf("%w: index %d out of range", domain.ErrInvalidQuestion, questionIndex)
	}
	if a.QuizMode == domain.Synchronous {
		if err := s.requireAnswerableSession(ctx, a); err != nil {
			return err
		}
	}

	if a.CurrentAnswers == nil {
		a.CurrentAnswers = make(map[int]string)
	}
	a.CurrentAnswers[questionIndex] = answer

	if err := withRetry(ctx, func() error { return s.store.PutAssignment(ctx, a) }); err != nil {
		return fmt.Errorf("persist answer: %w", err)
	}
	s.publishProgress(ctx, a)
	return nil
}

// Navigate moves the student's question cursor. In a live session the move to
// question n+1 is refused until question n carries a non-empty answer; the
// check holds server-side even against a misbehaving client.
func (s *AssignmentService) Navigate(ctx context.Context, caller domain.Identity, assignmentID string, target int) error {
	unlock := s.lock(assignmentID)
	defer unlock()

	a, quiz, err := s.loadForMutation(ctx, caller, assignmentID)
	if err != nil {
		return err
	}
	if target < 0 || target >= len(quiz.Questions) {
		return fmt.Errorf("%w: index %d out of range", domain.ErrInvalidQuestion, target)
	}
	if a.QuizMode == domain.Synchronous && target > a.CurrentQuestionIndex {
		if target != a.CurrentQuestionIndex+1 {
			return domain.ErrAnswerRequired
		}
		if a.CurrentAnswers[a.CurrentQuestionIndex] == "" {
			return domain.ErrAnswerRequired
		}
	}

	a.CurrentQuestionIndex = target
	if err := withRetry(ctx, func() error { return s.store.PutAssignment(ctx, a) }); err != nil {
		return fmt.Errorf("persist navigation: %w", err)
	}
	s.publishProgress(ctx, a)
	return nil
}

// Submit finalizes the current attempt: scores it once, appends the immutable
// submission, and marks the assignment completed. It is idempotent per
// attempt — a second call (late timer fire, double click) returns the recorded
// result without a new submission or attempt increment.
func (s *AssignmentService) Submit(ctx context.Context, caller domain.Identity, assignmentID string) (SubmitResult, error) {
	unlock := s.lock(assignmentID)
	defer unlock()

	a, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return SubmitResult{}, err
	}
	if caller.Role != domain.RoleStudent || caller.UserID != a.StudentID {
		return SubmitResult{}, domain.ErrPermissionDenied
	}

	switch a.Status {
	case domain.AssignmentPending:
		return SubmitResult{}, fmt.Errorf("%w: submit before starting", domain.ErrInvalidTransition)
	case domain.AssignmentCompleted:
		return s.recordedResult(ctx, a)
	}

	now := s.now()
	if a.QuizMode == domain.Synchronous {
		session, err := s.store.GetSession(ctx, a.QuizID, a.ClassID)
		if err != nil {
			return SubmitResult{}, err
		}
		// A submit already in flight when the teacher ended the session is still
		// accepted inside the grace window; starting anything new is not.
		if session.Status == domain.SessionEnded && session.EndedAt != nil && now.After(session.EndedAt.Add(s.grace)) {
			return SubmitResult{}, domain.ErrSessionEnded
		}
	}

	quiz, err := s.quizzes.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return SubmitResult{}, err
	}

	res := scoring.Score(quiz.Questions, a.CurrentAnswers)

	answers := make(map[int]string, len(a.CurrentAnswers))
	for k, v := range a.CurrentAnswers {
		answers[k] = v
	}
	sub := domain.Submission{
		ID:                    uuid.NewString(),
		AssignmentID:          a.ID,
		QuizID:                a.QuizID,
		ClassID:               a.ClassID,
		StudentID:             a.StudentID,
		StudentName:           a.StudentName,
		Answers:               answers,
		QuizMode:              a.QuizMode,
		SubmittedAt:           now,
		CorrectPoints:         res.CorrectPoints,
		TotalPoints:           res.TotalPoints,
		RawScorePercentage:    res.RawScorePercentage,
		Base50ScorePercentage: res.Base50ScorePercentage,
	}
	if err := withRetry(ctx, func() error { return s.store.InsertSubmission(ctx, sub) }); err != nil {
		return SubmitResult{}, fmt.Errorf("record submission: %w", err)
	}

	a.Status = domain.AssignmentCompleted
	a.Completed = true
	a.Attempts++
	a.SubmittedAt = &now
	a.RawScorePercentage = res.RawScorePercentage
	a.Base50ScorePercentage = res.Base50ScorePercentage
	if err := withRetry(ctx, func() error { return s.store.PutAssignment(ctx, a) }); err != nil {
		return SubmitResult{}, fmt.Errorf("finalize assignment: %w", err)
	}

	s.timers.Cancel(a.ID)
	s.publishProgress(ctx, a)
	return SubmitResult{
		SubmissionID: sub.ID,
		Scores:       res,
		Remark:       scoring.Remark(res.Base50ScorePercentage),
	}, nil
}

// autoSubmit is the timer expiry path. It submits whatever answers exist at
// that instant through the normal Submit guard.
func (s *AssignmentService) autoSubmit(assignmentID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		log.Printf("auto-submit: load assignment %s: %v", assignmentID, err)
		return
	}
	student := domain.Identity{UserID: a.StudentID, Name: a.StudentName, Role: domain.RoleStudent}
	if _, err := s.Submit(ctx, student, assignmentID); err != nil {
		log.Printf("auto-submit: assignment %s: %v", assignmentID, err)
	}
}

func (s *AssignmentService) loadForMutation(ctx context.Context, caller domain.Identity, assignmentID string) (domain.Assignment, domain.Quiz, error) {
	a, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return domain.Assignment{}, domain.Quiz{}, err
	}
	if caller.Role != domain.RoleStudent || caller.UserID != a.StudentID {
		return domain.Assignment{}, domain.Quiz{}, domain.ErrPermissionDenied
	}
	if a.Status != domain.AssignmentInProgress {
		return domain.Assignment{}, domain.Quiz{}, fmt.Errorf("%w: assignment is %s", domain.ErrInvalidTransition, a.Status)
	}
	quiz, err := s.quizzes.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return domain.Assignment{}, domain.Quiz{}, err
	}
	return a, quiz, nil
}

func (s *AssignmentService) requireAnswerableSession(ctx context.Context, a domain.Assignment) error {
	session, err := s.store.GetSession(ctx, a.QuizID, a.ClassID)
	if err != nil {
		return err
	}
	switch session.Status {
	case domain.SessionActive:
		return nil
	case domain.SessionEnded:
		return domain.ErrSessionEnded
	default:
		return domain.ErrSessionNotActive
	}
}

func (s *AssignmentService) recordedResult(ctx context.Context, a domain.Assignment) (SubmitResult, error) {
	sub, err := s.store.LatestSubmission(ctx, a.ID)
	if err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{
		SubmissionID: sub.ID,
		Scores: scoring.Result{
			CorrectPoints:         sub.CorrectPoints,
			TotalPoints:           sub.TotalPoints,
			RawScorePercentage:    sub.RawScorePercentage,
			Base50ScorePercentage: sub.Base50ScorePercentage,
		},
		Remark: scoring.Remark(sub.Base50ScorePercentage),
	}, nil
}

func (s *AssignmentService) buildView(quiz domain.Quiz, a domain.Assignment, session *domain.Session, now time.Time) AttemptView {
	seed := scoring.AttemptSeed(a.ID, a.Attempts)
	idChoices := scoring.IdentificationChoices(quiz.Questions, seed)

	questions := make([]QuestionView, 0, len(quiz.Questions))
	for i, q := range quiz.Questions {
		view := QuestionView{
			Index:  i,
			Type:   q.Type,
			Text:   q.Text,
			Points: q.EffectivePoints(),
		}
		switch q.Type {
		case domain.MultipleChoice:
			choices := q.Choices
			if quiz.Settings.ShuffleChoices {
				choices = scoring.ShuffledChoices(q, seed, i)
			}
			for _, c := range choices {
				view.Choices = append(view.Choices, c.Text)
			}
		case domain.TrueFalse:
			view.Choices = []string{"True", "False"}
		case domain.Identification:
			view.Choices = idChoices[i]
		}
		questions = append(questions, view)
	}

	var remaining time.Duration
	if quiz.Settings.TimeLimit > 0 && a.StartedAt != nil {
		remaining = time.Duration(quiz.Settings.TimeLimit)*time.Minute - now.Sub(*a.StartedAt)
		if remaining < 0 {
			remaining = 0
		}
	}

	return AttemptView{
		Assignment:    a,
		QuizTitle:     quiz.Title,
		TotalPoints:   quiz.TotalPoints,
		Questions:     questions,
		TimeRemaining: remaining,
		Session:       session,
	}
}

// publishProgress pushes the class roster snapshot to monitor subscribers.
// Only live sessions have monitors; async progress stays between the student
// and the store.
func (s *AssignmentService) publishProgress(ctx context.Context, a domain.Assignment) {
	if a.QuizMode != domain.Synchronous {
		return
	}
	session, err := s.store.GetSession(ctx, a.QuizID, a.ClassID)
	if err != nil {
		return
	}
	roster, err := s.store.ListAssignments(ctx, a.QuizID, a.ClassID)
	if err != nil {
		return
	}
	progress := make([]StudentProgress, 0, len(roster))
	for _, entry := range roster {
		progress = append(progress, StudentProgress{
			AssignmentID:          entry.ID,
			StudentID:             entry.StudentID,
			StudentName:           entry.StudentName,
			Status:                entry.Status,
			Answered:              len(entry.CurrentAnswers),
			CurrentQuestionIndex:  entry.CurrentQuestionIndex,
			StartedAt:             entry.StartedAt,
			Completed:             entry.Completed,
			Base50ScorePercentage: entry.Base50ScorePercentage,
		})
	}
	s.hub.Publish(a.QuizID, a.ClassID, SessionEvent{Session: session, Progress: progress})
}
