package app_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"classquiz-service/internal/app"
	"classquiz-service/internal/domain"
	"classquiz-service/internal/infra/memory"
)

var student = domain.Identity{UserID: "s1", Name: "Ana", Role: domain.RoleStudent}

func testBank() []domain.Question {
	return []domain.Question{
		{Type: domain.MultipleChoice, Text: "Largest planet?", Choices: []domain.Choice{
			{Text: "Mars"}, {Text: "Jupiter", IsCorrect: true}, {Text: "Venus"},
		}},
		{Type: domain.TrueFalse, Text: "The sun is a star.", CorrectAnswer: "True"},
		{Type: domain.Identification, Text: "Symbol for gold?", CorrectAnswer: "Au"},
		{Type: domain.Identification, Text: "Symbol for iron?", CorrectAnswer: "Fe"},
	}
}

type attemptFixture struct {
	service    *app.AssignmentService
	store      *memory.Store
	timers     *app.TimerService
	assignment domain.Assignment
}

func newAttemptFixture(t *testing.T, settings domain.QuizSettings, dueDate *time.Time) *attemptFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	quiz := domain.Quiz{
		ID:          "quiz-1",
		OwnerID:     teacher.UserID,
		Title:       "Science Review",
		Questions:   testBank(),
		TotalPoints: 4,
		Settings:    settings,
	}
	if err := store.PutQuiz(ctx, quiz); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}

	timers := app.NewTimerService()
	t.Cleanup(timers.Shutdown)
	service := app.NewAssignmentService(store, store, app.NewHub(), timers, time.Minute)

	created, err := service.Assign(ctx, teacher, "quiz-1", "class-1", dueDate, []app.RosterEntry{
		{StudentID: student.UserID, Name: student.Name},
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(created))
	}
	return &attemptFixture{service: service, store: store, timers: timers, assignment: created[0]}
}

func (f *attemptFixture) setSession(t *testing.T, mutate func(*domain.Session)) {
	t.Helper()
	ctx := context.Background()
	session, err := f.store.GetSession(ctx, "quiz-1", "class-1")
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	mutate(&session)
	if err := f.store.PutSession(ctx, session); err != nil {
		t.Fatalf("store session: %v", err)
	}
}

func TestAttemptLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t, domain.QuizSettings{Mode: domain.Asynchronous}, nil)

	view, err := f.service.StartAttempt(ctx, student, f.assignment.ID)
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	if view.Assignment.Status != domain.AssignmentInProgress {
		t.Fatalf("expected in_progress, got %s", view.Assignment.Status)
	}
	if view.Assignment.StartedAt == nil {
		t.Fatalf("startedAt must be stamped on first access")
	}
	if len(view.Questions) != 4 {
		t.Fatalf("expected 4 questions, got %d", len(view.Questions))
	}
	if got := view.Questions[1].Choices; !reflect.DeepEqual(got, []string{"True", "False"}) {
		t.Fatalf("true/false choices: got %v", got)
	}
	if len(view.Questions[2].Choices) != 2 {
		t.Fatalf("identification pool should hold the 2 unique answers, got %v", view.Questions[2].Choices)
	}

	answers := map[int]string{0: "Jupiter", 1: "True", 2: "Au", 3: "Cu"}
	for idx, answer := range answers {
		if err := f.service.SaveAnswer(ctx, student, f.assignment.ID, idx, answer); err != nil {
			t.Fatalf("save answer %d: %v", idx, err)
		}
	}

	result, err := f.service.Submit(ctx, student, f.assignment.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Scores.RawScorePercentage != 75 || result.Scores.Base50ScorePercentage != 88 {
		t.Fatalf("expected 75/88, got %d/%d", result.Scores.RawScorePercentage, result.Scores.Base50ScorePercentage)
	}
	if result.Remark != "Very Good!" {
		t.Fatalf("expected Very Good! remark, got %q", result.Remark)
	}

	final, err := f.store.GetAssignment(ctx, f.assignment.ID)
	if err != nil {
		t.Fatalf("reload assignment: %v", err)
	}
	if final.Status != domain.AssignmentCompleted || !final.Completed || final.Attempts != 1 {
		t.Fatalf("expected completed with 1 attempt, got %+v", final)
	}
	if final.Base50ScorePercentage != 88 {
		t.Fatalf("assignment score not recorded: %d", final.Base50ScorePercentage)
	}

	sub, err := f.store.LatestSubmission(ctx, f.assignment.ID)
	if err != nil {
		t.Fatalf("latest submission: %v", err)
	}
	if !reflect.DeepEqual(sub.Answers, answers) {
		t.Fatalf("submission answers mismatch: %v vs %v", sub.Answers, answers)
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t, domain.QuizSettings{Mode: domain.Asynchronous}, nil)

	if _, err := f.service.StartAttempt(ctx, student, f.assignment.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.service.SaveAnswer(ctx, student, f.assignment.ID, 0, "Jupiter"); err != nil {
		t.Fatalf("answer: %v", err)
	}

	first, err := f.service.Submit(ctx, student, f.assignment.ID)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := f.service.Submit(ctx, student, f.assignment.ID)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if first.SubmissionID != second.SubmissionID {
		t.Fatalf("duplicate submit created a new submission: %s vs %s", first.SubmissionID, second.SubmissionID)
	}
	if first.Scores != second.Scores {
		t.Fatalf("duplicate submit changed scores: %+v vs %+v", first.Scores, second.Scores)
	}

	a, _ := f.store.GetAssignment(ctx, f.assignment.ID)
	if a.Attempts != 1 {
		t.Fatalf("duplicate submit incremented attempts: %d", a.Attempts)
	}
	subs, _ := f.store.ListSubmissions(ctx, "quiz-1", "class-1")
	if len(subs) != 1 {
		t.Fatalf("expected exactly 1 stored submission, got %d", len(subs))
	}
}

func TestSubmitBeforeStart(t *testing.T) {
	f := newAttemptFixture(t, domain.QuizSettings{Mode: domain.Asynchronous}, nil)
	if _, err := f.service.Submit(context.Background(), student, f.assignment.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestAttemptsExhausted(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t, domain.QuizSettings{Mode: domain.Asynchronous, MaxAttempts: 2}, nil)

	for attempt := 1; attempt <= 2; attempt++ {
		if _, err := f.service.StartAttempt(ctx, student, f.assignment.ID); err != nil {
			t.Fatalf("attempt %d start: %v", attempt, err)
		}
		if _, err := f.service.Submit(ctx, student, f.assignment.ID); err != nil {
			t.Fatalf("attempt %d submit: %v", attempt, err)
		}
	}

	if _, err := f.service.StartAttempt(ctx, student, f.assignment.ID); !errors.Is(err, domain.ErrAttemptsExhausted) {
		t.Fatalf("expected ErrAttemptsExhausted, got %v", err)
	}
}

func TestNewAttemptResetsProgress(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t, domain.QuizSettings{Mode: domain.Asynchronous, MaxAttempts: 2}, nil)

	if _, err := f.service.StartAttempt(ctx, student, f.assignment.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.service.SaveAnswer(ctx, student, f.assignment.ID, 0, "Jupiter"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := f.service.Submit(ctx, student, f.assignment.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	view, err := f.service.StartAttempt(ctx, student, f.assignment.ID)
	if err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	if len(view.Assignment.CurrentAnswers) != 0 || view.Assignment.CurrentQuestionIndex != 0 {
		t.Fatalf("second attempt must start clean, got %+v", view.Assignment)
	}
	if view.Assignment.Attempts != 1 {
		t.Fatalf("attempt counter should carry the completed count, got %d", view.Assignment.Attempts)
	}
}

func TestAsyncPastDeadline(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	f := newAttemptFixture(t, domain.QuizSettings{Mode: domain.Asynchronous}, &past)
	if _, err := f.service.StartAttempt(context.Background(), student, f.assignment.ID); !errors.Is(err, domain.ErrPastDeadline) {
		t.Fatalf("expected ErrPastDeadline, got %v", err)
	}
}

func TestSyncSessionGating(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t, domain.QuizSettings{Mode: domain.Synchronous}, nil)

	// Assign seeded a not_started session for the class.
	if _, err := f.service.StartAttempt(ctx, student, f.assignment.ID); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("not_started: expected ErrSessionNotActive, got %v", err)
	}

	now := time.Now()
	f.setSession(t, func(s *domain.Session) {
		s.Status = domain.SessionActive
		s.StartedAt = &now
	})
	if _, err := f.service.StartAttempt(ctx, student, f.assignment.ID); err != nil {
		t.Fatalf("active: %v", err)
	}
	if err := f.service.SaveAnswer(ctx, student, f.assignment.ID, 0, "Jupiter"); err != nil {
		t.Fatalf("answer while active: %v", err)
	}

	f.setSession(t, func(s *domain.Session) {
		s.Status = domain.SessionPaused
		s.PausedAt = &now
	})
	if err := f.service.SaveAnswer(ctx, student, f.assignment.ID, 1, "True"); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("paused: expected ErrSessionNotActive, got %v", err)
	}

	f.setSession(t, func(s *domain.Session) {
		s.Status = domain.SessionEnded
		s.EndedAt = &now
	})
	if err := f.service.SaveAnswer(ctx, student, f.assignment.ID, 1, "True"); !errors.Is(err, domain.ErrSessionEnded) {
		t.Fatalf("ended: expected ErrSessionEnded, got %v", err)
	}
}

func TestSyncNeverStartedPastDeadline(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	f := newAttemptFixture(t, domain.QuizSettings{Mode: domain.Synchronous, Deadline: &past}, nil)
	if _, err := f.service.StartAttempt(context.Background(), student, f.assignment.ID); !errors.Is(err, domain.ErrPastDeadline) {
		t.Fatalf("expected ErrPastDeadline for never-started session, got %v", err)
	}
}

func TestSyncOrderingRule(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t, domain.QuizSettings{Mode: domain.Synchronous}, nil)
	now := time.Now()
	f.setSession(t, func(s *domain.Session) {
		s.Status = domain.SessionActive
		s.StartedAt = &now
	})

	if _, err := f.service.StartAttempt(ctx, student, f.assignment.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Forward without an answer on the current question.
	if err := f.service.Navigate(ctx, student, f.assignment.ID, 1); !errors.Is(err, domain.ErrAnswerRequired) {
		t.Fatalf("expected ErrAnswerRequired, got %v", err)
	}

	if err := f.service.SaveAnswer(ctx, student, f.assignment.ID, 0, "Jupiter"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := f.service.Navigate(ctx, student, f.assignment.ID, 1); err != nil {
		t.Fatalf("forward after answering: %v", err)
	}

	// Skipping ahead is refused even with the current question answered.
	if err := f.service.SaveAnswer(ctx, student, f.assignment.ID, 1, "True"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := f.service.Navigate(ctx, student, f.assignment.ID, 3); !errors.Is(err, domain.ErrAnswerRequired) {
		t.Fatalf("expected ErrAnswerRequired on skip, got %v", err)
	}

	// Backward is always allowed.
	if err := f.service.Navigate(ctx, student, f.assignment.ID, 0); err != nil {
		t.Fatalf("backward: %v", err)
	}
}

func TestSubmitGraceWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	prepare := func(t *testing.T, endedAt time.Time) *attemptFixture {
		f := newAttemptFixture(t, domain.QuizSettings{Mode: domain.Synchronous}, nil)
		f.setSession(t, func(s *domain.Session) {
			s.Status = domain.SessionActive
			s.StartedAt = &now
		})
		if _, err := f.service.StartAttempt(ctx, student, f.assignment.ID); err != nil {
			t.Fatalf("start: %v", err)
		}
		if err := f.service.SaveAnswer(ctx, student, f.assignment.ID, 0, "Jupiter"); err != nil {
			t.Fatalf("answer: %v", err)
		}
		f.setSession(t, func(s *domain.Session) {
			s.Status = domain.SessionEnded
			s.EndedAt = &endedAt
		})
		return f
	}

	// Just ended: inside the one-minute grace window, the submit lands.
	f := prepare(t, now)
	if _, err := f.service.Submit(ctx, student, f.assignment.ID); err != nil {
		t.Fatalf("submit inside grace window: %v", err)
	}

	// Ended well past the window: refused.
	f = prepare(t, now.Add(-5*time.Minute))
	if _, err := f.service.Submit(ctx, student, f.assignment.ID); !errors.Is(err, domain.ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded past grace window, got %v", err)
	}
}

func TestResumeKeepsProgressAndChoiceOrder(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t, domain.QuizSettings{Mode: domain.Asynchronous, ShuffleChoices: true}, nil)

	first, err := f.service.StartAttempt(ctx, student, f.assignment.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.service.SaveAnswer(ctx, student, f.assignment.ID, 0, "Jupiter"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := f.service.Navigate(ctx, student, f.assignment.ID, 1); err != nil {
		t.Fatalf("navigate: %v", err)
	}

	resumed, err := f.service.StartAttempt(ctx, student, f.assignment.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Assignment.CurrentAnswers[0] != "Jupiter" {
		t.Fatalf("resume lost the saved answer: %+v", resumed.Assignment.CurrentAnswers)
	}
	if resumed.Assignment.CurrentQuestionIndex != 1 {
		t.Fatalf("resume lost the cursor: %d", resumed.Assignment.CurrentQuestionIndex)
	}
	if !reflect.DeepEqual(first.Questions, resumed.Questions) {
		t.Fatalf("choice order changed across a reconnect")
	}
	if first.Assignment.StartedAt == nil || !resumed.Assignment.StartedAt.Equal(*first.Assignment.StartedAt) {
		t.Fatalf("resume must keep the running clock")
	}
}

func TestTimerAutoSubmit(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t, domain.QuizSettings{Mode: domain.Asynchronous}, nil)

	if _, err := f.service.StartAttempt(ctx, student, f.assignment.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.service.SaveAnswer(ctx, student, f.assignment.ID, 0, "Jupiter"); err != nil {
		t.Fatalf("answer: %v", err)
	}

	f.timers.Schedule(f.assignment.ID, 5*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for {
		a, err := f.store.GetAssignment(ctx, f.assignment.ID)
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if a.Status == domain.AssignmentCompleted {
			if a.Attempts != 1 {
				t.Fatalf("auto-submit must count one attempt, got %d", a.Attempts)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timer never auto-submitted the attempt")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSaveAnswerBounds(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t, domain.QuizSettings{Mode: domain.Asynchronous}, nil)
	if _, err := f.service.StartAttempt(ctx, student, f.assignment.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.service.SaveAnswer(ctx, student, f.assignment.ID, 99, "x"); !errors.Is(err, domain.ErrInvalidQuestion) {
		t.Fatalf("expected ErrInvalidQuestion, got %v", err)
	}
}

func TestAssignmentAccessControl(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t, domain.QuizSettings{Mode: domain.Asynchronous}, nil)

	stranger := domain.Identity{UserID: "s2", Role: domain.RoleStudent}
	if _, err := f.service.Get(ctx, stranger, f.assignment.ID); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied for stranger, got %v", err)
	}
	if _, err := f.service.StartAttempt(ctx, stranger, f.assignment.ID); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied starting someone else's attempt, got %v", err)
	}

	// The assigning teacher may read but not take the attempt.
	if _, err := f.service.Get(ctx, teacher, f.assignment.ID); err != nil {
		t.Fatalf("teacher read: %v", err)
	}
	if _, err := f.service.StartAttempt(ctx, teacher, f.assignment.ID); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied for teacher-taken attempt, got %v", err)
	}
}
