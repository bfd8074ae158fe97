package domain

import "time"

// QuestionType tags the scoring strategy for a question.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	Identification QuestionType = "identification"
)

// Classification is the difficulty tier assigned to a question.
type Classification string

const (
	LOTS Classification = "LOTS"
	HOTS Classification = "HOTS"
)

// Choice represents a possible answer for a multiple-choice question.
type Choice struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Question models one entry in a quiz bank. The scoring-relevant shape depends
// on Type: multiple_choice carries Choices with exactly one marked correct,
// true_false and identification carry a literal CorrectAnswer string.
type Question struct {
	Type           QuestionType   `json:"type"`
	Text           string         `json:"question"`
	Points         int            `json:"points"` // defaults to 1 if zero
	Choices        []Choice       `json:"choices,omitempty"`
	CorrectAnswer  string         `json:"correct_answer,omitempty"`
	Classification Classification `json:"bloom_classification,omitempty"`
	Confidence     float64        `json:"classification_confidence,omitempty"`
}

// EffectivePoints returns the question's point value with the default applied.
func (q Question) EffectivePoints() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// QuizMode selects self-paced or teacher-controlled delivery.
type QuizMode string

const (
	Asynchronous QuizMode = "asynchronous"
	Synchronous  QuizMode = "synchronous"
)

// QuizSettings are teacher-chosen delivery options, copied onto assignments at
// assign time.
type QuizSettings struct {
	Mode           QuizMode   `json:"mode"`
	Deadline       *time.Time `json:"deadline,omitempty"` // sync: expiration instant for never-started sessions
	TimeLimit      int        `json:"timeLimit"`          // minutes, 0 = unlimited
	MaxAttempts    int        `json:"maxAttempts"`
	ShuffleChoices bool       `json:"shuffleChoices"`
}

// ClassificationStats summarizes the difficulty mix of a quiz bank.
type ClassificationStats struct {
	HOTSCount      int     `json:"hots_count"`
	LOTSCount      int     `json:"lots_count"`
	HOTSPercentage float64 `json:"hots_percentage"`
	LOTSPercentage float64 `json:"lots_percentage"`
}

// Quiz is an ordered bank of questions owned by one teacher.
type Quiz struct {
	ID          string              `json:"id"`
	OwnerID     string              `json:"ownerId"`
	Title       string              `json:"title"`
	Code        string              `json:"code"`
	Questions   []Question          `json:"questions"`
	TotalPoints int                 `json:"totalPoints"`
	Stats       ClassificationStats `json:"classificationStats"`
	Settings    QuizSettings        `json:"settings"`
}

// SessionStatus is the live-session state visible to all participants.
type SessionStatus string

const (
	SessionNotStarted SessionStatus = "not_started"
	SessionActive     SessionStatus = "active"
	SessionPaused     SessionStatus = "paused"
	SessionEnded      SessionStatus = "ended"
)

// Session is the teacher-controlled state for one (quiz, class) pair.
// Timestamps are set exactly once when entering the corresponding state;
// PausedAt alone is cleared on resume.
type Session struct {
	QuizID    string        `json:"quizId"`
	ClassID   string        `json:"classId"`
	TeacherID string        `json:"teacherId"`
	Status    SessionStatus `json:"status"`
	StartedAt *time.Time    `json:"startedAt,omitempty"`
	PausedAt  *time.Time    `json:"pausedAt,omitempty"`
	EndedAt   *time.Time    `json:"endedAt,omitempty"`
}

// AssignmentStatus is the per-student attempt lifecycle.
type AssignmentStatus string

const (
	AssignmentPending    AssignmentStatus = "pending"
	AssignmentInProgress AssignmentStatus = "in_progress"
	AssignmentCompleted  AssignmentStatus = "completed"
)

// Assignment links one student to one quiz in one class and carries their
// progress ledger. CurrentAnswers is keyed by question index and persisted
// write-through so a reconnecting client resumes without restarting.
type Assignment struct {
	ID          string   `json:"id"`
	QuizID      string   `json:"quizId"`
	ClassID     string   `json:"classId"`
	StudentID   string   `json:"studentId"`
	StudentName string   `json:"studentName"`
	TeacherID   string   `json:"teacherId"`
	QuizMode    QuizMode `json:"quizMode"` // copied at assign time, immutable

	DueDate     *time.Time `json:"dueDate,omitempty"`
	MaxAttempts int        `json:"maxAttempts"`
	Attempts    int        `json:"attempts"`

	Status               AssignmentStatus `json:"status"`
	Completed            bool             `json:"completed"`
	CurrentAnswers       map[int]string   `json:"currentAnswers,omitempty"`
	CurrentQuestionIndex int              `json:"currentQuestionIndex"`
	StartedAt            *time.Time       `json:"startedAt,omitempty"`
	SubmittedAt          *time.Time       `json:"submittedAt,omitempty"`

	RawScorePercentage    int `json:"rawScorePercentage"`
	Base50ScorePercentage int `json:"base50ScorePercentage"`
}

// EffectiveMaxAttempts returns the attempt cap with the default of 1 applied.
func (a Assignment) EffectiveMaxAttempts() int {
	if a.MaxAttempts <= 0 {
		return 1
	}
	return a.MaxAttempts
}

// Submission is the append-only record of one completed attempt. Only the
// recalculation cascade may rewrite its score fields; Answers stay untouched.
type Submission struct {
	ID           string         `json:"id"`
	AssignmentID string         `json:"assignmentId"`
	QuizID       string         `json:"quizId"`
	ClassID      string         `json:"classId"`
	StudentID    string         `json:"studentId"`
	StudentName  string         `json:"studentName"`
	Answers      map[int]string `json:"answers"`
	QuizMode     QuizMode       `json:"quizMode"`
	SubmittedAt  time.Time      `json:"submittedAt"`

	CorrectPoints         int `json:"correctPoints"`
	TotalPoints           int `json:"totalPoints"`
	RawScorePercentage    int `json:"rawScorePercentage"`
	Base50ScorePercentage int `json:"base50ScorePercentage"`
}

// Role distinguishes the two caller kinds the core authorizes against.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Identity is the authenticated caller supplied by the auth collaborator.
type Identity struct {
	UserID string
	Name   string
	Role   Role
}
