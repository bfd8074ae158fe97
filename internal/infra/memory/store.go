// Package memory provides the in-memory Store used for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"classquiz-service/internal/domain"
)

// Store keeps every document in process memory. The rescore pair write is
// atomic under the store mutex.
type Store struct {
	mu          sync.RWMutex
	quizzes     map[string]domain.Quiz
	sessions    map[string]domain.Session
	assignments map[string]domain.Assignment
	submissions map[string]domain.Submission
}

func NewStore() *Store {
	return &Store{
		quizzes:     make(map[string]domain.Quiz),
		sessions:    make(map[string]domain.Session),
		assignments: make(map[string]domain.Assignment),
		submissions: make(map[string]domain.Submission),
	}
}

func sessionKey(quizID, classID string) string { return quizID + "/" + classID }

func (s *Store) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return cloneQuiz(quiz), nil
}

func (s *Store) PutQuiz(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[quiz.ID] = cloneQuiz(quiz)
	return nil
}

func (s *Store) GetSession(_ context.Context, quizID, classID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionKey(quizID, classID)]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) PutSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionKey(session.QuizID, session.ClassID)] = session
	return nil
}

func (s *Store) GetAssignment(_ context.Context, id string) (domain.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[id]
	if !ok {
		return domain.Assignment{}, domain.ErrAssignmentNotFound
	}
	return cloneAssignment(a), nil
}

func (s *Store) PutAssignment(_ context.Context, a domain.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[a.ID] = cloneAssignment(a)
	return nil
}

func (s *Store) ListAssignments(_ context.Context, quizID, classID string) ([]domain.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Assignment, 0)
	for _, a := range s.assignments {
		if a.QuizID == quizID && (classID == "" || a.ClassID == classID) {
			out = append(out, cloneAssignment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentName < out[j].StudentName })
	return out, nil
}

func (s *Store) InsertSubmission(_ context.Context, sub domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[sub.ID] = cloneSubmission(sub)
	return nil
}

func (s *Store) ListSubmissions(_ context.Context, quizID, classID string) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Submission, 0)
	for _, sub := range s.submissions {
		if sub.QuizID == quizID && (classID == "" || sub.ClassID == classID) {
			out = append(out, cloneSubmission(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (s *Store) LatestSubmission(_ context.Context, assignmentID string) (domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest domain.Submission
	found := false
	for _, sub := range s.submissions {
		if sub.AssignmentID != assignmentID {
			continue
		}
		if !found || sub.SubmittedAt.After(latest.SubmittedAt) {
			latest = sub
			found = true
		}
	}
	if !found {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	return cloneSubmission(latest), nil
}

// ApplyRescore writes the submission's and assignment's score fields under one
// lock so no reader observes one updated and the other stale.
func (s *Store) ApplyRescore(_ context.Context, sub domain.Submission, asg domain.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.submissions[sub.ID]; !ok {
		return domain.ErrSubmissionNotFound
	}
	if _, ok := s.assignments[asg.ID]; !ok {
		return domain.ErrAssignmentNotFound
	}
	s.submissions[sub.ID] = cloneSubmission(sub)
	s.assignments[asg.ID] = cloneAssignment(asg)
	return nil
}

func cloneQuiz(q domain.Quiz) domain.Quiz {
	out := q
	out.Questions = make([]domain.Question, len(q.Questions))
	copy(out.Questions, q.Questions)
	for i, question := range out.Questions {
		if question.Choices != nil {
			choices := make([]domain.Choice, len(question.Choices))
			copy(choices, question.Choices)
			out.Questions[i].Choices = choices
		}
	}
	return out
}

func cloneAssignment(a domain.Assignment) domain.Assignment {
	out := a
	if a.CurrentAnswers != nil {
		out.CurrentAnswers = make(map[int]string, len(a.CurrentAnswers))
		for k, v := range a.CurrentAnswers {
			out.CurrentAnswers[k] = v
		}
	}
	return out
}

func cloneSubmission(sub domain.Submission) domain.Submission {
	out := sub
	if sub.Answers != nil {
		out.Answers = make(map[int]string, len(sub.Answers))
		for k, v := range sub.Answers {
			out.Answers[k] = v
		}
	}
	return out
}
