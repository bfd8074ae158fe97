package app

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"classquiz-service/internal/domain"
)

// QuizInvalidator lets the quiz write path drop stale cached copies after an
// edit. Cache implementations that never go stale can ignore it.
type QuizInvalidator interface {
	Invalidate(ctx context.Context, quizID string)
}

// QuizService owns quiz documents: bank validation at the intake boundary
// (AI-generated or hand-written banks arrive here as opaque input), derived
// totals, and the edit operations that trigger the recalculation cascade.
type QuizService struct {
	store   Store
	cascade *Cascade
	cache   QuizInvalidator
	rnd     *rand.Rand
}

func NewQuizService(store Store, cascade *Cascade, cache QuizInvalidator) *QuizService {
	return &QuizService{
		store:   store,
		cascade: cascade,
		cache:   cache,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Create validates the bank shape and persists a new quiz with derived totals,
// classification stats, and a join code.
func (s *QuizService) Create(ctx context.Context, caller domain.Identity, title string, questions []domain.Question, settings domain.QuizSettings) (domain.Quiz, error) {
	if caller.Role != domain.RoleTeacher {
		return domain.Quiz{}, domain.ErrPermissionDenied
	}
	if err := domain.ValidateBank(questions); err != nil {
		return domain.Quiz{}, err
	}
	if settings.Mode == "" {
		settings.Mode = domain.Asynchronous
	}

	quiz := domain.Quiz{
		ID:        uuid.NewString(),
		OwnerID:   caller.UserID,
		Title:     title,
		Code:      s.joinCode(),
		Questions: questions,
		Settings:  settings,
	}
	deriveTotals(&quiz)

	if err := withRetry(ctx, func() error { return s.store.PutQuiz(ctx, quiz) }); err != nil {
		return domain.Quiz{}, fmt.Errorf("persist quiz: %w", err)
	}
	return quiz, nil
}

// Get returns a quiz for its owning teacher.
func (s *QuizService) Get(ctx context.Context, caller domain.Identity, quizID string) (domain.Quiz, error) {
	quiz, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if caller.UserID != quiz.OwnerID {
		return domain.Quiz{}, domain.ErrPermissionDenied
	}
	return quiz, nil
}

// UpdateQuestion replaces the question at index and re-scores every existing
// submission against the updated bank.
func (s *QuizService) UpdateQuestion(ctx context.Context, caller domain.Identity, quizID string, index int, q domain.Question) (domain.Quiz, CascadeReport, error) {
	quiz, err := s.ownedQuiz(ctx, caller, quizID)
	if err != nil {
		return domain.Quiz{}, CascadeReport{}, err
	}
	if index < 0 || index >= len(quiz.Questions) {
		return domain.Quiz{}, CascadeReport{}, fmt.Errorf("%w: index %d out of range", domain.ErrInvalidQuestion, index)
	}
	if err := q.Validate(); err != nil {
		return domain.Quiz{}, CascadeReport{}, err
	}

	quiz.Questions[index] = q
	deriveTotals(&quiz)
	if err := s.persist(ctx, quiz); err != nil {
		return domain.Quiz{}, CascadeReport{}, err
	}

	report, err := s.cascade.Run(ctx, quizID, "", NoDeletion)
	return quiz, report, err
}

// DeleteQuestion removes the question at index. Answers of existing
// submissions stay keyed by their original positions, so the cascade re-scores
// them with index remapping.
func (s *QuizService) DeleteQuestion(ctx context.Context, caller domain.Identity, quizID string, index int) (domain.Quiz, CascadeReport, error) {
	quiz, err := s.ownedQuiz(ctx, caller, quizID)
	if err != nil {
		return domain.Quiz{}, CascadeReport{}, err
	}
	if index < 0 || index >= len(quiz.Questions) {
		return domain.Quiz{}, CascadeReport{}, fmt.Errorf("%w: index %d out of range", domain.ErrInvalidQuestion, index)
	}

	quiz.Questions = append(quiz.Questions[:index], quiz.Questions[index+1:]...)
	deriveTotals(&quiz)
	if err := s.persist(ctx, quiz); err != nil {
		return domain.Quiz{}, CascadeReport{}, err
	}

	report, err := s.cascade.Run(ctx, quizID, "", index)
	return quiz, report, err
}

func (s *QuizService) ownedQuiz(ctx context.Context, caller domain.Identity, quizID string) (domain.Quiz, error) {
	quiz, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if caller.Role != domain.RoleTeacher || caller.UserID != quiz.OwnerID {
		return domain.Quiz{}, domain.ErrPermissionDenied
	}
	return quiz, nil
}

func (s *QuizService) persist(ctx context.Context, quiz domain.Quiz) error {
	if err := withRetry(ctx, func() error { return s.store.PutQuiz(ctx, quiz) }); err != nil {
		return fmt.Errorf("persist quiz: %w", err)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, quiz.ID)
	}
	return nil
}

func deriveTotals(quiz *domain.Quiz) {
	total := 0
	hots := 0
	for _, q := range quiz.Questions {
		total += q.EffectivePoints()
		if q.Classification == domain.HOTS {
			hots++
		}
	}
	quiz.TotalPoints = total

	n := len(quiz.Questions)
	stats := domain.ClassificationStats{HOTSCount: hots, LOTSCount: n - hots}
	if n > 0 {
		stats.HOTSPercentage = math.Round(float64(hots) / float64(n) * 100)
		stats.LOTSPercentage = math.Round(float64(n-hots) / float64(n) * 100)
	}
	quiz.Stats = stats
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func (s *QuizService) joinCode() string {
	code := make([]byte, 6)
	for i := range code {
		code[i] = codeAlphabet[s.rnd.Intn(len(codeAlphabet))]
	}
	return string(code)
}
