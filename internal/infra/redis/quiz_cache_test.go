package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"classquiz-service/internal/domain"
	"classquiz-service/internal/infra/memory"
)

type countingLoader struct {
	QuizLoader
	calls int
}

func (l *countingLoader) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.GetQuiz(ctx, quizID)
}

func newFixture(t *testing.T) (*QuizCache, *countingLoader, *memory.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store := memory.NewStore()
	if err := store.PutQuiz(context.Background(), domain.Quiz{
		ID:    "quiz-1",
		Title: "Cached",
		Questions: []domain.Question{
			{Type: domain.TrueFalse, Text: "q", CorrectAnswer: "True"},
		},
	}); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	loader := &countingLoader{QuizLoader: store}
	return NewQuizCache(client, loader, time.Minute), loader, store
}

func TestQuizCacheCachesInRedis(t *testing.T) {
	cache, loader, _ := newFixture(t)

	if _, err := cache.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}

	// Second call should hit cache, loader not incremented.
	if _, err := cache.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
}

func TestQuizCacheInvalidateDropsStaleCopy(t *testing.T) {
	ctx := context.Background()
	cache, loader, store := newFixture(t)

	if _, err := cache.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}

	quiz, _ := store.GetQuiz(ctx, "quiz-1")
	quiz.Title = "Edited"
	if err := store.PutQuiz(ctx, quiz); err != nil {
		t.Fatalf("update quiz: %v", err)
	}
	cache.Invalidate(ctx, "quiz-1")

	got, err := cache.GetQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("get after invalidate: %v", err)
	}
	if got.Title != "Edited" {
		t.Fatalf("stale copy served after invalidation: %q", got.Title)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidation, calls=%d", loader.calls)
	}
}

func TestQuizCacheMissSentinel(t *testing.T) {
	cache, _, _ := newFixture(t)
	if _, err := cache.GetQuiz(context.Background(), "missing"); err != domain.ErrQuizNotFound {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}
