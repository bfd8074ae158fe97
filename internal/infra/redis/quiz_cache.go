// Package redis caches quiz banks in Redis so a class full of students hitting
// the same quiz does not hammer the backing store.
package redis

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"classquiz-service/internal/domain"
)

// QuizLoader fetches quiz content from the backing store on cache miss.
type QuizLoader interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizCache stores each quiz as JSON under quiz:{id} with a jittered TTL.
// Concurrent misses for the same quiz are collapsed through singleflight.
type QuizCache struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuizCache(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizCache {
	return &QuizCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuizCache) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	key := c.key(quizID)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil && len(raw) > 0 {
		var quiz domain.Quiz
		if err := json.Unmarshal(raw, &quiz); err == nil {
			return quiz, nil
		}
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil && len(raw) > 0 {
			var quiz domain.Quiz
			if err := json.Unmarshal(raw, &quiz); err == nil {
				return quiz, nil
			}
		}

		quiz, err := c.loader.GetQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		if raw, err := json.Marshal(quiz); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate drops the cached copy after an edit so the next read sees the
// updated bank. Best-effort: the TTL bounds staleness if the delete fails.
func (c *QuizCache) Invalidate(ctx context.Context, quizID string) {
	if err := c.client.Del(ctx, c.key(quizID)).Err(); err != nil {
		// TTL will expire the stale entry.
		log.Printf("invalidate quiz %s: %v", quizID, err)
	}
}

func (c *QuizCache) key(quizID string) string {
	return "quiz:" + quizID
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
