package scoring

import (
	"hash/fnv"
	"math/rand"

	"classquiz-service/internal/domain"
)

// AttemptSeed derives a deterministic shuffle seed for one attempt, so a
// reconnecting client sees the same choice order for the lifetime of that
// attempt while different students and later attempts get different orders.
func AttemptSeed(assignmentID string, attempt int) int64 {
	h := fnv.New64a()
	h.Write([]byte(assignmentID))
	return int64(h.Sum64()) + int64(attempt)*7919
}

// IdentificationChoices builds the closed answer pool for identification
// questions: the unique correct answers across every identification question in
// the bank, independently shuffled per question slot. The result is keyed by
// question index.
func IdentificationChoices(questions []domain.Question, seed int64) map[int][]string {
	pool := make([]string, 0)
	seen := make(map[string]struct{})
	for _, q := range questions {
		if q.Type != domain.Identification || q.CorrectAnswer == "" {
			continue
		}
		if _, ok := seen[q.CorrectAnswer]; ok {
			continue
		}
		seen[q.CorrectAnswer] = struct{}{}
		pool = append(pool, q.CorrectAnswer)
	}

	choices := make(map[int][]string)
	for i, q := range questions {
		if q.Type != domain.Identification {
			continue
		}
		shuffled := make([]string, len(pool))
		copy(shuffled, pool)
		rnd := rand.New(rand.NewSource(seed + int64(i)))
		rnd.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		choices[i] = shuffled
	}
	return choices
}

// ShuffledChoices reorders a multiple-choice question's choices for display,
// deterministically per (seed, slot). The correct flag travels with its choice;
// scoring matches on text, so display order never affects grading.
func ShuffledChoices(q domain.Question, seed int64, slot int) []domain.Choice {
	shuffled := make([]domain.Choice, len(q.Choices))
	copy(shuffled, q.Choices)
	rnd := rand.New(rand.NewSource(seed ^ int64(slot)*104729))
	rnd.Shuffle(len(shuffled), func(a, b int) {
		shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
	})
	return shuffled
}
