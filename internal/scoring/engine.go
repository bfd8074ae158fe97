// Package scoring computes quiz results. Everything here is a pure function of
// (question bank, answer set) so submit-time scoring and the recalculation
// cascade always agree.
package scoring

import (
	"math"
	"strings"

	"classquiz-service/internal/domain"
)

// Result is the full score breakdown for one attempt.
type Result struct {
	CorrectPoints         int `json:"correctPoints"`
	TotalPoints           int `json:"totalPoints"`
	RawScorePercentage    int `json:"rawScorePercentage"`
	Base50ScorePercentage int `json:"base50ScorePercentage"`
}

// matcher reports whether an answer earns the question's points.
type matcher func(q domain.Question, answer string) bool

var matchers = map[domain.QuestionType]matcher{
	domain.MultipleChoice: matchMultipleChoice,
	domain.TrueFalse:      matchLiteral,
	domain.Identification: matchLiteral,
}

// Score grades an answer set against a question bank. Answers are keyed by
// question index; a missing or unmatched answer contributes nothing (unanswered
// is incorrect, not ungraded).
func Score(questions []domain.Question, answers map[int]string) Result {
	correct := 0
	total := 0
	for i, q := range questions {
		total += q.EffectivePoints()
		answer, ok := answers[i]
		if !ok || answer == "" {
			continue
		}
		match, ok := matchers[q.Type]
		if !ok {
			continue
		}
		if match(q, answer) {
			correct += q.EffectivePoints()
		}
	}

	raw := 0
	if total > 0 {
		raw = int(math.Round(float64(correct) / float64(total) * 100))
	}
	return Result{
		CorrectPoints:         correct,
		TotalPoints:           total,
		RawScorePercentage:    raw,
		Base50ScorePercentage: Transmute(raw),
	}
}

// Transmute maps a raw percentage onto the reported base-50 grade:
// round(50 + raw/2). The floor is 50 and the ceiling 100. This is a fixed
// grading policy, not configurable per quiz.
func Transmute(raw int) int {
	return int(math.Round(50 + float64(raw)/2))
}

func matchMultipleChoice(q domain.Question, answer string) bool {
	for _, c := range q.Choices {
		if c.IsCorrect {
			return answer == c.Text
		}
	}
	return false
}

// matchLiteral compares case-insensitively with surrounding whitespace trimmed,
// for true_false and identification answers.
func matchLiteral(q domain.Question, answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(q.CorrectAnswer))
}

// Remark returns the human-readable band for a base-50 grade.
func Remark(base50 int) string {
	switch {
	case base50 >= 90:
		return "Excellent!"
	case base50 >= 85:
		return "Very Good!"
	case base50 >= 80:
		return "Good!"
	case base50 >= 75:
		return "Passed"
	default:
		return "Needs Improvement"
	}
}
