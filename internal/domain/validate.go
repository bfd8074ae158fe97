package domain

import (
	"fmt"
	"strings"
)

// Validate checks the scoring-relevant shape of a question.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: empty question text", ErrInvalidQuestion)
	}
	switch q.Type {
	case MultipleChoice:
		if len(q.Choices) < 2 {
			return fmt.Errorf("%w: multiple_choice needs at least 2 choices", ErrInvalidQuestion)
		}
		correct := 0
		for _, c := range q.Choices {
			if c.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return fmt.Errorf("%w: multiple_choice needs exactly one correct choice, got %d", ErrInvalidQuestion, correct)
		}
	case TrueFalse, Identification:
		if strings.TrimSpace(q.CorrectAnswer) == "" {
			return fmt.Errorf("%w: %s needs a non-empty correct answer", ErrInvalidQuestion, q.Type)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidQuestion, q.Type)
	}
	return nil
}

// ValidateBank checks a whole question bank before it is accepted.
func ValidateBank(questions []Question) error {
	if len(questions) == 0 {
		return fmt.Errorf("%w: empty question bank", ErrInvalidQuestion)
	}
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}
	return nil
}
