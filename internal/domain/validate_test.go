package domain

import (
	"errors"
	"testing"
)

func TestQuestionValidate(t *testing.T) {
	valid := []Question{
		{Type: MultipleChoice, Text: "pick", Choices: []Choice{{Text: "a"}, {Text: "b", IsCorrect: true}}},
		{Type: TrueFalse, Text: "claim", CorrectAnswer: "True"},
		{Type: Identification, Text: "name it", CorrectAnswer: "Au"},
	}
	for i, q := range valid {
		if err := q.Validate(); err != nil {
			t.Fatalf("question %d should be valid: %v", i, err)
		}
	}

	invalid := []Question{
		{Type: MultipleChoice, Text: "one option", Choices: []Choice{{Text: "a", IsCorrect: true}}},
		{Type: MultipleChoice, Text: "no correct", Choices: []Choice{{Text: "a"}, {Text: "b"}}},
		{Type: MultipleChoice, Text: "two correct", Choices: []Choice{{Text: "a", IsCorrect: true}, {Text: "b", IsCorrect: true}}},
		{Type: TrueFalse, Text: "no key"},
		{Type: Identification, Text: "blank key", CorrectAnswer: "   "},
		{Type: "essay", Text: "unknown type"},
		{Type: TrueFalse, Text: "", CorrectAnswer: "True"},
	}
	for i, q := range invalid {
		if err := q.Validate(); !errors.Is(err, ErrInvalidQuestion) {
			t.Fatalf("question %d should be invalid, got %v", i, err)
		}
	}
}

func TestValidateBank(t *testing.T) {
	if err := ValidateBank(nil); !errors.Is(err, ErrInvalidQuestion) {
		t.Fatalf("empty bank must be rejected, got %v", err)
	}
	bank := []Question{
		{Type: TrueFalse, Text: "ok", CorrectAnswer: "True"},
		{Type: TrueFalse, Text: "broken"},
	}
	if err := ValidateBank(bank); !errors.Is(err, ErrInvalidQuestion) {
		t.Fatalf("bank with a broken question must be rejected, got %v", err)
	}
}

func TestDefaults(t *testing.T) {
	if (Question{}).EffectivePoints() != 1 {
		t.Fatalf("zero points must default to 1")
	}
	if (Question{Points: 5}).EffectivePoints() != 5 {
		t.Fatalf("explicit points must win")
	}
	if (Assignment{}).EffectiveMaxAttempts() != 1 {
		t.Fatalf("zero max attempts must default to 1")
	}
	if (Assignment{MaxAttempts: 3}).EffectiveMaxAttempts() != 3 {
		t.Fatalf("explicit max attempts must win")
	}
}
