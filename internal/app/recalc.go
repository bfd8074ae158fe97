package app

import (
	"context"
	"fmt"
	"log"
	"sort"

	"classquiz-service/internal/domain"
	"classquiz-service/internal/scoring"
)

// NoDeletion marks a cascade run triggered by an edit that kept every index in
// place.
const NoDeletion = -1

// CascadeFailure records one student whose pair write failed, with enough
// context to re-run the cascade for that student alone.
type CascadeFailure struct {
	SubmissionID string `json:"submissionId"`
	AssignmentID string `json:"assignmentId"`
	StudentID    string `json:"studentId"`
	Err          string `json:"error"`
}

// CascadeReport summarizes one cascade run.
type CascadeReport struct {
	Submissions int              `json:"submissions"`
	Rescored    int              `json:"rescored"`
	Failures    []CascadeFailure `json:"failures,omitempty"`
}

// Cascade re-scores every existing submission of a quiz after its question
// bank changed. Each student's submission and assignment score fields are
// written in one atomic batch; a failed student is reported and skipped, never
// left half-updated, and never aborts the rest of the run. Running the cascade
// twice with no intervening edit produces identical results.
type Cascade struct {
	store Store
}

func NewCascade(store Store) *Cascade {
	return &Cascade{store: store}
}

// Run re-scores submissions for a quiz. classID narrows the run to one class;
// empty means every class with submissions. deletedIndex is the bank position
// removed by the triggering edit, or NoDeletion: stored answers keep their
// original positions, so an answer whose original index is past the deleted
// one is read from index-1 in the updated bank.
func (c *Cascade) Run(ctx context.Context, quizID, classID string, deletedIndex int) (CascadeReport, error) {
	quiz, err := c.store.GetQuiz(ctx, quizID)
	if err != nil {
		return CascadeReport{}, err
	}

	subs, err := c.store.ListSubmissions(ctx, quizID, classID)
	if err != nil {
		return CascadeReport{}, fmt.Errorf("list submissions: %w", err)
	}
	// Oldest first, so the assignment record ends up agreeing with the latest
	// attempt regardless of list order.
	sort.Slice(subs, func(i, j int) bool { return subs[i].SubmittedAt.Before(subs[j].SubmittedAt) })

	report := CascadeReport{Submissions: len(subs)}
	for _, sub := range subs {
		if err := c.rescoreOne(ctx, quiz, sub, deletedIndex); err != nil {
			log.Printf("cascade: quiz %s submission %s student %s: %v", quizID, sub.ID, sub.StudentID, err)
			report.Failures = append(report.Failures, CascadeFailure{
				SubmissionID: sub.ID,
				AssignmentID: sub.AssignmentID,
				StudentID:    sub.StudentID,
				Err:          err.Error(),
			})
			continue
		}
		report.Rescored++
	}
	return report, nil
}

// RunForStudent re-drives the cascade for a single submission, for recovering
// from a partial failure.
func (c *Cascade) RunForStudent(ctx context.Context, quizID, submissionID string, deletedIndex int) error {
	quiz, err := c.store.GetQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	subs, err := c.store.ListSubmissions(ctx, quizID, "")
	if err != nil {
		return fmt.Errorf("list submissions: %w", err)
	}
	for _, sub := range subs {
		if sub.ID == submissionID {
			return c.rescoreOne(ctx, quiz, sub, deletedIndex)
		}
	}
	return domain.ErrSubmissionNotFound
}

func (c *Cascade) rescoreOne(ctx context.Context, quiz domain.Quiz, sub domain.Submission, deletedIndex int) error {
	res := scoring.Score(quiz.Questions, remapAnswers(sub.Answers, deletedIndex))

	asg, err := c.store.GetAssignment(ctx, sub.AssignmentID)
	if err != nil {
		return err
	}

	// Answers stay the original, unedited record of what was selected; only
	// score fields move.
	sub.CorrectPoints = res.CorrectPoints
	sub.TotalPoints = res.TotalPoints
	sub.RawScorePercentage = res.RawScorePercentage
	sub.Base50ScorePercentage = res.Base50ScorePercentage

	asg.RawScorePercentage = res.RawScorePercentage
	asg.Base50ScorePercentage = res.Base50ScorePercentage

	return withRetry(ctx, func() error { return c.store.ApplyRescore(ctx, sub, asg) })
}

// remapAnswers rekeys a stored answer map after a deletion at deletedIndex:
// the answer for new bank index i comes from original index i+1 once i reaches
// the deleted slot. The stored map itself is never modified.
func remapAnswers(answers map[int]string, deletedIndex int) map[int]string {
	if deletedIndex == NoDeletion {
		return answers
	}
	remapped := make(map[int]string, len(answers))
	for origIdx, answer := range answers {
		switch {
		case origIdx == deletedIndex:
			// The deleted question's answer no longer scores against anything.
		case origIdx > deletedIndex:
			remapped[origIdx-1] = answer
		default:
			remapped[origIdx] = answer
		}
	}
	return remapped
}
