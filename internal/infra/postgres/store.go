// Package postgres persists quiz documents as JSONB rows. Equality filters the
// core needs (by quiz, by class, by assignment) are promoted into indexed
// columns; everything else stays inside the document.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"classquiz-service/internal/domain"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	return quiz, nil
}

func (s *Store) PutQuiz(ctx context.Context, quiz domain.Quiz) error {
	raw, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO quizzes (id, data) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, raw)
	if err != nil {
		return fmt.Errorf("store quiz: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, quizID, classID string) (domain.Session, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM sessions WHERE quiz_id=$1 AND class_id=$2`, quizID, classID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return session, nil
}

func (s *Store) PutSession(ctx context.Context, session domain.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (quiz_id, class_id, data) VALUES ($1, $2, $3)
		 ON CONFLICT (quiz_id, class_id) DO UPDATE SET data=EXCLUDED.data`,
		session.QuizID, session.ClassID, raw)
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (s *Store) GetAssignment(ctx context.Context, id string) (domain.Assignment, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM assignments WHERE id=$1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Assignment{}, domain.ErrAssignmentNotFound
	}
	if err != nil {
		return domain.Assignment{}, fmt.Errorf("load assignment: %w", err)
	}
	return unmarshalAssignment(raw)
}

func (s *Store) PutAssignment(ctx context.Context, a domain.Assignment) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal assignment: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO assignments (id, quiz_id, class_id, student_id, data) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`,
		a.ID, a.QuizID, a.ClassID, a.StudentID, raw)
	if err != nil {
		return fmt.Errorf("store assignment: %w", err)
	}
	return nil
}

func (s *Store) ListAssignments(ctx context.Context, quizID, classID string) ([]domain.Assignment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM assignments WHERE quiz_id=$1 AND ($2='' OR class_id=$2) ORDER BY data->>'studentName'`,
		quizID, classID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Assignment, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		a, err := unmarshalAssignment(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) InsertSubmission(ctx context.Context, sub domain.Submission) error {
	raw, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO submissions (id, assignment_id, quiz_id, class_id, submitted_at, data)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		sub.ID, sub.AssignmentID, sub.QuizID, sub.ClassID, sub.SubmittedAt, raw)
	if err != nil {
		return fmt.Errorf("store submission: %w", err)
	}
	return nil
}

func (s *Store) ListSubmissions(ctx context.Context, quizID, classID string) ([]domain.Submission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM submissions WHERE quiz_id=$1 AND ($2='' OR class_id=$2) ORDER BY submitted_at`,
		quizID, classID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Submission, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		sub, err := unmarshalSubmission(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) LatestSubmission(ctx context.Context, assignmentID string) (domain.Submission, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM submissions WHERE assignment_id=$1 ORDER BY submitted_at DESC LIMIT 1`,
		assignmentID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	if err != nil {
		return domain.Submission{}, fmt.Errorf("load submission: %w", err)
	}
	return unmarshalSubmission(raw)
}

// ApplyRescore rewrites one student's submission and assignment documents in a
// single transaction, keeping the pair consistent.
func (s *Store) ApplyRescore(ctx context.Context, sub domain.Submission, asg domain.Assignment) error {
	subRaw, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	asgRaw, err := json.Marshal(asg)
	if err != nil {
		return fmt.Errorf("marshal assignment: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rescore: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE submissions SET data=$2 WHERE id=$1`, sub.ID, subRaw)
	if err != nil {
		return fmt.Errorf("rescore submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubmissionNotFound
	}

	tag, err = tx.Exec(ctx, `UPDATE assignments SET data=$2 WHERE id=$1`, asg.ID, asgRaw)
	if err != nil {
		return fmt.Errorf("rescore assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAssignmentNotFound
	}

	return tx.Commit(ctx)
}

func unmarshalAssignment(raw []byte) (domain.Assignment, error) {
	var a domain.Assignment
	if err := json.Unmarshal(raw, &a); err != nil {
		return domain.Assignment{}, fmt.Errorf("unmarshal assignment: %w", err)
	}
	return a, nil
}

func unmarshalSubmission(raw []byte) (domain.Submission, error) {
	var sub domain.Submission
	if err := json.Unmarshal(raw, &sub); err != nil {
		return domain.Submission{}, fmt.Errorf("unmarshal submission: %w", err)
	}
	return sub, nil
}
