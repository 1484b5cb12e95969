package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/invigilation-api/internal/models"
)

// ExamRepository manages the exam timetable.
type ExamRepository struct {
	db *sqlx.DB
}

// NewExamRepository constructs an ExamRepository.
func NewExamRepository(db *sqlx.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

func (r *ExamRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Count returns the number of exam rows.
func (r *ExamRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM exams`); err != nil {
		return 0, fmt.Errorf("count exams: %w", err)
	}
	return total, nil
}

// CountByDate returns the number of exam rows on date.
func (r *ExamRepository) CountByDate(ctx context.Context, date string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM exams WHERE exam_date = $1`, date); err != nil {
		return 0, fmt.Errorf("count exams by date: %w", err)
	}
	return total, nil
}

// SessionsByDate expands the classroom codes of every exam on date into
// distinct (slot, classroom) sessions.
func (r *ExamRepository) SessionsByDate(ctx context.Context, date string) ([]models.ExamSession, error) {
	const query = `SELECT DISTINCT e.slot, UPPER(TRIM(code)) AS classroom_code
FROM exams e, UNNEST(e.classroom_codes) AS code
WHERE e.exam_date = $1 AND TRIM(code) <> ''
ORDER BY e.slot, classroom_code`
	var sessions []models.ExamSession
	if err := r.db.SelectContext(ctx, &sessions, query, date); err != nil {
		return nil, fmt.Errorf("list exam sessions: %w", err)
	}
	return sessions, nil
}

// DistinctDates returns every date that has at least one exam, ascending.
func (r *ExamRepository) DistinctDates(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT exam_date FROM exams ORDER BY exam_date ASC`
	var dates []string
	if err := r.db.SelectContext(ctx, &dates, query); err != nil {
		return nil, fmt.Errorf("list exam dates: %w", err)
	}
	return dates, nil
}

// Upsert inserts or refreshes an exam keyed by (date, slot, course).
func (r *ExamRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, e *models.Exam) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now

	const query = `
INSERT INTO exams (id, exam_date, slot, classroom_codes, course, expected_headcount, created_at, updated_at)
VALUES (:id, :exam_date, :slot, :classroom_codes, :course, :expected_headcount, :created_at, :updated_at)
ON CONFLICT (exam_date, slot, course) DO UPDATE
SET classroom_codes = EXCLUDED.classroom_codes,
    expected_headcount = EXCLUDED.expected_headcount,
    updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, e); err != nil {
		return fmt.Errorf("upsert exam: %w", err)
	}
	return nil
}

// DeleteAll removes every exam row. Used when an upload replaces the
// timetable wholesale.
func (r *ExamRepository) DeleteAll(ctx context.Context, exec sqlx.ExtContext) (int64, error) {
	res, err := r.exec(exec).ExecContext(ctx, `DELETE FROM exams`)
	if err != nil {
		return 0, fmt.Errorf("delete exams: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
