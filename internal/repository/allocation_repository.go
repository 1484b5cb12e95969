package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/invigilation-api/internal/models"
)

const allocationColumns = `id, alloc_date, slot, classroom_code, invigilator_id, status, notified_at, created_at, updated_at`

const allocationViewSelect = `SELECT a.id, a.alloc_date, a.slot, a.classroom_code, a.invigilator_id, a.status, a.notified_at, a.created_at, a.updated_at,
f.name AS invigilator_name, f.email AS invigilator_email, f.department AS invigilator_department, f.designation AS invigilator_designation
FROM allocations a
LEFT JOIN faculty f ON f.id = a.invigilator_id`

// allocationOrder sorts rows FN, AN, EV then by room.
const allocationOrder = ` ORDER BY a.alloc_date ASC, CASE a.slot WHEN 'FN' THEN 0 WHEN 'AN' THEN 1 WHEN 'EV' THEN 2 ELSE 3 END, a.classroom_code ASC, a.created_at ASC`

// AllocationRepository persists invigilation allocations.
type AllocationRepository struct {
	db *sqlx.DB
}

// NewAllocationRepository constructs an AllocationRepository.
func NewAllocationRepository(db *sqlx.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

func (r *AllocationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// BulkCreate inserts allocations in order. Missing ids and timestamps are
// filled in place.
func (r *AllocationRepository) BulkCreate(ctx context.Context, exec sqlx.ExtContext, items []models.Allocation) error {
	if len(items) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `INSERT INTO allocations (id, alloc_date, slot, classroom_code, invigilator_id, status, notified_at, created_at, updated_at)
VALUES (:id, :alloc_date, :slot, :classroom_code, :invigilator_id, :status, :notified_at, :created_at, :updated_at)`

	for i := range items {
		item := &items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		if item.Status == "" {
			item.Status = models.AllocationScheduled
		}
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		item.UpdatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, target, query, item); err != nil {
			return fmt.Errorf("create allocation: %w", err)
		}
	}
	return nil
}

// DeleteByDate removes every allocation on date and returns how many rows
// went away.
func (r *AllocationRepository) DeleteByDate(ctx context.Context, exec sqlx.ExtContext, date string) (int64, error) {
	res, err := r.exec(exec).ExecContext(ctx, `DELETE FROM allocations WHERE alloc_date = $1`, date)
	if err != nil {
		return 0, fmt.Errorf("delete allocations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete allocations rows affected: %w", err)
	}
	return n, nil
}

// FindByID fetches one allocation.
func (r *AllocationRepository) FindByID(ctx context.Context, id string) (*models.Allocation, error) {
	const query = "SELECT " + allocationColumns + " FROM allocations WHERE id = $1"
	var a models.Allocation
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		return nil, err
	}
	return &a, nil
}

// FindViewByID fetches one allocation joined with its invigilator.
func (r *AllocationRepository) FindViewByID(ctx context.Context, id string) (*models.AllocationView, error) {
	var v models.AllocationView
	if err := r.db.GetContext(ctx, &v, allocationViewSelect+` WHERE a.id = $1`, id); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListViewsByDate returns the day's allocations in slot and room order.
func (r *AllocationRepository) ListViewsByDate(ctx context.Context, date string) ([]models.AllocationView, error) {
	var items []models.AllocationView
	if err := r.db.SelectContext(ctx, &items, allocationViewSelect+` WHERE a.alloc_date = $1`+allocationOrder, date); err != nil {
		return nil, fmt.Errorf("list allocations by date: %w", err)
	}
	return items, nil
}

// ListViewsByFaculty returns every allocation naming facultyID.
func (r *AllocationRepository) ListViewsByFaculty(ctx context.Context, facultyID string) ([]models.AllocationView, error) {
	var items []models.AllocationView
	if err := r.db.SelectContext(ctx, &items, allocationViewSelect+` WHERE a.invigilator_id = $1`+allocationOrder, facultyID); err != nil {
		return nil, fmt.Errorf("list allocations by faculty: %w", err)
	}
	return items, nil
}

// ListAssignedByDate returns the day's allocations that have an invigilator.
func (r *AllocationRepository) ListAssignedByDate(ctx context.Context, date string) ([]models.AllocationView, error) {
	var items []models.AllocationView
	query := allocationViewSelect + ` WHERE a.alloc_date = $1 AND a.invigilator_id IS NOT NULL` + allocationOrder
	if err := r.db.SelectContext(ctx, &items, query, date); err != nil {
		return nil, fmt.Errorf("list assigned allocations: %w", err)
	}
	return items, nil
}

// FindSlotConflict returns the id of another allocation in the same date and
// slot already held by facultyID in a different classroom, or "" when there
// is none.
func (r *AllocationRepository) FindSlotConflict(ctx context.Context, exec sqlx.ExtContext, date, slot, classroomCode, facultyID, excludeID string) (string, error) {
	const query = `SELECT id FROM allocations
WHERE alloc_date = $1 AND slot = $2 AND invigilator_id = $3 AND id <> $4 AND classroom_code <> $5
LIMIT 1`
	var id string
	err := sqlx.GetContext(ctx, r.exec(exec), &id, query, date, slot, facultyID, excludeID, classroomCode)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find slot conflict: %w", err)
	}
	return id, nil
}

// UpdateInvigilator points an allocation at a new invigilator and status.
func (r *AllocationRepository) UpdateInvigilator(ctx context.Context, exec sqlx.ExtContext, id, facultyID string, status models.AllocationStatus) error {
	const query = `UPDATE allocations SET invigilator_id = $2, status = $3, updated_at = $4 WHERE id = $1`
	res, err := r.exec(exec).ExecContext(ctx, query, id, facultyID, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update allocation invigilator: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkNotified stamps notifiedAt. Scheduled rows move to notified;
// reassigned rows keep their status.
func (r *AllocationRepository) MarkNotified(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE allocations
SET notified_at = $2,
    status = CASE WHEN status = 'scheduled' THEN 'notified' ELSE status END,
    updated_at = $2
WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("mark allocation notified: %w", err)
	}
	return nil
}

// History summarises stored allocations per date, most recent first.
func (r *AllocationRepository) History(ctx context.Context, limit int) ([]models.DaySummary, error) {
	if limit <= 0 || limit > 366 {
		limit = 60
	}
	query := fmt.Sprintf(`SELECT alloc_date, COUNT(*) AS total, COUNT(*) FILTER (WHERE invigilator_id IS NULL) AS unassigned
FROM allocations GROUP BY alloc_date ORDER BY alloc_date DESC LIMIT %d`, limit)
	var items []models.DaySummary
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("allocation history: %w", err)
	}
	return items, nil
}
