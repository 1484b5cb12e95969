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

const changeRequestColumns = `id, faculty_id, allocation_id, type, reason, status, replacement_faculty_id, review_note, reviewed_by, reviewed_at, created_at, updated_at`

const changeRequestViewSelect = `SELECT r.id, r.faculty_id, r.allocation_id, r.type, r.reason, r.status, r.replacement_faculty_id, r.review_note, r.reviewed_by, r.reviewed_at, r.created_at, r.updated_at,
f.name AS faculty_name, f.email AS faculty_email,
a.alloc_date, a.slot AS alloc_slot, a.classroom_code AS alloc_classroom_code, a.invigilator_id AS alloc_invigilator_id
FROM change_requests r
LEFT JOIN faculty f ON f.id = r.faculty_id
LEFT JOIN allocations a ON a.id = r.allocation_id`

// ChangeRequestRepository persists faculty change requests.
type ChangeRequestRepository struct {
	db *sqlx.DB
}

// NewChangeRequestRepository constructs a ChangeRequestRepository.
func NewChangeRequestRepository(db *sqlx.DB) *ChangeRequestRepository {
	return &ChangeRequestRepository{db: db}
}

// Create inserts a pending request.
func (r *ChangeRequestRepository) Create(ctx context.Context, req *models.ChangeRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.CreatedAt, req.UpdatedAt = now, now
	if req.Status == "" {
		req.Status = models.RequestPending
	}

	const query = `INSERT INTO change_requests (id, faculty_id, allocation_id, type, reason, status, replacement_faculty_id, review_note, reviewed_by, reviewed_at, created_at, updated_at)
VALUES (:id, :faculty_id, :allocation_id, :type, :reason, :status, :replacement_faculty_id, :review_note, :reviewed_by, :reviewed_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create change request: %w", err)
	}
	return nil
}

// FindByID fetches a request.
func (r *ChangeRequestRepository) FindByID(ctx context.Context, id string) (*models.ChangeRequest, error) {
	const query = "SELECT " + changeRequestColumns + " FROM change_requests WHERE id = $1"
	var req models.ChangeRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// ExistsPending reports whether facultyID already has a pending request on
// allocationID.
func (r *ChangeRequestRepository) ExistsPending(ctx context.Context, facultyID, allocationID string) (bool, error) {
	const query = `SELECT 1 FROM change_requests WHERE faculty_id = $1 AND allocation_id = $2 AND status = 'pending' LIMIT 1`
	var exists int
	err := r.db.GetContext(ctx, &exists, query, facultyID, allocationID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check pending change request: %w", err)
	}
	return true, nil
}

// ListByFaculty returns a faculty member's requests, newest first.
func (r *ChangeRequestRepository) ListByFaculty(ctx context.Context, facultyID string) ([]models.ChangeRequestView, error) {
	var items []models.ChangeRequestView
	query := changeRequestViewSelect + ` WHERE r.faculty_id = $1 ORDER BY r.created_at DESC`
	if err := r.db.SelectContext(ctx, &items, query, facultyID); err != nil {
		return nil, fmt.Errorf("list change requests by faculty: %w", err)
	}
	return items, nil
}

// List returns requests in a status page by page, oldest first, with the
// total count.
func (r *ChangeRequestRepository) List(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequestView, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(changeRequestViewSelect+` WHERE r.status = $1 ORDER BY r.created_at ASC LIMIT %d OFFSET %d`, size, offset)
	var items []models.ChangeRequestView
	if err := r.db.SelectContext(ctx, &items, query, filter.Status); err != nil {
		return nil, 0, fmt.Errorf("list change requests: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM change_requests WHERE status = $1`, filter.Status); err != nil {
		return nil, 0, fmt.Errorf("count change requests: %w", err)
	}
	return items, total, nil
}

// Review moves a pending request to status. It returns sql.ErrNoRows when
// the request is no longer pending, so concurrent reviews cannot both win.
func (r *ChangeRequestRepository) Review(ctx context.Context, req *models.ChangeRequest) error {
	now := time.Now().UTC()
	req.UpdatedAt = now
	if req.ReviewedAt == nil {
		req.ReviewedAt = &now
	}

	const query = `UPDATE change_requests
SET status = :status, replacement_faculty_id = :replacement_faculty_id, review_note = :review_note,
    reviewed_by = :reviewed_by, reviewed_at = :reviewed_at, updated_at = :updated_at
WHERE id = :id AND status = 'pending'`
	res, err := r.db.NamedExecContext(ctx, query, req)
	if err != nil {
		return fmt.Errorf("review change request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListDangling returns approved requests whose allocation still names the
// requester. Rows removed by a clear or regenerate drop out.
func (r *ChangeRequestRepository) ListDangling(ctx context.Context) ([]models.ChangeRequestView, error) {
	query := changeRequestViewSelect + ` WHERE r.status = 'approved' AND a.id IS NOT NULL AND a.invigilator_id = r.faculty_id ORDER BY r.reviewed_at ASC`
	var items []models.ChangeRequestView
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("list dangling change requests: %w", err)
	}
	return items, nil
}
