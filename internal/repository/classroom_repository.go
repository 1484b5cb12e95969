package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/invigilation-api/internal/models"
)

// ClassroomRepository manages examination halls.
type ClassroomRepository struct {
	db *sqlx.DB
}

// NewClassroomRepository constructs a ClassroomRepository.
func NewClassroomRepository(db *sqlx.DB) *ClassroomRepository {
	return &ClassroomRepository{db: db}
}

func (r *ClassroomRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListActive returns active classrooms ordered by code.
func (r *ClassroomRepository) ListActive(ctx context.Context) ([]models.Classroom, error) {
	const query = `SELECT id, code, capacity, active, created_at, updated_at FROM classrooms WHERE active = TRUE ORDER BY code ASC`
	var items []models.Classroom
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("list classrooms: %w", err)
	}
	return items, nil
}

// Count returns the number of classroom rows.
func (r *ClassroomRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM classrooms`); err != nil {
		return 0, fmt.Errorf("count classrooms: %w", err)
	}
	return total, nil
}

// Upsert inserts or refreshes a classroom keyed by code.
func (r *ClassroomRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, c *models.Classroom) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	const query = `
INSERT INTO classrooms (id, code, capacity, active, created_at, updated_at)
VALUES (:id, :code, :capacity, :active, :created_at, :updated_at)
ON CONFLICT (code) DO UPDATE
SET capacity = EXCLUDED.capacity,
    active = EXCLUDED.active,
    updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, c); err != nil {
		return fmt.Errorf("upsert classroom: %w", err)
	}
	return nil
}
