package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/invigilation-api/internal/models"
)

// ConstraintRepository stores the singleton constraint row (id = 1).
type ConstraintRepository struct {
	db *sqlx.DB
}

// NewConstraintRepository constructs a ConstraintRepository.
func NewConstraintRepository(db *sqlx.DB) *ConstraintRepository {
	return &ConstraintRepository{db: db}
}

// Get returns the stored config or sql.ErrNoRows when none was saved yet.
func (r *ConstraintRepository) Get(ctx context.Context) (*models.ConstraintConfig, error) {
	const query = `SELECT max_hours_per_day, no_same_day_repeat, updated_by, updated_at FROM constraint_config WHERE id = 1`
	var cfg models.ConstraintConfig
	if err := r.db.GetContext(ctx, &cfg, query); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Upsert writes the singleton row. Last write wins.
func (r *ConstraintRepository) Upsert(ctx context.Context, cfg *models.ConstraintConfig) error {
	now := time.Now().UTC()
	cfg.UpdatedAt = &now

	const query = `
INSERT INTO constraint_config (id, max_hours_per_day, no_same_day_repeat, updated_by, updated_at)
VALUES (1, :max_hours_per_day, :no_same_day_repeat, :updated_by, :updated_at)
ON CONFLICT (id) DO UPDATE
SET max_hours_per_day = EXCLUDED.max_hours_per_day,
    no_same_day_repeat = EXCLUDED.no_same_day_repeat,
    updated_by = EXCLUDED.updated_by,
    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, cfg); err != nil {
		return fmt.Errorf("upsert constraint config: %w", err)
	}
	return nil
}
