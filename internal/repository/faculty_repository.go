package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/invigilation-api/internal/models"
)

const facultyColumns = `id, name, email, department, designation, login_id, active, created_at, updated_at`

// FacultyRepository manages persistence for the faculty directory.
type FacultyRepository struct {
	db *sqlx.DB
}

// NewFacultyRepository constructs a FacultyRepository.
func NewFacultyRepository(db *sqlx.DB) *FacultyRepository {
	return &FacultyRepository{db: db}
}

func (r *FacultyRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Search returns faculty matching the filter ordered by name.
func (r *FacultyRepository) Search(ctx context.Context, filter models.FacultyFilter) ([]models.Faculty, error) {
	query := "SELECT " + facultyColumns + " FROM faculty WHERE 1=1"
	var args []interface{}

	if filter.Active != nil {
		args = append(args, *filter.Active)
		query += fmt.Sprintf(" AND active = $%d", len(args))
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		args = append(args, "%"+strings.ToLower(term)+"%")
		n := len(args)
		query += fmt.Sprintf(" AND (LOWER(name) LIKE $%d OR LOWER(email) LIKE $%d OR LOWER(COALESCE(login_id, '')) LIKE $%d OR LOWER(department) LIKE $%d)", n, n, n, n)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY name ASC, id ASC LIMIT %d", limit)

	var items []models.Faculty
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("search faculty: %w", err)
	}
	return items, nil
}

// ListActive returns every active faculty member ordered by id.
func (r *FacultyRepository) ListActive(ctx context.Context) ([]models.Faculty, error) {
	const query = "SELECT " + facultyColumns + " FROM faculty WHERE active = TRUE ORDER BY id ASC"
	var items []models.Faculty
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("list active faculty: %w", err)
	}
	return items, nil
}

// Count returns the number of faculty rows, optionally active only.
func (r *FacultyRepository) Count(ctx context.Context, activeOnly bool) (int, error) {
	query := "SELECT COUNT(*) FROM faculty"
	if activeOnly {
		query += " WHERE active = TRUE"
	}
	var total int
	if err := r.db.GetContext(ctx, &total, query); err != nil {
		return 0, fmt.Errorf("count faculty: %w", err)
	}
	return total, nil
}

// FindByID fetches a faculty member by ID.
func (r *FacultyRepository) FindByID(ctx context.Context, id string) (*models.Faculty, error) {
	const query = "SELECT " + facultyColumns + " FROM faculty WHERE id = $1"
	var f models.Faculty
	if err := r.db.GetContext(ctx, &f, query, id); err != nil {
		return nil, err
	}
	return &f, nil
}

// FindByEmail fetches a faculty member by email, case-insensitively.
func (r *FacultyRepository) FindByEmail(ctx context.Context, email string) (*models.Faculty, error) {
	const query = "SELECT " + facultyColumns + " FROM faculty WHERE LOWER(email) = LOWER($1)"
	var f models.Faculty
	if err := r.db.GetContext(ctx, &f, query, email); err != nil {
		return nil, err
	}
	return &f, nil
}

// FindByLoginID fetches a faculty member by login id.
func (r *FacultyRepository) FindByLoginID(ctx context.Context, loginID string) (*models.Faculty, error) {
	const query = "SELECT " + facultyColumns + " FROM faculty WHERE login_id = $1"
	var f models.Faculty
	if err := r.db.GetContext(ctx, &f, query, loginID); err != nil {
		return nil, err
	}
	return &f, nil
}

// ExistsByEmail checks whether an email is already registered.
func (r *FacultyRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, "SELECT 1 FROM faculty WHERE LOWER(email) = LOWER($1) LIMIT 1", email)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check faculty email: %w", err)
	}
	return true, nil
}

// Create inserts a new faculty record.
func (r *FacultyRepository) Create(ctx context.Context, f *models.Faculty) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now

	const query = `INSERT INTO faculty (id, name, email, department, designation, login_id, active, created_at, updated_at)
		VALUES (:id, :name, :email, :department, :designation, :login_id, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, f); err != nil {
		return fmt.Errorf("create faculty: %w", err)
	}
	return nil
}

// Upsert inserts or refreshes a faculty record keyed by email. Imported rows
// are reactivated.
func (r *FacultyRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, f *models.Faculty) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now

	const query = `
INSERT INTO faculty (id, name, email, department, designation, login_id, active, created_at, updated_at)
VALUES (:id, :name, :email, :department, :designation, :login_id, :active, :created_at, :updated_at)
ON CONFLICT (email) DO UPDATE
SET name = EXCLUDED.name,
    department = EXCLUDED.department,
    designation = EXCLUDED.designation,
    login_id = COALESCE(EXCLUDED.login_id, faculty.login_id),
    active = EXCLUDED.active,
    updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, f); err != nil {
		return fmt.Errorf("upsert faculty: %w", err)
	}
	return nil
}

// Deactivate sets a faculty member's active flag to false. It returns
// sql.ErrNoRows when the id is unknown.
func (r *FacultyRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE faculty SET active = FALSE, updated_at = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate faculty: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
