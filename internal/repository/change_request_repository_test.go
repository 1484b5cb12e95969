package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/invigilation-api/internal/models"
)

var changeRequestViewColumns = []string{"id", "faculty_id", "allocation_id", "type", "reason", "status", "replacement_faculty_id", "review_note", "reviewed_by", "reviewed_at", "created_at", "updated_at",
	"faculty_name", "faculty_email", "alloc_date", "alloc_slot", "alloc_classroom_code", "alloc_invigilator_id"}

func TestChangeRequestRepositoryReviewAlreadyDecided(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChangeRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("AND status = 'pending'")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	req := &models.ChangeRequest{ID: "r1", Status: models.RequestApproved}
	err := repo.Review(context.Background(), req)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NotNil(t, req.ReviewedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRequestRepositoryListPaginates(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChangeRequestRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE r.status = $1 ORDER BY r.created_at ASC LIMIT 10 OFFSET 10")).
		WithArgs(models.RequestPending).
		WillReturnRows(sqlmock.NewRows(changeRequestViewColumns).
			AddRow("r1", "F1", "a1", "change", "travel", "pending", nil, nil, nil, nil, now, now,
				"Asha", "asha@example.edu", "2025-04-10", "FN", "A-101", "F1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM change_requests WHERE status = $1")).
		WithArgs(models.RequestPending).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	items, total, err := repo.List(context.Background(), models.ChangeRequestFilter{Status: models.RequestPending, Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.Len(t, items, 1)
	assert.Equal(t, "A-101", *items[0].AllocationClassroom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRequestRepositoryExistsPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChangeRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM change_requests WHERE faculty_id = $1 AND allocation_id = $2 AND status = 'pending'")).
		WithArgs("F1", "a1").
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.ExistsPending(context.Background(), "F1", "a1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRequestRepositoryListDangling(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChangeRequestRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("r.status = 'approved' AND a.id IS NOT NULL AND a.invigilator_id = r.faculty_id")).
		WillReturnRows(sqlmock.NewRows(changeRequestViewColumns).
			AddRow("r2", "F2", "a2", "change", "clash", "approved", nil, nil, "admin", now, now, now,
				"Bala", "bala@example.edu", "2025-04-10", "FN", "A-102", "F2"))

	items, err := repo.ListDangling(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].AllocationInvigilatorID)
	assert.Equal(t, "F2", *items[0].AllocationInvigilatorID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
