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

func strPtr(s string) *string { return &s }

func TestAllocationRepositoryBulkCreateInTx(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAllocationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO allocations")).
		WithArgs(sqlmock.AnyArg(), "2025-04-10", "FN", "A-101", "F1", models.AllocationScheduled, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO allocations")).
		WithArgs(sqlmock.AnyArg(), "2025-04-10", "FN", "A-102", nil, models.AllocationScheduled, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	items := []models.Allocation{
		{Date: "2025-04-10", Slot: "FN", ClassroomCode: "A-101", InvigilatorID: strPtr("F1")},
		{Date: "2025-04-10", Slot: "FN", ClassroomCode: "A-102"},
	}
	require.NoError(t, repo.BulkCreate(context.Background(), tx, items))
	require.NoError(t, tx.Commit())

	assert.NotEmpty(t, items[0].ID)
	assert.NotEqual(t, items[0].ID, items[1].ID)
	assert.False(t, items[1].CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocationRepositoryDeleteByDate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAllocationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM allocations WHERE alloc_date = $1")).
		WithArgs("2025-04-10").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM allocations WHERE alloc_date = $1")).
		WithArgs("2025-04-10").
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := repo.DeleteByDate(context.Background(), nil, "2025-04-10")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = repo.DeleteByDate(context.Background(), nil, "2025-04-10")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocationRepositoryFindSlotConflict(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAllocationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM allocations")).
		WithArgs("2025-04-10", "FN", "F2", "alloc-1", "A-101").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("alloc-2"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM allocations")).
		WithArgs("2025-04-10", "AN", "F2", "alloc-1", "A-101").
		WillReturnError(sql.ErrNoRows)

	id, err := repo.FindSlotConflict(context.Background(), nil, "2025-04-10", "FN", "A-101", "F2", "alloc-1")
	require.NoError(t, err)
	assert.Equal(t, "alloc-2", id)

	id, err = repo.FindSlotConflict(context.Background(), nil, "2025-04-10", "AN", "A-101", "F2", "alloc-1")
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocationRepositoryUpdateInvigilatorMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAllocationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE allocations SET invigilator_id = $2, status = $3")).
		WithArgs("missing", "F1", models.AllocationReassigned, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateInvigilator(context.Background(), nil, "missing", "F1", models.AllocationReassigned)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocationRepositoryListViewsByDate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAllocationRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "alloc_date", "slot", "classroom_code", "invigilator_id", "status", "notified_at", "created_at", "updated_at",
		"invigilator_name", "invigilator_email", "invigilator_department", "invigilator_designation"}).
		AddRow("a1", "2025-04-10", "FN", "A-101", "F1", "scheduled", nil, now, now, "Asha", "asha@example.edu", "CSE", "Professor").
		AddRow("a2", "2025-04-10", "FN", "A-102", nil, "scheduled", nil, now, now, nil, nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM allocations a\nLEFT JOIN faculty f ON f.id = a.invigilator_id WHERE a.alloc_date = $1")).
		WithArgs("2025-04-10").
		WillReturnRows(rows)

	items, err := repo.ListViewsByDate(context.Background(), "2025-04-10")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Asha", *items[0].InvigilatorName)
	assert.True(t, items[1].IsTBD())
	assert.Nil(t, items[1].InvigilatorEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocationRepositoryHistory(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAllocationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM allocations GROUP BY alloc_date ORDER BY alloc_date DESC LIMIT 60")).
		WillReturnRows(sqlmock.NewRows([]string{"alloc_date", "total", "unassigned"}).
			AddRow("2025-04-11", 4, 1).
			AddRow("2025-04-10", 2, 0))

	items, err := repo.History(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []models.DaySummary{{Date: "2025-04-11", Count: 4, Unassigned: 1}, {Date: "2025-04-10", Count: 2}}, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocationRepositoryMarkNotified(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAllocationRepository(db)

	at := time.Date(2025, 4, 9, 8, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE allocations\nSET notified_at = $2")).
		WithArgs("a1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkNotified(context.Background(), "a1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}
