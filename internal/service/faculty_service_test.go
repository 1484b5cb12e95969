package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/models"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

type facultyDirectoryStub struct {
	items       []*models.Faculty
	lastFilter  models.FacultyFilter
	searchErr   error
	deactivated []string
}

func (s *facultyDirectoryStub) Search(_ context.Context, filter models.FacultyFilter) ([]models.Faculty, error) {
	s.lastFilter = filter
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	var out []models.Faculty
	for _, f := range s.items {
		if filter.Active != nil && f.Active != *filter.Active {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(f.Name+" "+f.Email+" "+f.Department), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, *f)
	}
	return out, nil
}

func (s *facultyDirectoryStub) find(match func(*models.Faculty) bool) (*models.Faculty, error) {
	for _, f := range s.items {
		if match(f) {
			copied := *f
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *facultyDirectoryStub) FindByID(_ context.Context, id string) (*models.Faculty, error) {
	return s.find(func(f *models.Faculty) bool { return f.ID == id })
}

func (s *facultyDirectoryStub) FindByEmail(_ context.Context, email string) (*models.Faculty, error) {
	return s.find(func(f *models.Faculty) bool { return strings.EqualFold(f.Email, email) })
}

func (s *facultyDirectoryStub) FindByLoginID(_ context.Context, loginID string) (*models.Faculty, error) {
	return s.find(func(f *models.Faculty) bool { return f.LoginID != nil && *f.LoginID == loginID })
}

func (s *facultyDirectoryStub) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := s.FindByEmail(ctx, email)
	return err == nil, nil
}

func (s *facultyDirectoryStub) Create(_ context.Context, f *models.Faculty) error {
	if f.ID == "" {
		f.ID = "F-new"
	}
	copied := *f
	s.items = append(s.items, &copied)
	return nil
}

func (s *facultyDirectoryStub) Deactivate(_ context.Context, id string) error {
	for _, f := range s.items {
		if f.ID == id {
			f.Active = false
			s.deactivated = append(s.deactivated, id)
			return nil
		}
	}
	return sql.ErrNoRows
}

func newFacultyDirectoryStub() *facultyDirectoryStub {
	return &facultyDirectoryStub{items: []*models.Faculty{
		{ID: "F1", Name: "Asha Menon", Email: "asha@example.edu", Department: "Physics", LoginID: strPtr("asha"), Active: true},
		{ID: "F2", Name: "Bala Raman", Email: "bala@example.edu", Department: "Chemistry", Active: true},
		{ID: "F9", Name: "Asha Old", Email: "old@example.edu", Department: "Physics", Active: false},
	}}
}

func TestFacultyServiceSearchActiveOnly(t *testing.T) {
	repo := newFacultyDirectoryStub()
	svc := NewFacultyService(repo, nil, nil, nil)

	items, err := svc.Search(context.Background(), "  asha ")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "F1", items[0].ID)
	assert.Equal(t, "asha", repo.lastFilter.Search)
	assert.Equal(t, 20, repo.lastFilter.Limit)
	require.NotNil(t, repo.lastFilter.Active)
	assert.True(t, *repo.lastFilter.Active)

	empty, err := svc.Search(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestFacultyServiceSearchFailure(t *testing.T) {
	svc := NewFacultyService(&facultyDirectoryStub{searchErr: errors.New("db down")}, nil, nil, nil)
	_, err := svc.Search(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestFacultyServiceAdd(t *testing.T) {
	repo := newFacultyDirectoryStub()
	audit := &auditRecorder{}
	svc := NewFacultyService(repo, audit, nil, nil)

	created, err := svc.Add(context.Background(), dto.AddFacultyRequest{Name: " Chitra ", Email: "Chitra@Example.edu", Department: "Maths", LoginID: "chitra"}, "u-admin")
	require.NoError(t, err)
	assert.Equal(t, "Chitra", created.Name)
	assert.Equal(t, "chitra@example.edu", created.Email)
	assert.True(t, created.Active)
	require.NotNil(t, created.LoginID)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionFacultyAdd, audit.entries[0].Action)

	_, err = svc.Add(context.Background(), dto.AddFacultyRequest{Name: "Dup", Email: "ASHA@example.edu"}, "u-admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = svc.Add(context.Background(), dto.AddFacultyRequest{Name: "No Email"}, "u-admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestFacultyServiceDeactivate(t *testing.T) {
	cases := []struct {
		name string
		req  dto.RemoveFacultyRequest
		id   string
	}{
		{name: "by id", req: dto.RemoveFacultyRequest{ID: "F1"}, id: "F1"},
		{name: "by email", req: dto.RemoveFacultyRequest{Email: "BALA@example.edu"}, id: "F2"},
		{name: "by login id", req: dto.RemoveFacultyRequest{LoginID: "asha"}, id: "F1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newFacultyDirectoryStub()
			svc := NewFacultyService(repo, nil, nil, nil)
			f, err := svc.Deactivate(context.Background(), tc.req, "u-admin")
			require.NoError(t, err)
			assert.Equal(t, tc.id, f.ID)
			assert.False(t, f.Active)
			assert.Equal(t, []string{tc.id}, repo.deactivated)
		})
	}
}

func TestFacultyServiceDeactivateEdgeCases(t *testing.T) {
	repo := newFacultyDirectoryStub()
	audit := &auditRecorder{}
	svc := NewFacultyService(repo, audit, nil, nil)

	f, err := svc.Deactivate(context.Background(), dto.RemoveFacultyRequest{ID: "F9"}, "u-admin")
	require.NoError(t, err)
	assert.False(t, f.Active)
	assert.Empty(t, repo.deactivated)
	assert.Empty(t, audit.entries)

	_, err = svc.Deactivate(context.Background(), dto.RemoveFacultyRequest{ID: "F404"}, "u-admin")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Deactivate(context.Background(), dto.RemoveFacultyRequest{}, "u-admin")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
