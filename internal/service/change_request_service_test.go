package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/models"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

type changeRequestStoreStub struct {
	mu          sync.Mutex
	items       map[string]*models.ChangeRequest
	dangling    []models.ChangeRequestView
	lastFilter  models.ChangeRequestFilter
	raceOnWrite bool
}

func newChangeRequestStoreStub() *changeRequestStoreStub {
	return &changeRequestStoreStub{items: map[string]*models.ChangeRequest{}}
}

func (s *changeRequestStoreStub) Create(_ context.Context, req *models.ChangeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.ID == "" {
		req.ID = fmt.Sprintf("r-%d", len(s.items)+1)
	}
	copied := *req
	s.items[req.ID] = &copied
	return nil
}

func (s *changeRequestStoreStub) FindByID(_ context.Context, id string) (*models.ChangeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *req
	return &copied, nil
}

func (s *changeRequestStoreStub) ExistsPending(_ context.Context, facultyID, allocationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, req := range s.items {
		if req.FacultyID == facultyID && req.AllocationID == allocationID && req.Status == models.RequestPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *changeRequestStoreStub) ListByFaculty(_ context.Context, facultyID string) ([]models.ChangeRequestView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ChangeRequestView
	for _, req := range s.items {
		if req.FacultyID == facultyID {
			out = append(out, models.ChangeRequestView{ChangeRequest: *req})
		}
	}
	return out, nil
}

func (s *changeRequestStoreStub) List(_ context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequestView, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = filter
	var out []models.ChangeRequestView
	for _, req := range s.items {
		if req.Status == filter.Status {
			out = append(out, models.ChangeRequestView{ChangeRequest: *req})
		}
	}
	return out, len(out), nil
}

func (s *changeRequestStoreStub) Review(_ context.Context, req *models.ChangeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.items[req.ID]
	if !ok || current.Status != models.RequestPending || s.raceOnWrite {
		return sql.ErrNoRows
	}
	copied := *req
	s.items[req.ID] = &copied
	return nil
}

func (s *changeRequestStoreStub) ListDangling(context.Context) ([]models.ChangeRequestView, error) {
	return s.dangling, nil
}

type auditRecorder struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (a *auditRecorder) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, log)
	return nil
}

type changeRequestFixture struct {
	service     *ChangeRequestService
	repo        *changeRequestStoreStub
	allocations *allocationStoreStub
	audit       *auditRecorder
	metrics     *MetricsService
}

func newChangeRequestFixture(t *testing.T, logger *zap.Logger) *changeRequestFixture {
	t.Helper()
	fx := &changeRequestFixture{
		repo:        newChangeRequestStoreStub(),
		allocations: newAllocationStoreStub(),
		audit:       &auditRecorder{},
		metrics:     NewMetricsService(),
	}
	fx.allocations.seed(
		models.Allocation{ID: "a1", Date: "2025-04-10", Slot: "FN", ClassroomCode: "A-101", InvigilatorID: strPtr("F1"), Status: models.AllocationScheduled},
		models.Allocation{ID: "a2", Date: "2025-04-10", Slot: "FN", ClassroomCode: "A-102", InvigilatorID: strPtr("F2"), Status: models.AllocationScheduled},
		models.Allocation{ID: "a3", Date: "2025-04-10", Slot: "AN", ClassroomCode: "A-101", Status: models.AllocationScheduled},
	)
	faculty := &facultyStoreStub{items: map[string]*models.Faculty{
		"F1": {ID: "F1", Active: true},
		"F2": {ID: "F2", Active: true},
		"F3": {ID: "F3", Active: true},
		"F9": {ID: "F9", Active: false},
	}}
	fx.service = NewChangeRequestService(fx.repo, fx.allocations, faculty, fx.audit, fx.metrics, nil, logger)
	return fx
}

func facultyActor(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: "u-" + id, Role: models.RoleFaculty, FacultyID: id}
}

func TestChangeRequestServiceSubmit(t *testing.T) {
	fx := newChangeRequestFixture(t, nil)
	ctx := context.Background()

	req, err := fx.service.Submit(ctx, dto.SubmitChangeRequest{AllocationID: "a1", Reason: "clinic appointment"}, facultyActor("F1"))
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, req.Status)
	assert.Equal(t, models.ChangeRequestTypeChange, req.Type)
	assert.Equal(t, "F1", req.FacultyID)

	cases := []struct {
		name  string
		req   dto.SubmitChangeRequest
		actor *models.JWTClaims
		code  string
	}{
		{name: "duplicate pending", req: dto.SubmitChangeRequest{AllocationID: "a1", Reason: "still busy"}, actor: facultyActor("F1"), code: appErrors.ErrConflict.Code},
		{name: "unknown allocation", req: dto.SubmitChangeRequest{AllocationID: "nope", Reason: "busy"}, actor: facultyActor("F1"), code: appErrors.ErrNotFound.Code},
		{name: "someone else's allocation", req: dto.SubmitChangeRequest{AllocationID: "a2", Reason: "busy"}, actor: facultyActor("F1"), code: appErrors.ErrForbidden.Code},
		{name: "tbd allocation", req: dto.SubmitChangeRequest{AllocationID: "a3", Reason: "busy"}, actor: facultyActor("F1"), code: appErrors.ErrForbidden.Code},
		{name: "short reason", req: dto.SubmitChangeRequest{AllocationID: "a2", Reason: "x"}, actor: facultyActor("F2"), code: appErrors.ErrValidation.Code},
		{name: "admin without faculty", req: dto.SubmitChangeRequest{AllocationID: "a2", Reason: "busy"}, actor: &models.JWTClaims{UserID: "u-admin", Role: models.RoleAdmin}, code: appErrors.ErrForbidden.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.service.Submit(ctx, tc.req, tc.actor)
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
		})
	}

	mine, err := fx.service.ListMine(ctx, facultyActor("F1"))
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestChangeRequestServiceApprove(t *testing.T) {
	fx := newChangeRequestFixture(t, nil)
	ctx := context.Background()
	req, err := fx.service.Submit(ctx, dto.SubmitChangeRequest{AllocationID: "a1", Reason: "clinic appointment"}, facultyActor("F1"))
	require.NoError(t, err)

	approved, err := fx.service.Approve(ctx, req.ID, dto.ApproveChangeRequest{ToFacultyID: "F3"}, "u-admin")
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, approved.Status)
	require.NotNil(t, approved.ReplacementFacultyID)
	assert.Equal(t, "F3", *approved.ReplacementFacultyID)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, "u-admin", *approved.ReviewedBy)

	// Approval never moves the allocation itself.
	assert.Equal(t, "F1", *fx.allocations.get("a1").InvigilatorID)

	require.Len(t, fx.audit.entries, 1)
	assert.Equal(t, models.AuditActionRequestApprove, fx.audit.entries[0].Action)

	_, err = fx.service.Approve(ctx, req.ID, dto.ApproveChangeRequest{}, "u-admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = fx.service.Reject(ctx, req.ID, dto.RejectChangeRequest{}, "u-admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestChangeRequestServiceApproveRejectsUnknownReplacement(t *testing.T) {
	fx := newChangeRequestFixture(t, nil)
	ctx := context.Background()
	req, err := fx.service.Submit(ctx, dto.SubmitChangeRequest{AllocationID: "a1", Reason: "clinic appointment"}, facultyActor("F1"))
	require.NoError(t, err)

	for _, target := range []string{"F404", "F9"} {
		_, err = fx.service.Approve(ctx, req.ID, dto.ApproveChangeRequest{ToFacultyID: target}, "u-admin")
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	}

	stored, err := fx.repo.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, stored.Status)
}

func TestChangeRequestServiceApproveAfterDayCleared(t *testing.T) {
	fx := newChangeRequestFixture(t, nil)
	ctx := context.Background()
	req, err := fx.service.Submit(ctx, dto.SubmitChangeRequest{AllocationID: "a1", Reason: "clinic appointment"}, facultyActor("F1"))
	require.NoError(t, err)

	_, err = fx.allocations.DeleteByDate(ctx, nil, "2025-04-10")
	require.NoError(t, err)

	_, err = fx.service.Approve(ctx, req.ID, dto.ApproveChangeRequest{}, "u-admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Contains(t, appErrors.FromError(err).Message, "no longer exists")
	assert.Empty(t, fx.audit.entries)

	rejected, err := fx.service.Reject(ctx, req.ID, dto.RejectChangeRequest{Note: "day was regenerated"}, "u-admin")
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, rejected.Status)
}

func TestChangeRequestServiceReject(t *testing.T) {
	fx := newChangeRequestFixture(t, nil)
	ctx := context.Background()
	req, err := fx.service.Submit(ctx, dto.SubmitChangeRequest{AllocationID: "a2", Reason: "exam board duty"}, facultyActor("F2"))
	require.NoError(t, err)

	rejected, err := fx.service.Reject(ctx, req.ID, dto.RejectChangeRequest{Note: "no cover available"}, "u-admin")
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, rejected.Status)
	require.NotNil(t, rejected.ReviewNote)
	assert.Equal(t, "no cover available", *rejected.ReviewNote)

	// A rejected request frees the slot for a new one.
	_, err = fx.service.Submit(ctx, dto.SubmitChangeRequest{AllocationID: "a2", Reason: "exam board duty"}, facultyActor("F2"))
	require.NoError(t, err)
}

func TestChangeRequestServiceReviewRace(t *testing.T) {
	fx := newChangeRequestFixture(t, nil)
	ctx := context.Background()
	req, err := fx.service.Submit(ctx, dto.SubmitChangeRequest{AllocationID: "a1", Reason: "clinic appointment"}, facultyActor("F1"))
	require.NoError(t, err)

	fx.repo.raceOnWrite = true
	_, err = fx.service.Approve(ctx, req.ID, dto.ApproveChangeRequest{}, "u-admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, fx.audit.entries)

	_, err = fx.service.Approve(ctx, "missing", dto.ApproveChangeRequest{}, "u-admin")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestChangeRequestServiceListByStatus(t *testing.T) {
	fx := newChangeRequestFixture(t, nil)
	ctx := context.Background()
	_, err := fx.service.Submit(ctx, dto.SubmitChangeRequest{AllocationID: "a1", Reason: "clinic appointment"}, facultyActor("F1"))
	require.NoError(t, err)

	items, page, err := fx.service.ListByStatus(ctx, "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, models.RequestPending, fx.repo.lastFilter.Status)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 50, page.PageSize)
	assert.Equal(t, 1, page.TotalCount)

	items, _, err = fx.service.ListByStatus(ctx, "APPROVED", 2, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, models.ChangeRequestFilter{Status: models.RequestApproved, Page: 2, PageSize: 10}, fx.repo.lastFilter)

	_, _, err = fx.service.ListByStatus(ctx, "archived", 1, 10)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestChangeRequestServiceCheckDangling(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	fx := newChangeRequestFixture(t, zap.New(core))
	fx.repo.dangling = []models.ChangeRequestView{
		{ChangeRequest: models.ChangeRequest{ID: "r-1", FacultyID: "F1", AllocationID: "a1", Status: models.RequestApproved}, AllocationDate: strPtr("2025-04-10"), AllocationInvigilatorID: strPtr("F1")},
		{ChangeRequest: models.ChangeRequest{ID: "r-2", FacultyID: "F2", AllocationID: "a2", Status: models.RequestApproved}, AllocationDate: strPtr("2025-04-10"), AllocationSlot: strPtr("FN"), AllocationInvigilatorID: strPtr("F2")},
	}

	n, err := fx.service.CheckDangling(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, float64(2), testutil.ToFloat64(fx.metrics.danglingRequests))

	entries := logs.FilterMessage("approved change request not applied").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "r-1", entries[0].ContextMap()["request_id"])
	assert.Equal(t, "FN", entries[1].ContextMap()["slot"])
	assert.Equal(t, "2025-04-10", entries[1].ContextMap()["date"])
}

func TestChangeRequestServiceDanglingMonitorStopsWithContext(t *testing.T) {
	fx := newChangeRequestFixture(t, nil)
	fx.repo.dangling = []models.ChangeRequestView{{ChangeRequest: models.ChangeRequest{ID: "r-1"}}}

	ctx, cancel := context.WithCancel(context.Background())
	fx.service.StartDanglingMonitor(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(fx.metrics.danglingRequests) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
}
