package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/invigilation-api/internal/dto"
	internalmiddleware "github.com/noah-isme/invigilation-api/internal/middleware"
	"github.com/noah-isme/invigilation-api/internal/models"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

type changeRequestWorkflowStub struct {
	submitted  dto.SubmitChangeRequest
	actor      *models.JWTClaims
	status     string
	page, size int
	approveReq dto.ApproveChangeRequest
	rejectReq  dto.RejectChangeRequest
	reviewer   string
}

func (s *changeRequestWorkflowStub) Submit(_ context.Context, req dto.SubmitChangeRequest, actor *models.JWTClaims) (*models.ChangeRequest, error) {
	s.submitted = req
	s.actor = actor
	if req.AllocationID == "taken" {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a pending request already exists for this allocation")
	}
	return &models.ChangeRequest{ID: "r-1", FacultyID: actor.FacultyID, AllocationID: req.AllocationID, Status: models.RequestPending}, nil
}

func (s *changeRequestWorkflowStub) ListMine(_ context.Context, actor *models.JWTClaims) ([]models.ChangeRequestView, error) {
	s.actor = actor
	return []models.ChangeRequestView{}, nil
}

func (s *changeRequestWorkflowStub) ListByStatus(_ context.Context, status string, page, size int) ([]models.ChangeRequestView, *models.Pagination, error) {
	s.status, s.page, s.size = status, page, size
	return []models.ChangeRequestView{}, &models.Pagination{Page: page, PageSize: size}, nil
}

func (s *changeRequestWorkflowStub) Approve(_ context.Context, id string, req dto.ApproveChangeRequest, reviewerID string) (*models.ChangeRequest, error) {
	s.approveReq = req
	s.reviewer = reviewerID
	if id == "done" {
		return nil, appErrors.Clone(appErrors.ErrConflict, "change request is already approved")
	}
	return &models.ChangeRequest{ID: id, Status: models.RequestApproved}, nil
}

func (s *changeRequestWorkflowStub) Reject(_ context.Context, id string, req dto.RejectChangeRequest, reviewerID string) (*models.ChangeRequest, error) {
	s.rejectReq = req
	s.reviewer = reviewerID
	return &models.ChangeRequest{ID: id, Status: models.RequestRejected}, nil
}

func (s *changeRequestWorkflowStub) Dangling(context.Context) ([]models.ChangeRequestView, error) {
	return []models.ChangeRequestView{{ChangeRequest: models.ChangeRequest{ID: "r-9", Status: models.RequestApproved}}}, nil
}

func newChangeRequestRouter(stub *changeRequestWorkflowStub, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := &ChangeRequestHandler{service: stub}
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if claims != nil {
			c.Set(internalmiddleware.ContextUserKey, claims)
		}
		c.Next()
	})
	router.POST("/faculty/requests", h.Submit)
	router.GET("/faculty/requests", h.Mine)
	router.GET("/faculty/admin/requests", h.List)
	router.GET("/faculty/admin/requests/dangling", h.Dangling)
	router.POST("/faculty/requests/:id/approve", h.Approve)
	router.POST("/faculty/requests/:id/reject", h.Reject)
	return router
}

func TestChangeRequestHandlerSubmit(t *testing.T) {
	stub := &changeRequestWorkflowStub{}
	router := newChangeRequestRouter(stub, &models.JWTClaims{UserID: "u-f1", Role: models.RoleFaculty, FacultyID: "F1"})

	w := doRequest(router, http.MethodPost, "/faculty/requests", []byte(`{"allocationId":"a1","reason":"clinic visit"}`))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "a1", stub.submitted.AllocationID)
	assert.Equal(t, "F1", stub.actor.FacultyID)

	w = doRequest(router, http.MethodPost, "/faculty/requests", []byte(`{"allocationId":"taken","reason":"again"}`))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(router, http.MethodPost, "/faculty/requests", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodGet, "/faculty/requests", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestChangeRequestHandlerAdminList(t *testing.T) {
	stub := &changeRequestWorkflowStub{}
	router := newChangeRequestRouter(stub, &models.JWTClaims{UserID: "u-admin", Role: models.RoleAdmin})

	w := doRequest(router, http.MethodGet, "/faculty/admin/requests?status=approved&page=2&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "approved", stub.status)
	assert.Equal(t, 2, stub.page)
	assert.Equal(t, 10, stub.size)
	assert.Contains(t, w.Body.String(), `"pagination"`)

	w = doRequest(router, http.MethodGet, "/faculty/admin/requests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", stub.status)
	assert.Equal(t, 50, stub.size)

	w = doRequest(router, http.MethodGet, "/faculty/admin/requests/dangling", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "r-9")
}

func TestChangeRequestHandlerReview(t *testing.T) {
	stub := &changeRequestWorkflowStub{}
	router := newChangeRequestRouter(stub, &models.JWTClaims{UserID: "u-admin", Role: models.RoleAdmin})

	w := doRequest(router, http.MethodPost, "/faculty/requests/r-1/approve", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-admin", stub.reviewer)
	assert.Empty(t, stub.approveReq.ToFacultyID)

	w = doRequest(router, http.MethodPost, "/faculty/requests/r-1/approve", []byte(`{"toFacultyId":"F3"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "F3", stub.approveReq.ToFacultyID)

	w = doRequest(router, http.MethodPost, "/faculty/requests/done/approve", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(router, http.MethodPost, "/faculty/requests/r-2/reject", []byte(`{"note":"no cover available"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no cover available", stub.rejectReq.Note)
}

func TestChangeRequestHandlerReviewRequiresClaims(t *testing.T) {
	router := newChangeRequestRouter(&changeRequestWorkflowStub{}, nil)
	w := doRequest(router, http.MethodPost, "/faculty/requests/r-1/approve", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
