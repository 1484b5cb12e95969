package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/invigilation-api/internal/dto"
	internalmiddleware "github.com/noah-isme/invigilation-api/internal/middleware"
	"github.com/noah-isme/invigilation-api/internal/models"
	"github.com/noah-isme/invigilation-api/internal/service"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
	"github.com/noah-isme/invigilation-api/pkg/response"
)

type changeRequestWorkflow interface {
	Submit(ctx context.Context, req dto.SubmitChangeRequest, actor *models.JWTClaims) (*models.ChangeRequest, error)
	ListMine(ctx context.Context, actor *models.JWTClaims) ([]models.ChangeRequestView, error)
	ListByStatus(ctx context.Context, status string, page, pageSize int) ([]models.ChangeRequestView, *models.Pagination, error)
	Approve(ctx context.Context, id string, req dto.ApproveChangeRequest, reviewerID string) (*models.ChangeRequest, error)
	Reject(ctx context.Context, id string, req dto.RejectChangeRequest, reviewerID string) (*models.ChangeRequest, error)
	Dangling(ctx context.Context) ([]models.ChangeRequestView, error)
}

// ChangeRequestHandler exposes the faculty change request workflow.
type ChangeRequestHandler struct {
	service changeRequestWorkflow
}

// NewChangeRequestHandler constructs the handler.
func NewChangeRequestHandler(svc *service.ChangeRequestService) *ChangeRequestHandler {
	return &ChangeRequestHandler{service: svc}
}

// Submit godoc
// @Summary Ask for a change to one of my allocations
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.SubmitChangeRequest true "Request"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /faculty/requests [post]
func (h *ChangeRequestHandler) Submit(c *gin.Context) {
	var req dto.SubmitChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request payload"))
		return
	}
	created, err := h.service.Submit(c.Request.Context(), req, internalmiddleware.CurrentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Mine godoc
// @Summary My change requests
// @Tags Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /faculty/requests [get]
func (h *ChangeRequestHandler) Mine(c *gin.Context) {
	items, err := h.service.ListMine(c.Request.Context(), internalmiddleware.CurrentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// List godoc
// @Summary Change requests by status
// @Tags Requests
// @Produce json
// @Param status query string false "pending, approved or rejected" default(pending)
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /faculty/admin/requests [get]
func (h *ChangeRequestHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	items, pagination, err := h.service.ListByStatus(c.Request.Context(), c.Query("status"), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Dangling godoc
// @Summary Approved requests whose allocation was not moved
// @Tags Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /faculty/admin/requests/dangling [get]
func (h *ChangeRequestHandler) Dangling(c *gin.Context) {
	items, err := h.service.Dangling(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Approve godoc
// @Summary Approve a pending change request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ApproveChangeRequest false "Optional replacement faculty"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /faculty/requests/{id}/approve [post]
func (h *ChangeRequestHandler) Approve(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.ApproveChangeRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	updated, err := h.service.Approve(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// Reject godoc
// @Summary Reject a pending change request
// @Description Provisional: the decline workflow is not final.
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.RejectChangeRequest false "Optional note"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /faculty/requests/{id}/reject [post]
func (h *ChangeRequestHandler) Reject(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.RejectChangeRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	updated, err := h.service.Reject(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// bindOptionalJSON decodes the body when one was sent.
func bindOptionalJSON(c *gin.Context, dest interface{}) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dest); err != nil && !errors.Is(err, io.EOF) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request payload")
	}
	return nil
}
