package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/models"
	"github.com/noah-isme/invigilation-api/internal/service"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
	"github.com/noah-isme/invigilation-api/pkg/response"
)

type constraintSettings interface {
	Get(ctx context.Context) (*models.ConstraintConfig, error)
	Update(ctx context.Context, req dto.UpdateConstraintsRequest, actorID string) (*models.ConstraintConfig, error)
}

// ConstraintHandler serves the scheduling constraint settings.
type ConstraintHandler struct {
	service constraintSettings
}

// NewConstraintHandler constructs the handler.
func NewConstraintHandler(svc *service.ConstraintService) *ConstraintHandler {
	return &ConstraintHandler{service: svc}
}

// Get godoc
// @Summary Current scheduling constraints
// @Tags Settings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /settings/constraints [get]
func (h *ConstraintHandler) Get(c *gin.Context) {
	cfg, err := h.service.Get(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// Update godoc
// @Summary Replace scheduling constraints
// @Tags Settings
// @Accept json
// @Produce json
// @Param payload body dto.UpdateConstraintsRequest true "Constraints"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /settings/constraints [put]
func (h *ConstraintHandler) Update(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.UpdateConstraintsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid constraints payload"))
		return
	}
	cfg, err := h.service.Update(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}
