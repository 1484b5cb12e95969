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

type facultyDirectory interface {
	Search(ctx context.Context, q string) ([]models.Faculty, error)
	Add(ctx context.Context, req dto.AddFacultyRequest, actorID string) (*models.Faculty, error)
	Deactivate(ctx context.Context, req dto.RemoveFacultyRequest, actorID string) (*models.Faculty, error)
}

type facultyAllocations interface {
	MyAllocations(ctx context.Context, facultyID string) ([]models.AllocationView, error)
}

type dutyLetters interface {
	DutyLetter(ctx context.Context, allocationID, facultyID string) (*service.ExportFile, error)
}

// FacultyHandler serves the faculty directory and the faculty self-service
// views.
type FacultyHandler struct {
	directory   facultyDirectory
	allocations facultyAllocations
	letters     dutyLetters
}

// NewFacultyHandler constructs the handler.
func NewFacultyHandler(directory *service.FacultyService, schedule *service.ScheduleService, exporter *service.ExportService) *FacultyHandler {
	return &FacultyHandler{directory: directory, allocations: schedule, letters: exporter}
}

// Search godoc
// @Summary Search active faculty
// @Tags Faculty
// @Produce json
// @Param q query string false "Name, email, login id or department"
// @Success 200 {object} response.Envelope
// @Router /faculty/search [get]
func (h *FacultyHandler) Search(c *gin.Context) {
	items, err := h.directory.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Add godoc
// @Summary Add a faculty member
// @Tags Faculty
// @Accept json
// @Produce json
// @Param payload body dto.AddFacultyRequest true "Faculty"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /faculty/admin/add [post]
func (h *FacultyHandler) Add(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.AddFacultyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid faculty payload"))
		return
	}
	created, err := h.directory.Add(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Remove godoc
// @Summary Deactivate a faculty member
// @Description Soft removal by id, email or login id. Inactive faculty are never allocated.
// @Tags Faculty
// @Accept json
// @Produce json
// @Param payload body dto.RemoveFacultyRequest true "Identifier"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /faculty/admin/remove [post]
func (h *FacultyHandler) Remove(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.RemoveFacultyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid faculty payload"))
		return
	}
	faculty, err := h.directory.Deactivate(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, faculty, nil)
}

// MyAllocations godoc
// @Summary My invigilation duties
// @Tags Faculty
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /faculty/me/allocations [get]
func (h *FacultyHandler) MyAllocations(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	items, err := h.allocations.MyAllocations(c.Request.Context(), claims.FacultyID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Letter godoc
// @Summary Download the duty letter of one of my allocations
// @Tags Faculty
// @Produce application/pdf
// @Param id path string true "Allocation ID"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /faculty/me/allocations/{id}/letter.pdf [get]
func (h *FacultyHandler) Letter(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	file, err := h.letters.DutyLetter(c.Request.Context(), c.Param("id"), claims.FacultyID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.ContentType, file.Filename, file.Content)
}
