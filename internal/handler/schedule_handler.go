package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/middleware"
	"github.com/noah-isme/invigilation-api/internal/models"
	"github.com/noah-isme/invigilation-api/internal/service"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
	"github.com/noah-isme/invigilation-api/pkg/response"
)

const defaultHistoryLimit = 30

type scheduleManager interface {
	Generate(ctx context.Context, date string) (*dto.GenerateResult, error)
	Regenerate(ctx context.Context, date string) (*dto.GenerateResult, error)
	ClearDay(ctx context.Context, date string) (*dto.ClearDayResult, error)
	Reassign(ctx context.Context, allocationID string, req dto.ReassignRequest) (*models.AllocationView, error)
	Day(ctx context.Context, date string) ([]models.AllocationView, bool, error)
	GetAllocation(ctx context.Context, id string) (*models.AllocationView, error)
	ExamDates(ctx context.Context) ([]string, bool, error)
	History(ctx context.Context, limit int) ([]models.DaySummary, error)
}

type dayNotifier interface {
	NotifyDay(ctx context.Context, date string) (*dto.NotifyResult, error)
}

type dayExporter interface {
	DayCSV(ctx context.Context, date string) (*service.ExportFile, error)
	DayPDF(ctx context.Context, date string) (*service.ExportFile, error)
}

// ScheduleHandler manages invigilation schedule endpoints.
type ScheduleHandler struct {
	service  scheduleManager
	notifier dayNotifier
	exporter dayExporter
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(svc *service.ScheduleService, notifier *service.NotificationService, exporter *service.ExportService) *ScheduleHandler {
	return &ScheduleHandler{service: svc, notifier: notifier, exporter: exporter}
}

// Generate godoc
// @Summary Generate allocations for a date
// @Description Allocates one invigilator per exam session. Existing rows for the date are kept; use regenerate to replace them.
// @Tags Schedule
// @Produce json
// @Param date query string true "Exam date (YYYY-MM-DD)"
// @Success 201 {object} response.CountedEnvelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /schedule/generate [post]
func (h *ScheduleHandler) Generate(c *gin.Context) {
	result, err := h.service.Generate(c.Request.Context(), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondGenerated(c, result)
}

// Regenerate godoc
// @Summary Clear and generate allocations for a date
// @Tags Schedule
// @Produce json
// @Param date query string true "Exam date (YYYY-MM-DD)"
// @Success 201 {object} response.CountedEnvelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /schedule/regenerate [post]
func (h *ScheduleHandler) Regenerate(c *gin.Context) {
	result, err := h.service.Regenerate(c.Request.Context(), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondGenerated(c, result)
}

func respondGenerated(c *gin.Context, result *dto.GenerateResult) {
	meta := map[string]interface{}{"date": result.Date}
	if result.Repaired > 0 {
		meta["repaired"] = result.Repaired
	}
	if result.Cleared > 0 {
		meta["cleared"] = result.Cleared
	}
	if len(result.SkippedClassrooms) > 0 {
		meta["skippedClassrooms"] = result.SkippedClassrooms
	}
	response.Counted(c, http.StatusCreated, response.CountedEnvelope{
		Data:       result.Allocations,
		Count:      result.Count,
		Assigned:   result.Assigned,
		Unassigned: result.Unassigned,
		Meta:       meta,
	})
}

// Day godoc
// @Summary Allocations of a date
// @Tags Schedule
// @Produce json
// @Param date query string true "Exam date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /schedule/day [get]
func (h *ScheduleHandler) Day(c *gin.Context) {
	items, cacheHit, err := h.service.Day(c.Request.Context(), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, items, nil, middleware.ExtractMeta(c))
}

// ClearDay godoc
// @Summary Delete every allocation of a date
// @Tags Schedule
// @Produce json
// @Param date query string true "Exam date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /schedule/day [delete]
func (h *ScheduleHandler) ClearDay(c *gin.Context) {
	result, err := h.service.ClearDay(c.Request.Context(), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Reassign godoc
// @Summary Move an allocation to another invigilator
// @Tags Schedule
// @Accept json
// @Produce json
// @Param id path string true "Allocation ID"
// @Param payload body dto.ReassignRequest true "Target faculty"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedule/reassign/{id} [patch]
func (h *ScheduleHandler) Reassign(c *gin.Context) {
	var req dto.ReassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reassign payload"))
		return
	}
	view, err := h.service.Reassign(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Allocation godoc
// @Summary Get one allocation
// @Tags Schedule
// @Produce json
// @Param id path string true "Allocation ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedule/allocation/{id} [get]
func (h *ScheduleHandler) Allocation(c *gin.Context) {
	view, err := h.service.GetAllocation(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// ExamDates godoc
// @Summary Distinct exam dates
// @Tags Schedule
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /schedule/exam-dates [get]
func (h *ScheduleHandler) ExamDates(c *gin.Context) {
	dates, cacheHit, err := h.service.ExamDates(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, dates, nil, middleware.ExtractMeta(c))
}

// History godoc
// @Summary Per-date allocation summary
// @Tags Schedule
// @Produce json
// @Param limit query int false "Number of dates"
// @Success 200 {object} response.Envelope
// @Router /schedule/history [get]
func (h *ScheduleHandler) History(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	items, err := h.service.History(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// NotifyDay godoc
// @Summary Queue duty notifications for a date
// @Tags Schedule
// @Produce json
// @Param date query string true "Exam date (YYYY-MM-DD)"
// @Success 202 {object} response.Envelope
// @Router /schedule/notify/day [post]
func (h *ScheduleHandler) NotifyDay(c *gin.Context) {
	result, err := h.notifier.NotifyDay(c.Request.Context(), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, result, nil)
}

// ExportCSV godoc
// @Summary Download a date's schedule as CSV
// @Tags Schedule
// @Produce text/csv
// @Param date query string true "Exam date (YYYY-MM-DD)"
// @Success 200 {file} file
// @Router /schedule/export/day.csv [get]
func (h *ScheduleHandler) ExportCSV(c *gin.Context) {
	file, err := h.exporter.DayCSV(c.Request.Context(), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.ContentType, file.Filename, file.Content)
}

// ExportPDF godoc
// @Summary Download a date's schedule as PDF
// @Tags Schedule
// @Produce application/pdf
// @Param date query string true "Exam date (YYYY-MM-DD)"
// @Success 200 {file} file
// @Router /schedule/export/day.pdf [get]
func (h *ScheduleHandler) ExportPDF(c *gin.Context) {
	file, err := h.exporter.DayPDF(c.Request.Context(), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.ContentType, file.Filename, file.Content)
}
