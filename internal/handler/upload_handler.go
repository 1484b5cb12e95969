package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/service"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
	"github.com/noah-isme/invigilation-api/pkg/response"
)

type rosterImporter interface {
	Import(ctx context.Context, kind, filename string, file io.Reader, opts service.ImportOptions) (*dto.ImportResult, error)
	Status(ctx context.Context, date string) (*dto.UploadStatus, error)
}

// UploadHandler accepts roster files.
type UploadHandler struct {
	service rosterImporter
}

// NewUploadHandler constructs the handler.
func NewUploadHandler(svc *service.ImportService) *UploadHandler {
	return &UploadHandler{service: svc}
}

// Faculty godoc
// @Summary Upload the faculty roster
// @Tags Upload
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV or XLSX file"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /upload/faculty [post]
func (h *UploadHandler) Faculty(c *gin.Context) {
	h.upload(c, service.ImportFaculty)
}

// Classrooms godoc
// @Summary Upload the classroom roster
// @Tags Upload
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV or XLSX file"
// @Success 200 {object} response.Envelope
// @Router /upload/classrooms [post]
func (h *UploadHandler) Classrooms(c *gin.Context) {
	h.upload(c, service.ImportClassrooms)
}

// Exams godoc
// @Summary Upload the exam timetable
// @Tags Upload
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV or XLSX file"
// @Param replace query bool false "Remove stored exams first"
// @Success 200 {object} response.Envelope
// @Router /upload/exams [post]
func (h *UploadHandler) Exams(c *gin.Context) {
	h.upload(c, service.ImportExams)
}

func (h *UploadHandler) upload(c *gin.Context, kind string) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	replace, _ := strconv.ParseBool(c.DefaultQuery("replace", "false"))
	result, err := h.service.Import(c.Request.Context(), kind, fileHeader.Filename, src, service.ImportOptions{
		Replace: replace,
		ActorID: claims.UserID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Status godoc
// @Summary Which rosters are uploaded
// @Tags Upload
// @Produce json
// @Param date query string false "Also count exams on this date"
// @Success 200 {object} response.Envelope
// @Router /upload/status [get]
func (h *UploadHandler) Status(c *gin.Context) {
	status, err := h.service.Status(c.Request.Context(), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}
