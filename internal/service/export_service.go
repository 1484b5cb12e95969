package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/invigilation-api/internal/models"
	"github.com/noah-isme/invigilation-api/internal/scheduler"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
	"github.com/noah-isme/invigilation-api/pkg/export"
)

// Columns of the day schedule export.
var dayExportHeaders = []string{"Date", "Slot", "Room", "Invigilator", "Email", "Department", "Designation", "Status"}

const unassignedLabel = "TBD"

type exportAllocationReader interface {
	ListViewsByDate(ctx context.Context, date string) ([]models.AllocationView, error)
	FindViewByID(ctx context.Context, id string) (*models.AllocationView, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
	RenderLetter(l export.Letter) ([]byte, error)
}

// ExportFile is a rendered document ready to stream.
type ExportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ExportService renders stored allocations as CSV and PDF documents.
type ExportService struct {
	allocations exportAllocationReader
	csv         csvRenderer
	pdf         pdfRenderer
	logger      *zap.Logger
}

// NewExportService constructs an ExportService. Nil renderers fall back to
// the defaults from pkg/export.
func NewExportService(allocations exportAllocationReader, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = &export.CSVExporter{BOM: true}
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{allocations: allocations, csv: csv, pdf: pdf, logger: logger}
}

// DayCSV renders the schedule of one date as CSV.
func (s *ExportService) DayCSV(ctx context.Context, rawDate string) (*ExportFile, error) {
	date, dataset, err := s.dayDataset(ctx, rawDate)
	if err != nil {
		return nil, err
	}
	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return &ExportFile{Filename: fmt.Sprintf("invigilation_%s.csv", date), ContentType: "text/csv; charset=utf-8", Content: payload}, nil
}

// DayPDF renders the schedule of one date as a landscape PDF table.
func (s *ExportService) DayPDF(ctx context.Context, rawDate string) (*ExportFile, error) {
	date, dataset, err := s.dayDataset(ctx, rawDate)
	if err != nil {
		return nil, err
	}
	payload, err := s.pdf.Render(dataset, "Invigilation Schedule "+date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
	}
	return &ExportFile{Filename: fmt.Sprintf("invigilation_%s.pdf", date), ContentType: "application/pdf", Content: payload}, nil
}

func (s *ExportService) dayDataset(ctx context.Context, rawDate string) (string, export.Dataset, error) {
	date, err := parseDate(rawDate)
	if err != nil {
		return "", export.Dataset{}, err
	}
	items, err := s.allocations.ListViewsByDate(ctx, date)
	if err != nil {
		return "", export.Dataset{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocations")
	}

	dataset := export.Dataset{Headers: dayExportHeaders, Rows: make([]map[string]string, 0, len(items))}
	for _, item := range items {
		row := map[string]string{
			"Date":   item.Date,
			"Slot":   item.Slot,
			"Room":   item.ClassroomCode,
			"Status": string(item.Status),
		}
		if item.IsTBD() {
			row["Invigilator"] = unassignedLabel
		} else {
			row["Invigilator"] = deref(item.InvigilatorName)
			row["Email"] = deref(item.InvigilatorEmail)
			row["Department"] = deref(item.InvigilatorDepartment)
			row["Designation"] = deref(item.InvigilatorDesignation)
		}
		dataset.Rows = append(dataset.Rows, row)
	}
	s.logger.Debug("day export prepared", zap.String("date", date), zap.Int("rows", len(dataset.Rows)))
	return date, dataset, nil
}

// DutyLetter renders the duty letter of one allocation. Only the faculty
// member holding the allocation may fetch it.
func (s *ExportService) DutyLetter(ctx context.Context, allocationID, facultyID string) (*ExportFile, error) {
	if strings.TrimSpace(facultyID) == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "account is not linked to a faculty member")
	}
	view, err := s.allocations.FindViewByID(ctx, strings.TrimSpace(allocationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "allocation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocation")
	}
	if view.IsTBD() || *view.InvigilatorID != facultyID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "allocation is not assigned to you")
	}

	payload, err := s.pdf.RenderLetter(export.Letter{
		Date:          view.Date,
		Slot:          view.Slot,
		SlotLabel:     scheduler.Slot(view.Slot).Label(),
		ClassroomCode: view.ClassroomCode,
		FacultyName:   deref(view.InvigilatorName),
		FacultyEmail:  deref(view.InvigilatorEmail),
		Department:    deref(view.InvigilatorDepartment),
		Designation:   deref(view.InvigilatorDesignation),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render duty letter")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("duty_%s_%s_%s.pdf", view.Date, view.Slot, sanitizeFilename(view.ClassroomCode)),
		ContentType: "application/pdf",
		Content:     payload,
	}, nil
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
