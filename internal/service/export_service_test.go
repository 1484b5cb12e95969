package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/invigilation-api/internal/models"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
	"github.com/noah-isme/invigilation-api/pkg/export"
)

type exportReaderStub struct {
	views   []models.AllocationView
	listErr error
}

func (s *exportReaderStub) ListViewsByDate(_ context.Context, date string) ([]models.AllocationView, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []models.AllocationView
	for _, v := range s.views {
		if v.Date == date {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *exportReaderStub) FindViewByID(_ context.Context, id string) (*models.AllocationView, error) {
	for _, v := range s.views {
		if v.ID == id {
			copied := v
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

type letterRecorder struct {
	*export.PDFExporter
	letters []export.Letter
}

func (r *letterRecorder) RenderLetter(l export.Letter) ([]byte, error) {
	r.letters = append(r.letters, l)
	return r.PDFExporter.RenderLetter(l)
}

func exportFixtureViews() []models.AllocationView {
	return []models.AllocationView{
		{
			Allocation:             models.Allocation{ID: "a1", Date: "2025-04-10", Slot: "FN", ClassroomCode: "A 101", InvigilatorID: strPtr("F1"), Status: models.AllocationNotified},
			InvigilatorName:        strPtr("Asha Menon"),
			InvigilatorEmail:       strPtr("asha@example.edu"),
			InvigilatorDepartment:  strPtr("Physics"),
			InvigilatorDesignation: strPtr("Professor"),
		},
		{Allocation: models.Allocation{ID: "a2", Date: "2025-04-10", Slot: "AN", ClassroomCode: "A-102", Status: models.AllocationScheduled}},
	}
}

func TestExportServiceDayCSV(t *testing.T) {
	svc := NewExportService(&exportReaderStub{views: exportFixtureViews()}, export.NewCSVExporter(), nil, nil)

	file, err := svc.DayCSV(context.Background(), "2025-04-10")
	require.NoError(t, err)
	assert.Equal(t, "invigilation_2025-04-10.csv", file.Filename)
	assert.Contains(t, file.ContentType, "text/csv")

	records, err := csv.NewReader(bytes.NewReader(file.Content)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Date", "Slot", "Room", "Invigilator", "Email", "Department", "Designation", "Status"}, records[0])
	assert.Equal(t, []string{"2025-04-10", "FN", "A 101", "Asha Menon", "asha@example.edu", "Physics", "Professor", "notified"}, records[1])
	assert.Equal(t, []string{"2025-04-10", "AN", "A-102", "TBD", "", "", "", "scheduled"}, records[2])
}

func TestExportServiceDayCSVEmptyDay(t *testing.T) {
	svc := NewExportService(&exportReaderStub{}, export.NewCSVExporter(), nil, nil)

	file, err := svc.DayCSV(context.Background(), "2025-05-01")
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(file.Content)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestExportServiceDayPDF(t *testing.T) {
	svc := NewExportService(&exportReaderStub{views: exportFixtureViews()}, nil, nil, nil)

	file, err := svc.DayPDF(context.Background(), "2025-04-10")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Content, []byte("%PDF")))
}

func TestExportServiceDayErrors(t *testing.T) {
	svc := NewExportService(&exportReaderStub{listErr: errors.New("db down")}, nil, nil, nil)

	_, err := svc.DayCSV(context.Background(), "2025-13-01")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.DayPDF(context.Background(), "2025-04-10")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestExportServiceDutyLetter(t *testing.T) {
	pdf := &letterRecorder{PDFExporter: export.NewPDFExporter()}
	svc := NewExportService(&exportReaderStub{views: exportFixtureViews()}, nil, pdf, nil)

	file, err := svc.DutyLetter(context.Background(), "a1", "F1")
	require.NoError(t, err)
	assert.Equal(t, "duty_2025-04-10_FN_A_101.pdf", file.Filename)
	assert.True(t, bytes.HasPrefix(file.Content, []byte("%PDF")))
	require.Len(t, pdf.letters, 1)
	assert.Equal(t, "Forenoon", pdf.letters[0].SlotLabel)
	assert.Equal(t, "Physics", pdf.letters[0].Department)

	cases := []struct {
		name      string
		id        string
		facultyID string
		code      string
	}{
		{name: "not owner", id: "a1", facultyID: "F2", code: appErrors.ErrForbidden.Code},
		{name: "unassigned", id: "a2", facultyID: "F1", code: appErrors.ErrForbidden.Code},
		{name: "unknown allocation", id: "a404", facultyID: "F1", code: appErrors.ErrNotFound.Code},
		{name: "unlinked account", id: "a1", facultyID: "", code: appErrors.ErrForbidden.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.DutyLetter(context.Background(), tc.id, tc.facultyID)
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
		})
	}
}
