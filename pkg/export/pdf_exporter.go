package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

const pageWidth = 277.0 // A4 landscape minus margins

// PDFExporter renders day schedules and duty letters.
type PDFExporter struct {
	now func() time.Time
}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{now: time.Now}
}

// Render lays the dataset out as a landscape table under title.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	colWidth := pageWidth / float64(len(data.Headers))
	header := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for _, h := range data.Headers {
			pdf.CellFormat(colWidth, 8, tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	}
	pdf.SetHeaderFunc(func() {
		if title != "" {
			pdf.SetFont("Arial", "B", 13)
			pdf.CellFormat(0, 9, tr(title), "", 1, "C", false, 0, "")
			pdf.Ln(2)
		}
		header()
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-10)
		pdf.SetFont("Arial", "I", 7)
		pdf.CellFormat(0, 5, fmt.Sprintf("Generated %s  |  page %d", e.now().UTC().Format(time.RFC3339), pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AddPage()

	for _, row := range data.Rows {
		for _, h := range data.Headers {
			pdf.CellFormat(colWidth, 7, tr(row[h]), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	return output(pdf)
}

// Letter is the content of an individual invigilation duty letter.
type Letter struct {
	Date          string
	Slot          string
	SlotLabel     string
	ClassroomCode string
	FacultyName   string
	FacultyEmail  string
	Department    string
	Designation   string
	ReportBefore  time.Duration
}

// RenderLetter produces a one-page duty letter addressed to the invigilator.
func (e *PDFExporter) RenderLetter(l Letter) ([]byte, error) {
	if l.Date == "" || l.ClassroomCode == "" {
		return nil, fmt.Errorf("letter requires date and classroom")
	}
	if l.ReportBefore <= 0 {
		l.ReportBefore = 15 * time.Minute
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "Invigilation Duty Letter", "", 1, "C", false, 0, "")
	pdf.Ln(10)

	slot := l.Slot
	if l.SlotLabel != "" {
		slot = fmt.Sprintf("%s (%s)", l.Slot, l.SlotLabel)
	}
	faculty := l.FacultyName
	if l.FacultyEmail != "" {
		faculty = fmt.Sprintf("%s (%s)", l.FacultyName, l.FacultyEmail)
	}

	pdf.SetFont("Arial", "", 12)
	lines := [][2]string{
		{"Date", l.Date},
		{"Slot", slot},
		{"Room", l.ClassroomCode},
		{"Faculty", faculty},
	}
	if l.Department != "" {
		lines = append(lines, [2]string{"Department", l.Department})
	}
	if l.Designation != "" {
		lines = append(lines, [2]string{"Designation", l.Designation})
	}
	for _, line := range lines {
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(35, 8, line[0]+":", "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 12)
		pdf.CellFormat(0, 8, tr(line[1]), "", 1, "", false, 0, "")
	}

	pdf.Ln(8)
	pdf.MultiCell(0, 6, fmt.Sprintf("Please report %d minutes before the exam start time. This is an auto-generated letter.", int(l.ReportBefore.Minutes())), "", "", false)
	pdf.Ln(4)
	pdf.SetFont("Arial", "I", 9)
	pdf.CellFormat(0, 6, "Issued "+e.now().UTC().Format("2006-01-02 15:04 MST"), "", 1, "", false, 0, "")

	return output(pdf)
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
