package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/models"
	"github.com/noah-isme/invigilation-api/internal/scheduler"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

// Roster kinds accepted by Import.
const (
	ImportFaculty    = "faculty"
	ImportClassrooms = "classrooms"
	ImportExams      = "exams"
)

const (
	formatCSV  = "csv"
	formatXLSX = "xlsx"
)

type importFacultyStore interface {
	Upsert(ctx context.Context, exec sqlx.ExtContext, f *models.Faculty) error
	Count(ctx context.Context, activeOnly bool) (int, error)
}

type importClassroomStore interface {
	Upsert(ctx context.Context, exec sqlx.ExtContext, c *models.Classroom) error
	Count(ctx context.Context) (int, error)
}

type importExamStore interface {
	Upsert(ctx context.Context, exec sqlx.ExtContext, e *models.Exam) error
	DeleteAll(ctx context.Context, exec sqlx.ExtContext) (int64, error)
	Count(ctx context.Context) (int, error)
	CountByDate(ctx context.Context, date string) (int, error)
}

// ImportOptions tunes a single upload.
type ImportOptions struct {
	// Replace deletes every stored exam before loading the file. Ignored for
	// other kinds.
	Replace bool
	ActorID string
}

// ImportServiceConfig bounds uploads.
type ImportServiceConfig struct {
	MaxFileSizeBytes int64
}

// ImportService loads faculty, classroom and exam rosters from CSV or XLSX.
type ImportService struct {
	faculty    importFacultyStore
	classrooms importClassroomStore
	exams      importExamStore
	tx         txProvider
	cache      *CacheService
	metrics    *MetricsService
	audit      auditLogger
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        ImportServiceConfig
}

// NewImportService constructs an ImportService.
func NewImportService(faculty importFacultyStore, classrooms importClassroomStore, exams importExamStore, tx txProvider, cache *CacheService, metrics *MetricsService, audit auditLogger, validate *validator.Validate, logger *zap.Logger, cfg ImportServiceConfig) *ImportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = 5 * 1024 * 1024
	}
	return &ImportService{
		faculty:    faculty,
		classrooms: classrooms,
		exams:      exams,
		tx:         tx,
		cache:      cache,
		metrics:    metrics,
		audit:      audit,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
	}
}

// importColumn lists the accepted header spellings for one field, already
// normalised by normalizeHeader.
type importColumn struct {
	field    string
	aliases  []string
	required bool
}

var importColumns = map[string][]importColumn{
	ImportFaculty: {
		{field: "id", aliases: []string{"id", "facultyid"}},
		{field: "name", aliases: []string{"name", "facultyname", "fullname"}, required: true},
		{field: "email", aliases: []string{"email", "emailid", "mail"}, required: true},
		{field: "department", aliases: []string{"department", "dept"}},
		{field: "designation", aliases: []string{"designation", "title"}},
		{field: "loginId", aliases: []string{"loginid", "login", "username"}},
	},
	ImportClassrooms: {
		{field: "code", aliases: []string{"code", "classroom", "classroomcode", "room", "roomcode"}, required: true},
		{field: "capacity", aliases: []string{"capacity", "seats"}},
	},
	ImportExams: {
		{field: "date", aliases: []string{"date", "examdate"}, required: true},
		{field: "slot", aliases: []string{"slot", "session"}, required: true},
		{field: "classrooms", aliases: []string{"classrooms", "classroomcodes", "classroom", "rooms", "room"}, required: true},
		{field: "course", aliases: []string{"course", "coursecode", "subject"}, required: true},
		{field: "headcount", aliases: []string{"expectedheadcount", "headcount", "students"}},
	},
}

// Import parses file and upserts every valid row in one transaction. Rows
// with missing or malformed fields are skipped and reported.
func (s *ImportService) Import(ctx context.Context, kind, filename string, file io.Reader, opts ImportOptions) (result *dto.ImportResult, err error) {
	columns, ok := importColumns[kind]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown upload kind "+kind)
	}

	format, err := detectFormat(filename)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxFileSizeBytes+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read upload")
	}
	if int64(len(data)) > s.cfg.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxFileSizeBytes))
	}

	rows, err := readTable(format, data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}

	index, err := mapHeader(rows[0], columns)
	if err != nil {
		return nil, err
	}

	result = &dto.ImportResult{Kind: kind, Format: format}
	dates := make(map[string]struct{})

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if kind == ImportExams && opts.Replace {
		removed, delErr := s.exams.DeleteAll(ctx, tx)
		if delErr != nil {
			err = appErrors.Wrap(delErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear exams")
			return nil, err
		}
		s.logger.Info("exam timetable replaced", zap.Int64("removed", removed))
	}

	for i, raw := range rows[1:] {
		line := i + 2
		record := make(map[string]string, len(index))
		blank := true
		for field, col := range index {
			value := ""
			if col < len(raw) {
				value = strings.TrimSpace(raw[col])
			}
			if value != "" {
				blank = false
			}
			record[field] = value
		}
		if blank {
			continue
		}
		result.Rows++

		var rowErr error
		switch kind {
		case ImportFaculty:
			rowErr = s.importFaculty(ctx, tx, record)
		case ImportClassrooms:
			rowErr = s.importClassroom(ctx, tx, record)
		case ImportExams:
			var date string
			date, rowErr = s.importExam(ctx, tx, record)
			if rowErr == nil {
				dates[date] = struct{}{}
			}
		}

		var storeErr *storeError
		if errors.As(rowErr, &storeErr) {
			err = appErrors.Wrap(storeErr.err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store "+kind)
			return nil, err
		}
		if rowErr != nil {
			result.Skipped++
			result.Errors = append(result.Errors, dto.RowError{Row: line, Message: rowErr.Error()})
			continue
		}
		result.Imported++
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit import")
		return nil, err
	}

	for d := range dates {
		result.Dates = append(result.Dates, d)
	}
	sort.Strings(result.Dates)

	s.metrics.AddImportedRows(kind, result.Imported, result.Skipped)
	// Day views embed faculty details and exam dates come from the exam
	// roster, so every import makes both stale.
	_ = s.cache.Invalidate(ctx, cacheKeyExamDates)
	_ = s.cache.Invalidate(ctx, cachePatternAllDays)

	s.logger.Info("roster imported",
		zap.String("kind", kind),
		zap.String("format", format),
		zap.Int("rows", result.Rows),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
	)
	s.emitAudit(ctx, result, opts)
	return result, nil
}

// Status reports roster counts, and the exam count for date when given.
func (s *ImportService) Status(ctx context.Context, rawDate string) (*dto.UploadStatus, error) {
	facultyCount, err := s.faculty.Count(ctx, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count faculty")
	}
	classroomCount, err := s.classrooms.Count(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count classrooms")
	}
	examCount, err := s.exams.Count(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count exams")
	}

	status := &dto.UploadStatus{
		Faculty:    facultyCount,
		Classrooms: classroomCount,
		Exams:      examCount,
		Uploaded: map[string]bool{
			ImportFaculty:    facultyCount > 0,
			ImportClassrooms: classroomCount > 0,
			ImportExams:      examCount > 0,
		},
	}

	if strings.TrimSpace(rawDate) != "" {
		date, err := scheduler.ParseDate(rawDate)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		n, err := s.exams.CountByDate(ctx, date)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count exams for date")
		}
		status.Date = date
		status.ExamsForDate = &n
	}
	return status, nil
}

// storeError marks a persistence failure, which aborts the whole import
// instead of skipping the row.
type storeError struct{ err error }

func (e *storeError) Error() string { return e.err.Error() }

func (s *ImportService) importFaculty(ctx context.Context, exec sqlx.ExtContext, rec map[string]string) error {
	if missing := missingFields(rec, "name", "email"); missing != "" {
		return errors.New("missing " + missing)
	}
	email := strings.ToLower(rec["email"])
	if err := s.validator.Var(email, "email"); err != nil {
		return fmt.Errorf("invalid email %q", rec["email"])
	}
	f := &models.Faculty{
		ID:          rec["id"],
		Name:        rec["name"],
		Email:       email,
		Department:  rec["department"],
		Designation: rec["designation"],
		Active:      true,
	}
	if login := rec["loginId"]; login != "" {
		f.LoginID = &login
	}
	if err := s.faculty.Upsert(ctx, exec, f); err != nil {
		return &storeError{err: err}
	}
	return nil
}

func (s *ImportService) importClassroom(ctx context.Context, exec sqlx.ExtContext, rec map[string]string) error {
	code := scheduler.NormalizeClassroomCode(rec["code"])
	if code == "" {
		return errors.New("missing code")
	}
	c := &models.Classroom{Code: code, Active: true}
	if raw := rec["capacity"]; raw != "" {
		capacity, err := strconv.Atoi(raw)
		if err != nil || capacity < 0 {
			return fmt.Errorf("invalid capacity %q", raw)
		}
		c.Capacity = &capacity
	}
	if err := s.classrooms.Upsert(ctx, exec, c); err != nil {
		return &storeError{err: err}
	}
	return nil
}

func (s *ImportService) importExam(ctx context.Context, exec sqlx.ExtContext, rec map[string]string) (string, error) {
	if missing := missingFields(rec, "date", "slot", "classrooms", "course"); missing != "" {
		return "", errors.New("missing " + missing)
	}
	date, err := scheduler.ParseDate(rec["date"])
	if err != nil {
		return "", err
	}
	slot, err := scheduler.ParseSlot(rec["slot"])
	if err != nil {
		return "", err
	}
	codes := splitClassroomCodes(rec["classrooms"])
	if len(codes) == 0 {
		return "", errors.New("missing classrooms")
	}
	e := &models.Exam{
		Date:           date,
		Slot:           string(slot),
		ClassroomCodes: pq.StringArray(codes),
		Course:         rec["course"],
	}
	if raw := rec["headcount"]; raw != "" {
		headcount, err := strconv.Atoi(raw)
		if err != nil || headcount < 0 {
			return "", fmt.Errorf("invalid expected headcount %q", raw)
		}
		e.ExpectedHeadcount = &headcount
	}
	if err := s.exams.Upsert(ctx, exec, e); err != nil {
		return "", &storeError{err: err}
	}
	return date, nil
}

func (s *ImportService) emitAudit(ctx context.Context, result *dto.ImportResult, opts ImportOptions) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"kind":     result.Kind,
		"imported": result.Imported,
		"skipped":  result.Skipped,
		"replace":  opts.Replace,
	})
	entry := &models.AuditLog{
		Action:    models.AuditActionImport,
		Resource:  result.Kind,
		NewValues: payload,
		IPAddress: "system",
		UserAgent: "import-service",
	}
	if opts.ActorID != "" {
		entry.UserID = &opts.ActorID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func detectFormat(filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return formatCSV, nil
	case ".xlsx":
		return formatXLSX, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "only .csv and .xlsx files are supported")
	}
}

func readTable(format string, data []byte) ([][]string, error) {
	switch format {
	case formatXLSX:
		book, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid xlsx file")
		}
		defer book.Close()
		sheets := book.GetSheetList()
		if len(sheets) == 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "xlsx file has no sheets")
		}
		rows, err := book.GetRows(sheets[0])
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read sheet "+sheets[0])
		}
		return rows, nil
	default:
		reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\ufeff"))))
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true
		rows, err := reader.ReadAll()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid csv file")
		}
		return rows, nil
	}
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "_", "", "-", "", ".", "").Replace(h)
}

// mapHeader resolves each field to its column index. The first matching
// header wins.
func mapHeader(header []string, columns []importColumn) (map[string]int, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, seen := positions[key]; !seen && key != "" {
			positions[key] = i
		}
	}

	index := make(map[string]int, len(columns))
	var missing []string
	for _, col := range columns {
		found := false
		for _, alias := range col.aliases {
			if pos, ok := positions[alias]; ok {
				index[col.field] = pos
				found = true
				break
			}
		}
		if !found && col.required {
			missing = append(missing, col.field)
		}
	}
	if len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "missing required column(s): "+strings.Join(missing, ", "))
	}
	return index, nil
}

func missingFields(rec map[string]string, fields ...string) string {
	var missing []string
	for _, f := range fields {
		if rec[f] == "" {
			missing = append(missing, f)
		}
	}
	return strings.Join(missing, ", ")
}

func splitClassroomCodes(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '|'
	})
	seen := make(map[string]struct{}, len(parts))
	codes := make([]string, 0, len(parts))
	for _, p := range parts {
		code := scheduler.NormalizeClassroomCode(p)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}
