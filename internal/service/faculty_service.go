package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/models"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

const facultySearchLimit = 20

type facultyDirectory interface {
	Search(ctx context.Context, filter models.FacultyFilter) ([]models.Faculty, error)
	FindByID(ctx context.Context, id string) (*models.Faculty, error)
	FindByEmail(ctx context.Context, email string) (*models.Faculty, error)
	FindByLoginID(ctx context.Context, loginID string) (*models.Faculty, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, f *models.Faculty) error
	Deactivate(ctx context.Context, id string) error
}

// FacultyService manages the invigilator directory.
type FacultyService struct {
	repo      facultyDirectory
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFacultyService constructs a FacultyService.
func NewFacultyService(repo facultyDirectory, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *FacultyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FacultyService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// Search matches active faculty by name, email, login id or department.
func (s *FacultyService) Search(ctx context.Context, q string) ([]models.Faculty, error) {
	active := true
	items, err := s.repo.Search(ctx, models.FacultyFilter{Search: strings.TrimSpace(q), Active: &active, Limit: facultySearchLimit})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search faculty")
	}
	if items == nil {
		items = []models.Faculty{}
	}
	return items, nil
}

// Add registers a faculty member. Emails are unique case-insensitively.
func (s *FacultyService) Add(ctx context.Context, req dto.AddFacultyRequest, actorID string) (*models.Faculty, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.LoginID = strings.TrimSpace(req.LoginID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "name and a valid email are required")
	}

	exists, err := s.repo.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check faculty email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "faculty email already registered")
	}

	faculty := &models.Faculty{
		Name:        req.Name,
		Email:       req.Email,
		Department:  strings.TrimSpace(req.Department),
		Designation: strings.TrimSpace(req.Designation),
		Active:      true,
	}
	if req.LoginID != "" {
		faculty.LoginID = &req.LoginID
	}
	if err := s.repo.Create(ctx, faculty); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create faculty")
	}

	s.logger.Info("faculty added", zap.String("faculty_id", faculty.ID), zap.String("actor", actorID))
	s.emitAudit(ctx, models.AuditActionFacultyAdd, faculty, actorID)
	return faculty, nil
}

// Deactivate soft-removes a faculty member found by id, email or login id,
// tried in that order. Inactive faculty are never allocated.
func (s *FacultyService) Deactivate(ctx context.Context, req dto.RemoveFacultyRequest, actorID string) (*models.Faculty, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid faculty identifier")
	}

	var (
		faculty *models.Faculty
		err     error
	)
	switch {
	case strings.TrimSpace(req.ID) != "":
		faculty, err = s.repo.FindByID(ctx, strings.TrimSpace(req.ID))
	case strings.TrimSpace(req.Email) != "":
		faculty, err = s.repo.FindByEmail(ctx, strings.TrimSpace(req.Email))
	case strings.TrimSpace(req.LoginID) != "":
		faculty, err = s.repo.FindByLoginID(ctx, strings.TrimSpace(req.LoginID))
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "one of id, email or loginId is required")
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "faculty not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
	}

	if faculty.Active {
		if err := s.repo.Deactivate(ctx, faculty.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "faculty not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate faculty")
		}
		faculty.Active = false
		s.logger.Info("faculty deactivated", zap.String("faculty_id", faculty.ID), zap.String("actor", actorID))
		s.emitAudit(ctx, models.AuditActionFacultyRemove, faculty, actorID)
	}
	return faculty, nil
}

func (s *FacultyService) emitAudit(ctx context.Context, action string, faculty *models.Faculty, actorID string) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(faculty)
	entry := &models.AuditLog{
		Action:     action,
		Resource:   "faculty",
		ResourceID: &faculty.ID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "faculty-service",
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
