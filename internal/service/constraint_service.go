package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/models"
	"github.com/noah-isme/invigilation-api/internal/scheduler"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

type constraintRepository interface {
	Get(ctx context.Context) (*models.ConstraintConfig, error)
	Upsert(ctx context.Context, cfg *models.ConstraintConfig) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ConstraintServiceConfig carries the defaults served before an admin has
// saved anything.
type ConstraintServiceConfig struct {
	DefaultMaxHoursPerDay  int
	DefaultNoSameDayRepeat bool
}

// ConstraintService reads and updates the scheduling rule set.
type ConstraintService struct {
	repo      constraintRepository
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
	defaults  models.ConstraintConfig
}

// NewConstraintService constructs a ConstraintService.
func NewConstraintService(repo constraintRepository, audit auditLogger, validate *validator.Validate, logger *zap.Logger, cfg ConstraintServiceConfig) *ConstraintService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConstraintService{
		repo:      repo,
		audit:     audit,
		validator: validate,
		logger:    logger,
		defaults: models.ConstraintConfig{
			MaxHoursPerDay:  cfg.DefaultMaxHoursPerDay,
			NoSameDayRepeat: cfg.DefaultNoSameDayRepeat,
		},
	}
}

// Get returns the stored constraints, or the configured defaults when none
// have been saved.
func (s *ConstraintService) Get(ctx context.Context) (*models.ConstraintConfig, error) {
	cfg, err := s.repo.Get(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			defaults := s.defaults
			return &defaults, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load constraints")
	}
	return cfg, nil
}

// Snapshot returns the constraints for one generation run. It does not
// validate them; the caller decides when an unusable value is an error.
func (s *ConstraintService) Snapshot(ctx context.Context) (scheduler.Constraints, error) {
	cfg, err := s.Get(ctx)
	if err != nil {
		return scheduler.Constraints{}, err
	}
	return scheduler.Constraints{MaxHoursPerDay: cfg.MaxHoursPerDay, NoSameDayRepeat: cfg.NoSameDayRepeat}, nil
}

// Update replaces the constraint set. Last write wins.
func (s *ConstraintService) Update(ctx context.Context, req dto.UpdateConstraintsRequest, actorID string) (*models.ConstraintConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "maxHoursPerDay must be between 0 and 24 and noSameDayRepeat is required")
	}
	previous, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	cfg := &models.ConstraintConfig{
		MaxHoursPerDay:  *req.MaxHoursPerDay,
		NoSameDayRepeat: *req.NoSameDayRepeat,
	}
	if actorID != "" {
		cfg.UpdatedBy = &actorID
	}
	if err := s.repo.Upsert(ctx, cfg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save constraints")
	}

	s.logger.Info("constraints updated",
		zap.String("actor", actorID),
		zap.Int("max_hours_per_day", cfg.MaxHoursPerDay),
		zap.Bool("no_same_day_repeat", cfg.NoSameDayRepeat),
	)
	s.emitAudit(ctx, actorID, previous, cfg)
	return cfg, nil
}

func (s *ConstraintService) emitAudit(ctx context.Context, actorID string, before, after *models.ConstraintConfig) {
	if s.audit == nil {
		return
	}
	oldValues, _ := json.Marshal(before)
	newValues, _ := json.Marshal(after)
	entry := &models.AuditLog{
		Action:    models.AuditActionConstraintUpdate,
		Resource:  "constraints",
		OldValues: oldValues,
		NewValues: newValues,
		IPAddress: "system",
		UserAgent: "constraint-service",
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
