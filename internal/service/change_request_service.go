package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/models"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

type changeRequestStore interface {
	Create(ctx context.Context, req *models.ChangeRequest) error
	FindByID(ctx context.Context, id string) (*models.ChangeRequest, error)
	ExistsPending(ctx context.Context, facultyID, allocationID string) (bool, error)
	ListByFaculty(ctx context.Context, facultyID string) ([]models.ChangeRequestView, error)
	List(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequestView, int, error)
	Review(ctx context.Context, req *models.ChangeRequest) error
	ListDangling(ctx context.Context) ([]models.ChangeRequestView, error)
}

type requestAllocationReader interface {
	FindByID(ctx context.Context, id string) (*models.Allocation, error)
}

type requestFacultyReader interface {
	FindByID(ctx context.Context, id string) (*models.Faculty, error)
}

// ChangeRequestService runs the faculty change request workflow. Approval
// records the decision only; moving the allocation is a separate reassign.
type ChangeRequestService struct {
	repo        changeRequestStore
	allocations requestAllocationReader
	faculty     requestFacultyReader
	audit       auditLogger
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewChangeRequestService constructs the service.
func NewChangeRequestService(repo changeRequestStore, allocations requestAllocationReader, faculty requestFacultyReader, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ChangeRequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeRequestService{
		repo:        repo,
		allocations: allocations,
		faculty:     faculty,
		audit:       audit,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// Submit files a pending request against one of the actor's allocations.
func (s *ChangeRequestService) Submit(ctx context.Context, req dto.SubmitChangeRequest, actor *models.JWTClaims) (*models.ChangeRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.FacultyID == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "account is not linked to a faculty member")
	}
	req.AllocationID = strings.TrimSpace(req.AllocationID)
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "allocationId and a reason of 3 to 500 characters are required")
	}

	allocation, err := s.allocations.FindByID(ctx, req.AllocationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "allocation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocation")
	}
	if allocation.IsTBD() || *allocation.InvigilatorID != actor.FacultyID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "allocation is not assigned to you")
	}

	exists, err := s.repo.ExistsPending(ctx, actor.FacultyID, allocation.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pending requests")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a pending request already exists for this allocation")
	}

	kind := req.Type
	if kind == "" {
		kind = models.ChangeRequestTypeChange
	}
	request := &models.ChangeRequest{
		FacultyID:    actor.FacultyID,
		AllocationID: allocation.ID,
		Type:         kind,
		Reason:       req.Reason,
		Status:       models.RequestPending,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create change request")
	}
	s.logger.Info("change request submitted",
		zap.String("request_id", request.ID),
		zap.String("faculty_id", request.FacultyID),
		zap.String("allocation_id", request.AllocationID),
	)
	return request, nil
}

// ListMine returns the actor's own requests.
func (s *ChangeRequestService) ListMine(ctx context.Context, actor *models.JWTClaims) ([]models.ChangeRequestView, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.FacultyID == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "account is not linked to a faculty member")
	}
	items, err := s.repo.ListByFaculty(ctx, actor.FacultyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list change requests")
	}
	return items, nil
}

// ListByStatus returns one page of requests in status, pending by default.
func (s *ChangeRequestService) ListByStatus(ctx context.Context, status string, page, pageSize int) ([]models.ChangeRequestView, *models.Pagination, error) {
	filter := models.ChangeRequestFilter{Status: models.RequestPending, Page: page, PageSize: pageSize}
	switch models.ChangeRequestStatus(strings.ToLower(strings.TrimSpace(status))) {
	case "", models.RequestPending:
	case models.RequestApproved:
		filter.Status = models.RequestApproved
	case models.RequestRejected:
		filter.Status = models.RequestRejected
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "status must be pending, approved or rejected")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 50
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list change requests")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Approve marks a pending request approved. The optional replacement is
// recorded for the reviewer's follow-up reassign. A request whose allocation
// was removed by a clear or regenerate can only be rejected.
func (s *ChangeRequestService) Approve(ctx context.Context, id string, req dto.ApproveChangeRequest, reviewerID string) (*models.ChangeRequest, error) {
	request, err := s.loadPending(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.allocations.FindByID(ctx, request.AllocationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "allocation no longer exists, reject the request instead")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocation")
	}
	if target := strings.TrimSpace(req.ToFacultyID); target != "" {
		faculty, err := s.faculty.FindByID(ctx, target)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "faculty not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
		}
		if !faculty.Active {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "faculty not found")
		}
		request.ReplacementFacultyID = &target
	}
	request.Status = models.RequestApproved
	return s.review(ctx, request, reviewerID, models.AuditActionRequestApprove)
}

// Reject marks a pending request rejected with an optional note. Existing
// clients only ever approve; this transition is provisional until the
// decline workflow is agreed with the exam cell.
func (s *ChangeRequestService) Reject(ctx context.Context, id string, req dto.RejectChangeRequest, reviewerID string) (*models.ChangeRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "note must be at most 500 characters")
	}
	request, err := s.loadPending(ctx, id)
	if err != nil {
		return nil, err
	}
	if note := strings.TrimSpace(req.Note); note != "" {
		request.ReviewNote = &note
	}
	request.Status = models.RequestRejected
	return s.review(ctx, request, reviewerID, models.AuditActionRequestReject)
}

// Dangling lists approved requests whose allocation still names the
// requester. Requests whose allocation was since cleared are not reported.
func (s *ChangeRequestService) Dangling(ctx context.Context) ([]models.ChangeRequestView, error) {
	items, err := s.repo.ListDangling(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list dangling requests")
	}
	return items, nil
}

// CheckDangling publishes the dangling count and logs each request id.
func (s *ChangeRequestService) CheckDangling(ctx context.Context) (int, error) {
	items, err := s.Dangling(ctx)
	if err != nil {
		return 0, err
	}
	s.metrics.SetDanglingRequests(len(items))
	for _, item := range items {
		s.logger.Warn("approved change request not applied",
			zap.String("request_id", item.ID),
			zap.String("faculty_id", item.FacultyID),
			zap.String("allocation_id", item.AllocationID),
			zap.String("date", deref(item.AllocationDate)),
			zap.String("slot", deref(item.AllocationSlot)),
		)
	}
	return len(items), nil
}

// StartDanglingMonitor runs CheckDangling every interval until ctx is done.
func (s *ChangeRequestService) StartDanglingMonitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.CheckDangling(ctx); err != nil {
					s.logger.Warn("dangling request check failed", zap.Error(err))
				}
			}
		}
	}()
}

func (s *ChangeRequestService) loadPending(ctx context.Context, id string) (*models.ChangeRequest, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "change request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change request")
	}
	if request.Status != models.RequestPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "change request is already "+string(request.Status))
	}
	return request, nil
}

func (s *ChangeRequestService) review(ctx context.Context, request *models.ChangeRequest, reviewerID, action string) (*models.ChangeRequest, error) {
	if reviewerID != "" {
		request.ReviewedBy = &reviewerID
	}
	if err := s.repo.Review(ctx, request); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "change request was reviewed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review change request")
	}

	s.logger.Info("change request reviewed",
		zap.String("request_id", request.ID),
		zap.String("status", string(request.Status)),
		zap.String("reviewer", reviewerID),
	)
	s.emitAudit(ctx, request, reviewerID, action)
	return request, nil
}

func (s *ChangeRequestService) emitAudit(ctx context.Context, request *models.ChangeRequest, reviewerID, action string) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(request)
	entry := &models.AuditLog{
		Action:     action,
		Resource:   "change_request",
		ResourceID: &request.ID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "change-request-service",
	}
	if reviewerID != "" {
		entry.UserID = &reviewerID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
