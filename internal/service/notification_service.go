package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/invigilation-api/internal/dto"
	"github.com/noah-isme/invigilation-api/internal/models"
	"github.com/noah-isme/invigilation-api/pkg/jobs"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

// Notification results recorded by the duty notification counter.
const (
	NotificationSent   = "sent"
	NotificationFailed = "failed"
	NotificationQueued = "queued"
)

// DutyNotice is the payload delivered to one invigilator.
type DutyNotice struct {
	AllocationID  string
	Date          string
	Slot          string
	ClassroomCode string
	FacultyID     string
	FacultyName   string
	FacultyEmail  string
	Reassigned    bool
}

// Notifier delivers a duty notice.
type Notifier interface {
	Notify(ctx context.Context, notice DutyNotice) error
}

// LogNotifier records notices in the application log instead of sending
// mail.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, notice DutyNotice) error {
	n.logger.Info("duty notification",
		zap.String("allocation_id", notice.AllocationID),
		zap.String("to", notice.FacultyEmail),
		zap.String("faculty", notice.FacultyName),
		zap.String("date", notice.Date),
		zap.String("slot", notice.Slot),
		zap.String("classroom", notice.ClassroomCode),
		zap.Bool("reassigned", notice.Reassigned),
	)
	return nil
}

type assignedAllocationReader interface {
	ListAssignedByDate(ctx context.Context, date string) ([]models.AllocationView, error)
}

type noticeDispatcher interface {
	Enqueue(job jobs.Job[DutyNotice]) error
}

// NotificationService fans duty notices out to the queue.
type NotificationService struct {
	allocations assignedAllocationReader
	queue       noticeDispatcher
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewNotificationService constructs the service.
func NewNotificationService(allocations assignedAllocationReader, queue noticeDispatcher, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{allocations: allocations, queue: queue, metrics: metrics, logger: logger}
}

// NotifyDay queues one notice per assigned allocation on date. TBD rows are
// skipped.
func (s *NotificationService) NotifyDay(ctx context.Context, rawDate string) (*dto.NotifyResult, error) {
	date, err := parseDate(rawDate)
	if err != nil {
		return nil, err
	}
	items, err := s.allocations.ListAssignedByDate(ctx, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocations")
	}

	result := &dto.NotifyResult{Date: date}
	for _, item := range items {
		if item.IsTBD() {
			continue
		}
		notice := DutyNotice{
			AllocationID:  item.ID,
			Date:          item.Date,
			Slot:          item.Slot,
			ClassroomCode: item.ClassroomCode,
			FacultyID:     *item.InvigilatorID,
			FacultyName:   deref(item.InvigilatorName),
			FacultyEmail:  deref(item.InvigilatorEmail),
			Reassigned:    item.Status == models.AllocationReassigned,
		}
		if err := s.queue.Enqueue(jobs.Job[DutyNotice]{ID: item.ID, Type: "duty_notice", Payload: notice}); err != nil {
			s.logger.Sugar().Warnw("failed to enqueue duty notice", "allocation_id", item.ID, "queued", result.Queued, "error", err)
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue notifications")
		}
		s.metrics.IncNotification(NotificationQueued)
		result.Queued++
	}

	s.logger.Info("duty notifications queued", zap.String("date", date), zap.Int("queued", result.Queued))
	return result, nil
}

type notifiedMarker interface {
	MarkNotified(ctx context.Context, id string, at time.Time) error
}

// NotificationWorker delivers queued notices and stamps the allocation.
type NotificationWorker struct {
	notifier    Notifier
	allocations notifiedMarker
	cache       *CacheService
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
}

// NewNotificationWorker constructs a worker.
func NewNotificationWorker(notifier Notifier, allocations notifiedMarker, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	return &NotificationWorker{
		notifier:    notifier,
		allocations: allocations,
		cache:       cache,
		metrics:     metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Handle processes one queue job. A returned error makes the queue retry.
func (w *NotificationWorker) Handle(ctx context.Context, job jobs.Job[DutyNotice]) error {
	notice := job.Payload
	if err := w.notifier.Notify(ctx, notice); err != nil {
		w.metrics.IncNotification(NotificationFailed)
		return err
	}
	if err := w.allocations.MarkNotified(ctx, notice.AllocationID, w.now()); err != nil {
		w.metrics.IncNotification(NotificationFailed)
		return err
	}
	w.metrics.IncNotification(NotificationSent)
	_ = w.cache.Invalidate(ctx, dayCacheKey(notice.Date))
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
