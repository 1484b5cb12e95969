package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/invigilation-api/internal/models"
	"github.com/noah-isme/invigilation-api/pkg/jobs"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

type assignedReaderStub struct {
	items []models.AllocationView
}

func (s *assignedReaderStub) ListAssignedByDate(_ context.Context, date string) ([]models.AllocationView, error) {
	var out []models.AllocationView
	for _, item := range s.items {
		if item.Date == date {
			out = append(out, item)
		}
	}
	return out, nil
}

type dispatcherStub struct {
	jobs []jobs.Job[DutyNotice]
	err  error
}

func (d *dispatcherStub) Enqueue(job jobs.Job[DutyNotice]) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

type notifierStub struct {
	mu       sync.Mutex
	failures int
	sent     []DutyNotice
}

func (n *notifierStub) Notify(_ context.Context, notice DutyNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failures > 0 {
		n.failures--
		return errors.New("smtp unavailable")
	}
	n.sent = append(n.sent, notice)
	return nil
}

func (n *notifierStub) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type notifiedMarkerStub struct {
	mu     sync.Mutex
	marked map[string]time.Time
}

func (m *notifiedMarkerStub) MarkNotified(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.marked == nil {
		m.marked = map[string]time.Time{}
	}
	m.marked[id] = at
	return nil
}

func (m *notifiedMarkerStub) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.marked[id]
	return ok
}

func notificationFixtureViews() []models.AllocationView {
	return []models.AllocationView{
		{Allocation: models.Allocation{ID: "a1", Date: "2025-04-10", Slot: "FN", ClassroomCode: "A-101", InvigilatorID: strPtr("F1"), Status: models.AllocationScheduled}, InvigilatorName: strPtr("Asha"), InvigilatorEmail: strPtr("asha@example.edu")},
		{Allocation: models.Allocation{ID: "a2", Date: "2025-04-10", Slot: "FN", ClassroomCode: "A-102", InvigilatorID: strPtr("F2"), Status: models.AllocationReassigned}, InvigilatorName: strPtr("Bala")},
		{Allocation: models.Allocation{ID: "a3", Date: "2025-04-11", Slot: "AN", ClassroomCode: "A-101", InvigilatorID: strPtr("F1"), Status: models.AllocationScheduled}},
	}
}

func TestNotificationServiceNotifyDay(t *testing.T) {
	dispatcher := &dispatcherStub{}
	metrics := NewMetricsService()
	svc := NewNotificationService(&assignedReaderStub{items: notificationFixtureViews()}, dispatcher, metrics, nil)

	res, err := svc.NotifyDay(context.Background(), "2025-04-10")
	require.NoError(t, err)
	assert.Equal(t, "2025-04-10", res.Date)
	assert.Equal(t, 2, res.Queued)

	require.Len(t, dispatcher.jobs, 2)
	first := dispatcher.jobs[0].Payload
	assert.Equal(t, "a1", first.AllocationID)
	assert.Equal(t, "asha@example.edu", first.FacultyEmail)
	assert.False(t, first.Reassigned)
	assert.True(t, dispatcher.jobs[1].Payload.Reassigned)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.notifications.WithLabelValues(NotificationQueued)))

	empty, err := svc.NotifyDay(context.Background(), "2025-05-01")
	require.NoError(t, err)
	assert.Zero(t, empty.Queued)
}

func TestNotificationServiceNotifyDayErrors(t *testing.T) {
	svc := NewNotificationService(&assignedReaderStub{items: notificationFixtureViews()}, &dispatcherStub{err: errors.New("queue notification not started")}, nil, nil)

	_, err := svc.NotifyDay(context.Background(), "2025-04-10")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)

	_, err = svc.NotifyDay(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestNotificationWorkerThroughQueueRetries(t *testing.T) {
	notifier := &notifierStub{failures: 1}
	marker := &notifiedMarkerStub{}
	cacheStub := newMapCacheStub()
	require.NoError(t, cacheStub.Set(context.Background(), dayCacheKey("2025-04-10"), []string{"stale"}, 0))
	cache := NewCacheService(cacheStub, nil, time.Minute, zap.NewNop(), true)
	metrics := NewMetricsService()

	worker := NewNotificationWorker(notifier, marker, cache, metrics, zap.NewNop())
	queue := jobs.NewQueue[DutyNotice]("duty-notifications", worker.Handle, jobs.QueueConfig{Workers: 2, MaxRetries: 2, RetryDelay: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()

	svc := NewNotificationService(&assignedReaderStub{items: notificationFixtureViews()}, queue, metrics, zap.NewNop())
	res, err := svc.NotifyDay(ctx, "2025-04-10")
	require.NoError(t, err)
	require.Equal(t, 2, res.Queued)

	assert.Eventually(t, func() bool {
		return marker.has("a1") && marker.has("a2")
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, notifier.count())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.notifications.WithLabelValues(NotificationFailed)))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.notifications.WithLabelValues(NotificationSent)))

	var cached []string
	hit, err := cache.Get(context.Background(), dayCacheKey("2025-04-10"), &cached)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestLogNotifierNeverFails(t *testing.T) {
	n := NewLogNotifier(nil)
	assert.NoError(t, n.Notify(context.Background(), DutyNotice{AllocationID: "a1"}))
}
