package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Generation outcomes recorded by the scheduler counters.
const (
	OutcomeSuccess  = "success"
	OutcomePartial  = "partial"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the
// scheduler.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	generateRuns       *prometheus.CounterVec
	generateDuration   prometheus.Observer
	unassignedSessions prometheus.Counter
	reassignments      prometheus.Counter
	notifications      *prometheus.CounterVec
	importedRows       *prometheus.CounterVec
	danglingRequests   prometheus.Gauge

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	generateRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_generate_runs_total",
		Help: "Schedule generation runs by outcome",
	}, []string{"mode", "outcome"})

	generateDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "schedule_generate_duration_seconds",
		Help:    "Wall time of a generation run including persistence",
		Buckets: prometheus.DefBuckets,
	})

	unassignedSessions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedule_unassigned_sessions_total",
		Help: "Sessions left TBD by generation runs",
	})

	reassignments := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedule_reassignments_total",
		Help: "Successful manual reassignments",
	})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "duty_notifications_total",
		Help: "Duty notifications by result",
	}, []string{"result"})

	importedRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_import_rows_total",
		Help: "Roster rows processed by kind and result",
	}, []string{"kind", "result"})

	danglingRequests := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "change_requests_dangling",
		Help: "Approved change requests whose allocation was not moved",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		generateRuns, generateDuration, unassignedSessions, reassignments, notifications, importedRows, danglingRequests,
		goroutines,
	)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		generateRuns:       generateRuns,
		generateDuration:   generateDuration,
		unassignedSessions: unassignedSessions,
		reassignments:      reassignments,
		notifications:      notifications,
		importedRows:       importedRows,
		danglingRequests:   danglingRequests,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveGenerate records one generate or regenerate run.
func (m *MetricsService) ObserveGenerate(mode, outcome string, unassigned int, duration time.Duration) {
	if m == nil {
		return
	}
	m.generateRuns.WithLabelValues(mode, outcome).Inc()
	if outcome == OutcomeSuccess || outcome == OutcomePartial {
		m.generateDuration.Observe(duration.Seconds())
	}
	if unassigned > 0 {
		m.unassignedSessions.Add(float64(unassigned))
	}
}

// IncReassignment counts a successful manual reassignment.
func (m *MetricsService) IncReassignment() {
	if m == nil {
		return
	}
	m.reassignments.Inc()
}

// IncNotification counts one notification attempt by result.
func (m *MetricsService) IncNotification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

// AddImportedRows counts roster rows for kind.
func (m *MetricsService) AddImportedRows(kind string, imported, skipped int) {
	if m == nil {
		return
	}
	m.importedRows.WithLabelValues(kind, "imported").Add(float64(imported))
	m.importedRows.WithLabelValues(kind, "skipped").Add(float64(skipped))
}

// SetDanglingRequests publishes the latest dangling request count.
func (m *MetricsService) SetDanglingRequests(n int) {
	if m == nil {
		return
	}
	m.danglingRequests.Set(float64(n))
}
