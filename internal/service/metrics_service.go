package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Schedule sync run outcomes used as metric labels.
const (
	SyncOutcomeSuccess   = "success"
	SyncOutcomeContended = "contended"
	SyncOutcomeFailed    = "failed"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	syncRuns        *prometheus.CounterVec
	syncChanges     *prometheus.CounterVec
	syncDuration    prometheus.Observer
	lockContention  *prometheus.CounterVec
	downstreamJobs  *prometheus.CounterVec
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

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	syncRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_sync_runs_total",
		Help: "Schedule reconciliation runs by outcome",
	}, []string{"outcome"})

	syncChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_sync_changes_total",
		Help: "Session changes applied or deferred by the reconciler, by kind",
	}, []string{"kind"})

	syncDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "schedule_sync_run_duration_seconds",
		Help:    "Wall time of completed reconciliation runs",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	lockContention := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_lock_contention_total",
		Help: "Lock acquisitions refused because a run was already open",
	}, []string{"job"})

	downstreamJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "downstream_jobs_total",
		Help: "Downstream recalculation jobs by type and result",
	}, []string{"type", "result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses,
		syncRuns, syncChanges, syncDuration, lockContention, downstreamJobs, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		syncRuns:        syncRuns,
		syncChanges:     syncChanges,
		syncDuration:    syncDuration,
		lockContention:  lockContention,
		downstreamJobs:  downstreamJobs,
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

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordSyncRun counts a reconciliation run; duration is only observed for runs that did work.
func (m *MetricsService) RecordSyncRun(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(outcome).Inc()
	if outcome != SyncOutcomeContended {
		m.syncDuration.Observe(duration.Seconds())
	}
}

// RecordSyncChanges adds n to the counter for kind (created, updated, removed, ...).
func (m *MetricsService) RecordSyncChanges(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.syncChanges.WithLabelValues(kind).Add(float64(n))
}

// RecordLockContention counts a refused lock acquisition.
func (m *MetricsService) RecordLockContention(job string) {
	if m == nil {
		return
	}
	m.lockContention.WithLabelValues(job).Inc()
}

// RecordDownstreamJob counts a processed downstream job.
func (m *MetricsService) RecordDownstreamJob(jobType string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.downstreamJobs.WithLabelValues(jobType, result).Inc()
}
