package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the Prometheus instruments for the scheduler core. A nil
// *Metrics is valid and records nothing, so wiring stays optional in tests.
type Metrics struct {
	// Scan metrics
	ScansExecuted *prometheus.CounterVec
	ScansFailed   *prometheus.CounterVec
	ScanDuration  *prometheus.HistogramVec

	// Queue metrics
	JobsEnqueued prometheus.Counter
	JobsRetried  prometheus.Counter
	QueuePending prometheus.Gauge
	QueueRunning prometheus.Gauge

	// Driver metrics
	TicksTotal       prometheus.Counter
	TickDuration     prometheus.Histogram
	SchedulesDue     prometheus.Gauge
	SchedulesPaused  prometheus.Counter
	SchedulesSkipped prometheus.Counter

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	logger *zap.Logger
	server *http.Server
}

// New registers the instruments with reg. Pass prometheus.DefaultRegisterer
// in the binary and a fresh registry in tests.
func New(reg prometheus.Registerer, logger *zap.Logger) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		logger: logger,

		ScansExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tableguard_scans_executed_total",
			Help: "Total number of scans executed successfully",
		}, []string{"scan_type"}),

		ScansFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tableguard_scans_failed_total",
			Help: "Total number of scan executions that failed",
		}, []string{"scan_type", "error_kind"}),

		ScanDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tableguard_scan_duration_seconds",
			Help:    "Time taken to execute scans",
			Buckets: prometheus.DefBuckets,
		}, []string{"scan_type"}),

		JobsEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "tableguard_jobs_enqueued_total",
			Help: "Total number of jobs added to the queue",
		}),

		JobsRetried: factory.NewCounter(prometheus.CounterOpts{
			Name: "tableguard_jobs_retried_total",
			Help: "Total number of job retry attempts",
		}),

		QueuePending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tableguard_queue_pending",
			Help: "Jobs currently waiting in the queue",
		}),

		QueueRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tableguard_queue_running",
			Help: "Jobs currently executing",
		}),

		TicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "tableguard_scheduler_ticks_total",
			Help: "Total number of scheduler driver ticks",
		}),

		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tableguard_scheduler_tick_duration_seconds",
			Help:    "Duration of scheduler driver ticks",
			Buckets: prometheus.DefBuckets,
		}),

		SchedulesDue: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tableguard_schedules_due",
			Help: "Due schedules found by the last tick",
		}),

		SchedulesPaused: factory.NewCounter(prometheus.CounterOpts{
			Name: "tableguard_schedules_paused_total",
			Help: "Schedules auto-paused after exceeding their max failures",
		}),

		SchedulesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "tableguard_schedules_skipped_total",
			Help: "Due schedules skipped by the rate limiter",
		}),

		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "tableguard_cache_hits_total",
			Help: "Result cache hits",
		}),

		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "tableguard_cache_misses_total",
			Help: "Result cache misses",
		}),
	}

	logger.Info("Prometheus metrics initialized")
	return m
}

// ObserveScan records the outcome of one scan execution. An empty errorKind
// means success.
func (m *Metrics) ObserveScan(scanType string, errorKind string, duration time.Duration) {
	if m == nil {
		return
	}
	if errorKind == "" {
		m.ScansExecuted.WithLabelValues(scanType).Inc()
	} else {
		m.ScansFailed.WithLabelValues(scanType, errorKind).Inc()
	}
	m.ScanDuration.WithLabelValues(scanType).Observe(duration.Seconds())
}

// ObserveTick records a completed driver tick.
func (m *Metrics) ObserveTick(due int, duration time.Duration) {
	if m == nil {
		return
	}
	m.TicksTotal.Inc()
	m.SchedulesDue.Set(float64(due))
	m.TickDuration.Observe(duration.Seconds())
}

// ObserveQueue updates the queue depth gauges.
func (m *Metrics) ObserveQueue(pending, running int) {
	if m == nil {
		return
	}
	m.QueuePending.Set(float64(pending))
	m.QueueRunning.Set(float64(running))
}

func (m *Metrics) IncJobsEnqueued() {
	if m == nil {
		return
	}
	m.JobsEnqueued.Inc()
}

func (m *Metrics) IncJobsRetried() {
	if m == nil {
		return
	}
	m.JobsRetried.Inc()
}

func (m *Metrics) IncSchedulesPaused() {
	if m == nil {
		return
	}
	m.SchedulesPaused.Inc()
}

func (m *Metrics) IncSchedulesSkipped() {
	if m == nil {
		return
	}
	m.SchedulesSkipped.Inc()
}

// ObserveCache adds hit/miss deltas to the cache counters.
func (m *Metrics) ObserveCache(hitDelta, missDelta int64) {
	if m == nil {
		return
	}
	if hitDelta > 0 {
		m.CacheHits.Add(float64(hitDelta))
	}
	if missDelta > 0 {
		m.CacheMisses.Add(float64(missDelta))
	}
}

// StartServer starts the Prometheus metrics HTTP server.
func (m *Metrics) StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	m.server = &http.Server{
		Addr:    address,
		Handler: mux,
	}

	m.logger.Info("Starting Prometheus metrics server", zap.String("address", address))
	return m.server.ListenAndServe()
}

// StopServer stops the Prometheus metrics HTTP server.
func (m *Metrics) StopServer(ctx context.Context) error {
	if m == nil || m.server == nil {
		return nil
	}
	m.logger.Info("Stopping Prometheus metrics server")
	return m.server.Shutdown(ctx)
}
