package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP, cache and the risk pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	cycleDuration     prometheus.Histogram
	cycleFailures     prometheus.Counter
	activeHotspots    prometheus.Gauge
	highestRisk       prometheus.Gauge
	reportTransitions *prometheus.CounterVec
	actionTransitions *prometheus.CounterVec
	actionsCreated    *prometheus.CounterVec
	forecastFailures  prometheus.Counter
	eventFailures     prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		dbQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.DefBuckets,
		}, []string{"query"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_cycle_duration_seconds",
			Help:    "Duration of aggregation and risk recomputation cycles",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		cycleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "risk_cycle_failures_total",
			Help: "Recomputation cycles that failed and left the previous snapshot in place",
		}),
		activeHotspots: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "risk_active_hotspots",
			Help: "Hotspots in the published snapshot",
		}),
		highestRisk: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "risk_highest_posterior",
			Help: "Highest outbreak posterior in the published snapshot",
		}),
		reportTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "health_report_transitions_total",
			Help: "Report status transitions by target status",
		}, []string{"status"}),
		actionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "suggested_action_transitions_total",
			Help: "Suggested action transitions by target status",
		}, []string{"status"}),
		actionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "suggested_actions_created_total",
			Help: "Suggested actions created by source",
		}, []string{"source"}),
		forecastFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forecast_failures_total",
			Help: "Forecast collaborator calls that failed or timed out",
		}),
		eventFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "event_publish_failures_total",
			Help: "Domain events that could not be published",
		}),
	}

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
	m.cacheLatency = cacheLatency
	m.cacheWrite = cacheWrite

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal, cacheLatency, cacheWrite, m.cacheHits, m.cacheMisses, m.dbQueryDuration, goroutines,
		m.cycleDuration, m.cycleFailures, m.activeHotspots, m.highestRisk,
		m.reportTransitions, m.actionTransitions, m.actionsCreated, m.forecastFailures, m.eventFailures,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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
		return
	}
	m.cacheMisses.Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// ObserveCycle records a recomputation cycle outcome.
func (m *MetricsService) ObserveCycle(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(duration.Seconds())
	if err != nil {
		m.cycleFailures.Inc()
	}
}

// SetRiskGauges publishes hotspot count and the highest posterior of the latest snapshot.
func (m *MetricsService) SetRiskGauges(hotspots int, highest float64) {
	if m == nil {
		return
	}
	m.activeHotspots.Set(float64(hotspots))
	m.highestRisk.Set(highest)
}

// IncReportTransition counts a report status change.
func (m *MetricsService) IncReportTransition(status string) {
	if m == nil {
		return
	}
	m.reportTransitions.WithLabelValues(status).Inc()
}

// IncActionTransition counts an action status change.
func (m *MetricsService) IncActionTransition(status string) {
	if m == nil {
		return
	}
	m.actionTransitions.WithLabelValues(status).Inc()
}

// IncActionCreated counts a created action.
func (m *MetricsService) IncActionCreated(source string) {
	if m == nil {
		return
	}
	m.actionsCreated.WithLabelValues(source).Inc()
}

// IncForecastFailure counts a degraded forecast call.
func (m *MetricsService) IncForecastFailure() {
	if m == nil {
		return
	}
	m.forecastFailures.Inc()
}

// IncEventFailure counts an event that could not be published.
func (m *MetricsService) IncEventFailure() {
	if m == nil {
		return
	}
	m.eventFailures.Inc()
}
