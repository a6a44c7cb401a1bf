package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// All collectors register with the default registry through promauto

var (
	// ==================== HTTP METRICS ====================

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// ==================== CACHE METRICS ====================

	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "export_cache_hits_total",
			Help: "Total number of export cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "export_cache_misses_total",
			Help: "Total number of export cache misses",
		},
	)

	CacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_operation_duration_seconds",
			Help:    "Duration of cache operations in seconds",
			Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05},
		},
		[]string{"operation"}, // get, set, invalidate
	)

	// ==================== RATE LIMITING METRICS ====================

	RateLimitedRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limited_requests_total",
			Help: "Total number of rate-limited requests",
		},
	)

	RateLimitAllowedRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_allowed_requests_total",
			Help: "Total number of requests allowed by rate limiter",
		},
	)

	// ==================== VISIT METRICS ====================

	VisitsRecordedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "visits_recorded_total",
			Help: "Total number of visits stored",
		},
	)

	// VisitRecordFailuresTotal counts visits that could not be stored
	VisitRecordFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "visit_record_failures_total",
			Help: "Total number of visits rejected by storage",
		},
	)

	// MalformedPayloadsTotal counts bodies ingested with every field defaulted
	MalformedPayloadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "visit_malformed_payloads_total",
			Help: "Total number of visit bodies that were not valid JSON",
		},
	)

	// AuditLogWriteFailuresTotal counts stored visits missing from the text log
	AuditLogWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_log_write_failures_total",
			Help: "Total number of stored visits that could not be appended to the audit log",
		},
	)

	// ==================== DATABASE METRICS ====================

	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"}, // ensure_schema, create, list
	)

	DatabaseErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_errors_total",
			Help: "Total number of database errors",
		},
		[]string{"operation"},
	)
)

func RecordCacheHit() {
	CacheHitsTotal.Inc()
}

func RecordCacheMiss() {
	CacheMissesTotal.Inc()
}

func RecordVisit() {
	VisitsRecordedTotal.Inc()
}

func RecordVisitFailure() {
	VisitRecordFailuresTotal.Inc()
}

func RecordMalformedPayload() {
	MalformedPayloadsTotal.Inc()
}

func RecordAuditLogFailure() {
	AuditLogWriteFailuresTotal.Inc()
}

func RecordRateLimited() {
	RateLimitedRequestsTotal.Inc()
}

func RecordRateLimitAllowed() {
	RateLimitAllowedRequestsTotal.Inc()
}
