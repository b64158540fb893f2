// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring a wandel transform engine.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TransformBuckets covers transform latencies from 10ms to 15 minutes, the
// default upper bound the liveness probe tolerates.
var TransformBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300, 900}

// SizeBuckets covers transform output sizes from 1KiB to 1GiB.
var SizeBuckets = prometheus.ExponentialBuckets(1024, 4, 11)

var (
	// RequestsTotal counts HTTP requests by method, status class, and route.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wandel_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wandel_request_duration_seconds",
			Help:    "Request duration",
			Buckets: TransformBuckets,
		},
		[]string{"method", "route"},
	)

	// TransformsTotal counts dispatched transforms by transformer, request
	// shape (http, message, probe), and outcome.
	TransformsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wandel_transforms_total",
			Help: "Transforms dispatched",
		},
		[]string{"transformer", "shape", "status"},
	)

	// TransformDuration records the time spent in EXECUTE.
	TransformDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wandel_transform_duration_seconds",
			Help:    "Transform duration",
			Buckets: TransformBuckets,
		},
		[]string{"transformer", "shape"},
	)

	// TransformOutputBytes records the size of successful transform output.
	TransformOutputBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wandel_transform_output_bytes",
			Help:    "Transform output size",
			Buckets: SizeBuckets,
		},
		[]string{"transformer"},
	)

	// CatalogTransformers is the number of transformers in the live catalog.
	CatalogTransformers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wandel_catalog_transformers",
			Help: "Transformers in the merged catalog",
		},
	)

	// CatalogReloadsTotal counts catalog rebuilds by outcome.
	CatalogReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wandel_catalog_reloads_total",
			Help: "Catalog reloads",
		},
		[]string{"status"},
	)

	// CatalogDiagnosticsTotal counts merge diagnostics by severity.
	CatalogDiagnosticsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wandel_catalog_diagnostics_total",
			Help: "Catalog merge diagnostics",
		},
		[]string{"severity"},
	)

	// ProbeTransformsServed mirrors the probe's served-transform counter.
	ProbeTransformsServed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wandel_probe_transforms_served",
			Help: "Transforms served since start, as seen by the liveness probe",
		},
	)

	// ProbeNormalTime is the averaged probe transform time in seconds.
	ProbeNormalTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wandel_probe_normal_time_seconds",
			Help: "Average probe transform time",
		},
	)

	// MessagesTotal counts asynchronous transform messages by outcome.
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wandel_messages_total",
			Help: "Transform request messages",
		},
		[]string{"status"},
	)

	// StoreOperationsTotal counts shared file store calls.
	StoreOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wandel_store_operations_total",
			Help: "Shared file store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wandel_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		TransformsTotal,
		TransformDuration,
		TransformOutputBytes,
		CatalogTransformers,
		CatalogReloadsTotal,
		CatalogDiagnosticsTotal,
		ProbeTransformsServed,
		ProbeNormalTime,
		MessagesTotal,
		StoreOperationsTotal,
		RateLimitRejectedTotal,
	)
}

// RecordTransform records the outcome of one dispatched transform. status
// is the reply status code; only 2xx results contribute to the output size.
func RecordTransform(transformer, shape string, status int, d time.Duration, outputBytes int64) {
	if transformer == "" {
		transformer = "none"
	}
	TransformsTotal.WithLabelValues(transformer, shape, statusClass(status)).Inc()
	TransformDuration.WithLabelValues(transformer, shape).Observe(d.Seconds())
	if status/100 == 2 && outputBytes >= 0 {
		TransformOutputBytes.WithLabelValues(transformer).Observe(float64(outputBytes))
	}
}

// RecordStoreOp records a shared file store call.
func RecordStoreOp(backend, operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	StoreOperationsTotal.WithLabelValues(backend, operation, status).Inc()
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
