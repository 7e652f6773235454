package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adengine_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adengine_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// click outcomes: accepted, flagged, duplicate, blocked
	ClickCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adengine_clicks_total",
			Help: "Total click events by outcome",
		},
		[]string{"outcome"},
	)

	// reach outcomes: recorded, duplicate
	ReachCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adengine_reach_total",
			Help: "Total reach events by outcome",
		},
		[]string{"outcome"},
	)

	// banner slots handed out per schedule request
	BannerSlotCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adengine_banner_slots",
			Help:    "Banner slots returned per rotation request",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		},
	)

	// campaigns auto-suspended by the fraud path
	SuspensionCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adengine_suspensions_total",
			Help: "Total campaigns auto-suspended",
		},
	)

	// failures writing to the security audit log
	AuditErrorCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adengine_audit_errors_total",
			Help: "Total audit log write failures",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		ClickCount,
		ReachCount,
		BannerSlotCount,
		SuspensionCount,
		AuditErrorCount,
	)
}
