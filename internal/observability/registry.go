package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics,
// replacing direct access to the global Prometheus collectors with dependency
// injection.
type MetricsRegistry interface {
	// HTTP request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Event tracking metrics
	IncrementClicks(outcome string)
	IncrementReach(outcome string)
	RecordBannerSlots(count int)

	// Fraud path metrics
	IncrementSuspensions()
	IncrementAuditErrors()
}

// Click and reach outcome labels.
const (
	OutcomeAccepted  = "accepted"
	OutcomeFlagged   = "flagged"
	OutcomeDuplicate = "duplicate"
	OutcomeBlocked   = "blocked"
	OutcomeRecorded  = "recorded"
)

// PrometheusRegistry implements MetricsRegistry using the global Prometheus
// collectors.
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry.
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementClicks(outcome string) {
	ClickCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) IncrementReach(outcome string) {
	ReachCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) RecordBannerSlots(count int) {
	BannerSlotCount.Observe(float64(count))
}

func (r *PrometheusRegistry) IncrementSuspensions() {
	SuspensionCount.Inc()
}

func (r *PrometheusRegistry) IncrementAuditErrors() {
	AuditErrorCount.Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing.
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry.
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementClicks(outcome string)                                       {}
func (r *NoOpRegistry) IncrementReach(outcome string)                                        {}
func (r *NoOpRegistry) RecordBannerSlots(count int)                                          {}
func (r *NoOpRegistry) IncrementSuspensions()                                                {}
func (r *NoOpRegistry) IncrementAuditErrors()                                                {}
