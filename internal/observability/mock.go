package observability

import "time"

// MockMetricsRegistry records event outcomes for assertions in tests.
type MockMetricsRegistry struct {
	Requests    map[string]int
	Clicks      map[string]int
	Reach       map[string]int
	Suspensions int
	AuditErrors int
}

// NewMockMetricsRegistry creates an empty MockMetricsRegistry.
func NewMockMetricsRegistry() *MockMetricsRegistry {
	return &MockMetricsRegistry{
		Requests: make(map[string]int),
		Clicks:   make(map[string]int),
		Reach:    make(map[string]int),
	}
}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string) {
	m.Requests[endpoint+" "+method+" "+status]++
}

func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}

func (m *MockMetricsRegistry) IncrementClicks(outcome string) { m.Clicks[outcome]++ }

func (m *MockMetricsRegistry) IncrementReach(outcome string) { m.Reach[outcome]++ }

func (m *MockMetricsRegistry) RecordBannerSlots(count int) {}

func (m *MockMetricsRegistry) IncrementSuspensions() { m.Suspensions++ }

func (m *MockMetricsRegistry) IncrementAuditErrors() { m.AuditErrors++ }
