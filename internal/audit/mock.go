package audit

import (
	"context"
	"sync"

	"github.com/marketgrid/adengine/internal/models"
)

// Attempt is one recorded call on the mock log.
type Attempt struct {
	CampaignID int
	IP         string
	Country    string
	Severity   string
	Verdict    models.FraudVerdict
}

// MockLog is an in-memory SecurityLog for tests.
type MockLog struct {
	mu       sync.Mutex
	Attempts []Attempt
	// Err, when set, is returned from every RecordFraudAttempt call.
	Err error
}

func (m *MockLog) RecordFraudAttempt(ctx context.Context, campaignID int, ip, country, severity string, verdict models.FraudVerdict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Attempts = append(m.Attempts, Attempt{
		CampaignID: campaignID,
		IP:         ip,
		Country:    country,
		Severity:   severity,
		Verdict:    verdict,
	})
	return nil
}

// Recorded returns a snapshot of the attempts seen so far.
func (m *MockLog) Recorded() []Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Attempt, len(m.Attempts))
	copy(out, m.Attempts)
	return out
}
