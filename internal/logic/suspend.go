package logic

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/observability"
)

// CampaignSuspender applies the suspension write: status change, auto-pause
// flag and note append in one statement.
type CampaignSuspender interface {
	SuspendCampaign(ctx context.Context, campaignID int, note string) error
}

// Suspender transitions abusive campaigns to the suspended state. It is
// deliberately not existence-checked: re-suspending an already-suspended
// campaign just appends another note line.
type Suspender struct {
	store   CampaignSuspender
	metrics observability.MetricsRegistry
	logger  *zap.Logger
}

// NewSuspender constructs a Suspender.
func NewSuspender(store CampaignSuspender, metrics observability.MetricsRegistry, logger *zap.Logger) *Suspender {
	if logger == nil {
		logger = zap.L()
	}
	return &Suspender{store: store, metrics: metrics, logger: logger}
}

// Suspend sets the campaign status to suspended and appends a timestamped
// reason line to its notes, preserving prior notes. Bid and dates are left
// untouched.
func (s *Suspender) Suspend(ctx context.Context, campaignID int, reason string) error {
	if s.store == nil {
		return ErrNilStore
	}
	note := fmt.Sprintf("\n[SUSPENDED: %s] %s", nowFn().Format("2006-01-02 15:04:05"), reason)
	if err := s.store.SuspendCampaign(ctx, campaignID, note); err != nil {
		s.logger.Error("auto-suspend failed",
			zap.Int("campaign_id", campaignID),
			zap.String("reason", reason),
			zap.Error(err))
		return fmt.Errorf("suspend campaign %d: %w", campaignID, err)
	}
	if s.metrics != nil {
		s.metrics.IncrementSuspensions()
	}
	s.logger.Warn("campaign auto-suspended",
		zap.Int("campaign_id", campaignID),
		zap.String("reason", reason))
	return nil
}
