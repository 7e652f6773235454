package logic

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/observability"
)

// ReachStore persists reach impressions. ReachRecordedOn is the day-level
// dedup lookup; the other two record an accepted impression.
type ReachStore interface {
	ReachRecordedOn(ctx context.Context, campaignID int, ip string, day time.Time) (bool, error)
	InsertReachEvent(ctx context.Context, campaignID int, ip string, at time.Time) error
	IncrementReachCount(ctx context.Context, campaignID int) error
}

// ReachRecorder counts at most one impression per (campaign, IP) per calendar
// day. Two concurrent first-of-day impressions can both pass the check; the
// resulting double count is tolerated.
type ReachRecorder struct {
	store   ReachStore
	metrics observability.MetricsRegistry
	logger  *zap.Logger
}

// NewReachRecorder constructs a ReachRecorder.
func NewReachRecorder(store ReachStore, metrics observability.MetricsRegistry, logger *zap.Logger) *ReachRecorder {
	if logger == nil {
		logger = zap.L()
	}
	return &ReachRecorder{store: store, metrics: metrics, logger: logger}
}

// RecordReach records one impression for the pair unless one already exists
// today. recorded reports whether this call incremented the counter.
func (r *ReachRecorder) RecordReach(ctx context.Context, campaignID int, ip string) (recorded bool, err error) {
	if r.store == nil {
		return false, ErrNilStore
	}
	now := nowFn()
	seen, err := r.store.ReachRecordedOn(ctx, campaignID, ip, now)
	if err != nil {
		return false, fmt.Errorf("reach dedup check: %w", err)
	}
	if seen {
		if r.metrics != nil {
			r.metrics.IncrementReach(observability.OutcomeDuplicate)
		}
		return false, nil
	}
	if err := r.store.InsertReachEvent(ctx, campaignID, ip, now); err != nil {
		return false, fmt.Errorf("record reach: %w", err)
	}
	if err := r.store.IncrementReachCount(ctx, campaignID); err != nil {
		return false, fmt.Errorf("record reach: %w", err)
	}
	if r.metrics != nil {
		r.metrics.IncrementReach(observability.OutcomeRecorded)
	}
	return true, nil
}
