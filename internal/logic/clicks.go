package logic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/audit"
	"github.com/marketgrid/adengine/internal/db"
	"github.com/marketgrid/adengine/internal/models"
	"github.com/marketgrid/adengine/internal/observability"
)

// dispatch runs a side effect after the primary decision. Audit writes and
// suspensions go through here so their failures stay independent of the
// click outcome. Overridden in tests for determinism.
var dispatch = func(fn func()) { go fn() }

// sideEffectTimeout bounds dispatched audit and suspension writes, which run
// detached from the request context.
const sideEffectTimeout = 5 * time.Second

// ClickWriter persists an accepted click: the log row and the atomic counter
// increment.
type ClickWriter interface {
	InsertClickEvent(ctx context.Context, campaignID int, ip string, at time.Time) error
	IncrementClickCount(ctx context.Context, campaignID int) error
}

// CountryResolver maps an IP string to a country code for audit enrichment.
type CountryResolver interface {
	CountryFromString(ip string) string
}

// ClickRecorder drives a click through the integrity guard and, when
// accepted, persists it. Only clean and flagged-but-accepted outcomes produce
// a log row and a counter increment.
type ClickRecorder struct {
	guard     Guard
	writer    ClickWriter
	marks     *db.RedisStore
	markTTL   time.Duration
	audit     audit.SecurityLog
	suspender *Suspender
	geo       CountryResolver
	metrics   observability.MetricsRegistry
	logger    *zap.Logger
}

// NewClickRecorder constructs a ClickRecorder. marks, auditLog, suspender and
// geo may be nil; the corresponding side effects are then skipped.
func NewClickRecorder(guard Guard, writer ClickWriter, marks *db.RedisStore, markTTL time.Duration,
	auditLog audit.SecurityLog, suspender *Suspender, geo CountryResolver,
	metrics observability.MetricsRegistry, logger *zap.Logger) *ClickRecorder {
	if logger == nil {
		logger = zap.L()
	}
	return &ClickRecorder{
		guard:     guard,
		writer:    writer,
		marks:     marks,
		markTTL:   markTTL,
		audit:     auditLog,
		suspender: suspender,
		geo:       geo,
		metrics:   metrics,
		logger:    logger,
	}
}

// RecordClick evaluates and, if accepted, persists one click. The verdict is
// always returned so the caller can inspect it; a non-nil error means the
// accepted click could not be persisted and was not counted.
func (r *ClickRecorder) RecordClick(ctx context.Context, campaignID int, ip, userAgent string) (models.FraudVerdict, error) {
	if r.writer == nil {
		return models.FraudVerdict{}, ErrNilStore
	}
	verdict := r.guard.Check(ctx, campaignID, ip, userAgent)

	if verdict.Blocked() {
		outcome := observability.OutcomeBlocked
		if verdict.IsDuplicate {
			outcome = observability.OutcomeDuplicate
		}
		if r.metrics != nil {
			r.metrics.IncrementClicks(outcome)
		}
		r.logger.Warn("click rejected",
			zap.Int("campaign_id", campaignID),
			zap.String("ip", ip),
			zap.Bool("duplicate", verdict.IsDuplicate),
			zap.Int("fraud_score", verdict.FraudScore))
		r.auditAsync(campaignID, ip, "blocked", verdict)
		r.suspendAsync(campaignID, verdict)
		return verdict, nil
	}

	now := nowFn()
	if err := r.writer.InsertClickEvent(ctx, campaignID, ip, now); err != nil {
		return verdict, fmt.Errorf("record click: %w", err)
	}
	if err := r.writer.IncrementClickCount(ctx, campaignID); err != nil {
		return verdict, fmt.Errorf("record click: %w", err)
	}
	if r.marks != nil && r.marks.Client != nil && r.markTTL > 0 {
		if err := r.marks.MarkClick(ctx, campaignID, ip, r.markTTL); err != nil {
			r.logger.Warn("duplicate marker write failed", zap.Int("campaign_id", campaignID), zap.Error(err))
		}
	}

	if verdict.IsFraud {
		// Below the blocking threshold: the click counts, but the
		// attempt is still worth an audit trail.
		if r.metrics != nil {
			r.metrics.IncrementClicks(observability.OutcomeFlagged)
		}
		r.auditAsync(campaignID, ip, "flagged", verdict)
	} else if r.metrics != nil {
		r.metrics.IncrementClicks(observability.OutcomeAccepted)
	}
	r.suspendAsync(campaignID, verdict)

	return verdict, nil
}

func (r *ClickRecorder) auditAsync(campaignID int, ip, severity string, verdict models.FraudVerdict) {
	if r.audit == nil {
		return
	}
	country := ""
	if r.geo != nil {
		country = r.geo.CountryFromString(ip)
	}
	dispatch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if err := r.audit.RecordFraudAttempt(ctx, campaignID, ip, country, severity, verdict); err != nil {
			r.logger.Error("audit log write failed",
				zap.Int("campaign_id", campaignID), zap.Error(err))
		}
	})
}

func (r *ClickRecorder) suspendAsync(campaignID int, verdict models.FraudVerdict) {
	if r.suspender == nil || !verdict.ShouldSuspend {
		return
	}
	reason := strings.Join(verdict.Indicators, "; ")
	dispatch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		// Best effort. A failed suspension never reverses the click
		// decision that triggered it.
		_ = r.suspender.Suspend(ctx, campaignID, reason)
	})
}
