package logic

import (
	"context"
	"fmt"
	"time"

	"github.com/avct/uasurfer"
	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/db"
	"github.com/marketgrid/adengine/internal/models"
)

// ClickHistory answers the short point-in-time queries the guard needs about
// the accepted-click log. Lookups race against concurrent clicks from the
// same IP; a missed duplicate under heavy concurrency is an accepted false
// negative.
type ClickHistory interface {
	// CountClicks counts accepted clicks from an IP on a campaign since
	// the given time.
	CountClicks(ctx context.Context, campaignID int, ip string, since time.Time) (int, error)
	// HasClickSince reports whether the pair produced any accepted click
	// at or after the given time.
	HasClickSince(ctx context.Context, campaignID int, ip string, since time.Time) (bool, error)
	// CountCampaignClicks counts campaign-wide accepted clicks since the
	// given time, across all IPs.
	CountCampaignClicks(ctx context.Context, campaignID int, since time.Time) (int, error)
	// CountRapidIPs counts distinct IPs with at least threshold clicks on
	// the campaign since the given time.
	CountRapidIPs(ctx context.Context, campaignID int, since time.Time, threshold int) (int, error)
}

// GuardConfig carries the click-integrity thresholds. The defaults mirror
// the marketplace's historical tuning; all of them are env-configurable.
type GuardConfig struct {
	Enabled bool
	// MaxClicksPerHour is the hard per-IP hourly limit; at or beyond it a
	// click is scored 80 outright.
	MaxClicksPerHour int
	// DuplicateWindow is how soon after an accepted click a repeat from
	// the same (campaign, IP) counts as a duplicate.
	DuplicateWindow time.Duration
	// RapidClickWindow / RapidClickThreshold define the rapid-fire
	// velocity indicator.
	RapidClickWindow    time.Duration
	RapidClickThreshold int
	// SessionClickLimit is the per-(campaign, IP) hourly count beyond
	// which the session indicator triggers.
	SessionClickLimit int
	// SuspendThreshold is the campaign-wide hourly click count that marks
	// the campaign for auto-suspension.
	SuspendThreshold int
	// HistoryTimeout bounds all history lookups for one check. On expiry
	// the click is treated as clean rather than blocking the path.
	HistoryTimeout time.Duration
}

// Guard evaluates a single click attempt and produces a FraudVerdict. The
// guard never returns an error: storage trouble degrades to a clean verdict
// so the click path keeps moving.
type Guard interface {
	Check(ctx context.Context, campaignID int, ip, userAgent string) models.FraudVerdict
}

// NewGuard constructs the click-integrity guard. When disabled by config it
// returns a no-op implementation whose verdicts are always clean, restoring
// the unconditional-logging behavior of the old toggle. store may be nil, in
// which case duplicate detection falls back to the SQL log.
func NewGuard(cfg GuardConfig, history ClickHistory, store *db.RedisStore, logger *zap.Logger) Guard {
	if !cfg.Enabled {
		return noopGuard{}
	}
	if logger == nil {
		logger = zap.L()
	}
	return &detector{cfg: cfg, history: history, store: store, logger: logger}
}

// noopGuard is the disabled strategy: every click is clean.
type noopGuard struct{}

func (noopGuard) Check(context.Context, int, string, string) models.FraudVerdict {
	return models.FraudVerdict{Indicators: []string{}}
}

type detector struct {
	cfg     GuardConfig
	history ClickHistory
	store   *db.RedisStore
	logger  *zap.Logger
}

// Check runs the duplicate and velocity checks against recent click history.
func (d *detector) Check(ctx context.Context, campaignID int, ip, userAgent string) models.FraudVerdict {
	if d.cfg.HistoryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.HistoryTimeout)
		defer cancel()
	}

	now := nowFn()
	hourAgo := now.Add(-time.Hour)
	clean := models.FraudVerdict{Indicators: []string{}}

	sessionClicks, err := d.history.CountClicks(ctx, campaignID, ip, hourAgo)
	if err != nil {
		d.failOpen("session click count", campaignID, ip, err)
		return clean
	}
	if sessionClicks >= d.cfg.MaxClicksPerHour {
		return models.FraudVerdict{
			IsFraud:    true,
			FraudScore: 80,
			Indicators: []string{fmt.Sprintf(
				"Exceeded click limit: %d clicks from same IP in last hour (limit: %d)",
				sessionClicks, d.cfg.MaxClicksPerHour)},
			SessionClicks: sessionClicks,
		}
	}

	dup, err := d.isDuplicate(ctx, campaignID, ip, now)
	if err != nil {
		d.failOpen("duplicate check", campaignID, ip, err)
		return clean
	}
	if dup {
		return models.FraudVerdict{
			IsDuplicate: true,
			IsFraud:     true,
			FraudScore:  100,
			Indicators: []string{fmt.Sprintf(
				"Repeat click from same IP within %s of an accepted click",
				d.cfg.DuplicateWindow)},
			SessionClicks: sessionClicks,
		}
	}

	recentClicks, err := d.history.CountClicks(ctx, campaignID, ip, now.Add(-d.cfg.RapidClickWindow))
	if err != nil {
		d.failOpen("rapid click count", campaignID, ip, err)
		return clean
	}
	rapidIPs, err := d.history.CountRapidIPs(ctx, campaignID, hourAgo, d.cfg.RapidClickThreshold)
	if err != nil {
		d.failOpen("rapid ip count", campaignID, ip, err)
		return clean
	}
	totalClicks, err := d.history.CountCampaignClicks(ctx, campaignID, hourAgo)
	if err != nil {
		d.failOpen("campaign click count", campaignID, ip, err)
		return clean
	}

	v := models.FraudVerdict{
		Indicators:       []string{},
		ClickCountRecent: recentClicks,
		SessionClicks:    sessionClicks,
		TotalClicks:      totalClicks,
	}

	if recentClicks >= d.cfg.RapidClickThreshold {
		v.IsFraud = true
		v.FraudScore += 30
		v.Indicators = append(v.Indicators, fmt.Sprintf(
			"Rapid clicks from same IP: %d clicks in %s", recentClicks, d.cfg.RapidClickWindow))
	}
	if sessionClicks >= d.cfg.SessionClickLimit {
		v.IsFraud = true
		v.FraudScore += 40
		v.Indicators = append(v.Indicators, fmt.Sprintf(
			"Session click limit exceeded: %d clicks from same session (limit: %d)",
			sessionClicks, d.cfg.SessionClickLimit))
	}
	if rapidIPs > 0 {
		v.FraudScore += 20
		v.Indicators = append(v.Indicators, fmt.Sprintf(
			"Multiple IPs showing rapid click patterns: %d IPs", rapidIPs))
	}
	if totalClicks >= d.cfg.SuspendThreshold {
		v.IsFraud = true
		v.ShouldSuspend = true
		v.FraudScore += 50
		v.Indicators = append(v.Indicators, fmt.Sprintf(
			"Excessive clicks detected: %d clicks in last hour (threshold: %d)",
			totalClicks, d.cfg.SuspendThreshold))
	}
	if userAgent != "" && uasurfer.Parse(userAgent).IsBot() {
		v.IsFraud = true
		v.FraudScore += 25
		v.Indicators = append(v.Indicators, "Bot user agent")
	}

	if v.FraudScore > 100 {
		v.FraudScore = 100
	}
	return v
}

// isDuplicate consults the Redis marker first and falls back to the SQL log
// when Redis is down or not configured.
func (d *detector) isDuplicate(ctx context.Context, campaignID int, ip string, now time.Time) (bool, error) {
	if d.store != nil && d.store.Client != nil {
		dup, err := d.store.HasClickMark(ctx, campaignID, ip)
		if err == nil {
			return dup, nil
		}
		d.logger.Warn("redis duplicate check, falling back to click log",
			zap.Int("campaign_id", campaignID), zap.Error(err))
	}
	return d.history.HasClickSince(ctx, campaignID, ip, now.Add(-d.cfg.DuplicateWindow))
}

func (d *detector) failOpen(op string, campaignID int, ip string, err error) {
	d.logger.Warn("fraud history lookup failed, treating click as clean",
		zap.String("lookup", op),
		zap.Int("campaign_id", campaignID),
		zap.String("ip", ip),
		zap.Error(err))
}
