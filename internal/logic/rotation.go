package logic

import (
	"context"
	"math"
	"sort"

	"github.com/marketgrid/adengine/internal/models"
)

// Display duration bounds for a single banner slot. Every 100 currency units
// of bid buys one minute of display time, floored at 30 seconds and capped at
// 5 minutes no matter how large the bid is.
const (
	MinDisplaySeconds = 30
	MaxDisplaySeconds = 300
)

// Scheduler computes the banner rotation order and per-slot display
// durations. It is a per-request computation with no persistent timer: the
// storefront widget owns the actual rotation clock, which keeps the engine
// stateless.
type Scheduler struct {
	filter *Filter
}

// NewScheduler constructs a Scheduler over the given eligibility filter.
func NewScheduler(filter *Filter) *Scheduler {
	return &Scheduler{filter: filter}
}

// Schedule returns at most limit banner slots ordered by bid descending,
// ties broken by creation time descending.
func (s *Scheduler) Schedule(ctx context.Context, limit int) ([]models.BannerSlot, error) {
	campaigns, err := s.filter.EligibleBanners(ctx, limit)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(campaigns, func(i, j int) bool {
		if campaigns[i].BidAmount != campaigns[j].BidAmount {
			return campaigns[i].BidAmount > campaigns[j].BidAmount
		}
		return campaigns[i].CreatedAt.After(campaigns[j].CreatedAt)
	})
	if limit >= 0 && len(campaigns) > limit {
		campaigns = campaigns[:limit]
	}

	slots := make([]models.BannerSlot, 0, len(campaigns))
	for _, c := range campaigns {
		secs := DisplaySeconds(c.BidAmount)
		slots = append(slots, models.BannerSlot{
			Campaign:       c,
			DisplaySeconds: secs,
			DisplayMinutes: math.Round(float64(secs)/60*10) / 10,
		})
	}
	return slots, nil
}

// DisplaySeconds converts a bid amount into a display duration, clamped to
// [MinDisplaySeconds, MaxDisplaySeconds].
func DisplaySeconds(bidAmount float64) int {
	secs := bidAmount / 100 * 60
	if secs < MinDisplaySeconds {
		return MinDisplaySeconds
	}
	if secs > MaxDisplaySeconds {
		return MaxDisplaySeconds
	}
	return int(secs)
}
