package logic

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/models"
)

// Ranking weights. A sponsorship is worth more than any single organic
// signal but less than a strong combination of them, so well-performing
// organic listings can still outrank a sponsored one.
const (
	FreshnessWeekBonus  = 40
	FreshnessMonthBonus = 20
	ProductRatingWeight = 10
	SellerRatingWeight  = 5
	SalesVolumeCap      = 100
	DiscountBonus       = 10
	LowStockPenalty     = 20
	SponsoredBonus      = 60
	CategoryTrendWeight = 0.1
)

// LowStockThreshold is the stock level below which a listing is penalized
// for likely fulfillment trouble.
const LowStockThreshold = 5

// SignalSource loads the ranking signals for every active listing.
type SignalSource interface {
	ListingSignals(ctx context.Context, now time.Time) ([]models.ListingSignals, error)
}

// SponsorshipSource reports which of the given products carry a serveable
// sponsorship. *Filter satisfies it.
type SponsorshipSource interface {
	EligibleProducts(ctx context.Context, productIDs []int) ([]models.Campaign, error)
}

// Ranker blends organic quality signals with sponsorship status into one
// ordered listing feed.
type Ranker struct {
	signals      SignalSource
	sponsorships SponsorshipSource
	logger       *zap.Logger
}

// NewRanker constructs a Ranker.
func NewRanker(signals SignalSource, sponsorships SponsorshipSource, logger *zap.Logger) *Ranker {
	if logger == nil {
		logger = zap.L()
	}
	return &Ranker{signals: signals, sponsorships: sponsorships, logger: logger}
}

// Rank scores every active listing, orders by score descending with newer
// listings first on ties, and returns the [offset, offset+limit) window.
// A sponsorship lookup failure degrades to a purely organic ranking.
func (r *Ranker) Rank(ctx context.Context, limit, offset int) ([]models.RankedListing, error) {
	if r.signals == nil {
		return nil, ErrNilStore
	}
	now := nowFn()
	listings, err := r.signals.ListingSignals(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("load listing signals: %w", err)
	}

	sponsored := r.sponsoredSet(ctx, listings)

	ranked := make([]models.RankedListing, 0, len(listings))
	for _, l := range listings {
		ranked = append(ranked, models.RankedListing{
			Listing:   l,
			Score:     Score(l, sponsored[l.ProductID], now),
			Sponsored: sponsored[l.ProductID],
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Listing.CreatedAt.After(ranked[j].Listing.CreatedAt)
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(ranked) {
		return []models.RankedListing{}, nil
	}
	end := len(ranked)
	if limit >= 0 && offset+limit < end {
		end = offset + limit
	}
	return ranked[offset:end], nil
}

// sponsoredSet resolves which listings carry an eligible sponsorship.
func (r *Ranker) sponsoredSet(ctx context.Context, listings []models.ListingSignals) map[int]bool {
	if r.sponsorships == nil || len(listings) == 0 {
		return nil
	}
	ids := make([]int, 0, len(listings))
	for _, l := range listings {
		ids = append(ids, l.ProductID)
	}
	campaigns, err := r.sponsorships.EligibleProducts(ctx, ids)
	if err != nil {
		r.logger.Warn("sponsorship lookup failed, ranking organically", zap.Error(err))
		return nil
	}
	set := make(map[int]bool, len(campaigns))
	for _, c := range campaigns {
		set[c.ProductID] = true
	}
	return set
}

// Score computes a listing's ranking score from its quality signals.
func Score(l models.ListingSignals, sponsored bool, now time.Time) float64 {
	var score float64

	age := now.Sub(l.CreatedAt)
	switch {
	case age < 7*24*time.Hour:
		score += FreshnessWeekBonus
	case age < 30*24*time.Hour:
		score += FreshnessMonthBonus
	}

	score += l.AvgProductRating * ProductRatingWeight
	score += l.AvgSellerRating * SellerRatingWeight

	sales := l.MonthlySales
	if sales > SalesVolumeCap {
		sales = SalesVolumeCap
	}
	score += float64(sales)

	if l.SalePrice > 0 && l.SalePrice < 0.9*l.ListPrice {
		score += DiscountBonus
	}
	if l.StockQuantity < LowStockThreshold {
		score -= LowStockPenalty
	}
	if sponsored {
		score += SponsoredBonus
	}
	score += CategoryTrendWeight * float64(l.CategoryOrders)

	return score
}
