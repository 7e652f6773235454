package logic

import (
	"context"
	"fmt"
	"time"

	"github.com/marketgrid/adengine/internal/models"
)

// nowFn returns the current time. Overridden in tests.
var nowFn = time.Now

// CampaignSource loads campaign candidates from storage. The SQL behind it
// performs the same coarse filtering, but the filter re-checks every
// condition in Go so serveability invariants hold even against a stale or
// overly-broad store.
type CampaignSource interface {
	EligibleBannerCampaigns(ctx context.Context, now time.Time, limit int) ([]models.Campaign, error)
	EligibleProductCampaigns(ctx context.Context, now time.Time, productIDs []int) ([]models.Campaign, error)
}

// Filter decides which campaigns are currently serveable.
type Filter struct {
	source CampaignSource
}

// NewFilter constructs a Filter over the given campaign source.
func NewFilter(source CampaignSource) *Filter {
	return &Filter{source: source}
}

// EligibleBanners returns serveable banner_external campaigns, at most limit.
// No eligible campaigns is an empty result, never an error.
func (f *Filter) EligibleBanners(ctx context.Context, limit int) ([]models.Campaign, error) {
	if f.source == nil {
		return nil, ErrNilStore
	}
	now := nowFn()
	candidates, err := f.source.EligibleBannerCampaigns(ctx, now, limit)
	if err != nil {
		return nil, fmt.Errorf("load banner campaigns: %w", err)
	}
	out := make([]models.Campaign, 0, len(candidates))
	for _, c := range candidates {
		if BannerServeable(c, now) {
			out = append(out, c)
		}
	}
	return out, nil
}

// EligibleProducts returns serveable product_internal campaigns whose product
// id is in the requested set.
func (f *Filter) EligibleProducts(ctx context.Context, productIDs []int) ([]models.Campaign, error) {
	if f.source == nil {
		return nil, ErrNilStore
	}
	if len(productIDs) == 0 {
		return nil, nil
	}
	now := nowFn()
	requested := make(map[int]bool, len(productIDs))
	for _, id := range productIDs {
		requested[id] = true
	}
	candidates, err := f.source.EligibleProductCampaigns(ctx, now, productIDs)
	if err != nil {
		return nil, fmt.Errorf("load product campaigns: %w", err)
	}
	out := make([]models.Campaign, 0, len(candidates))
	for _, c := range candidates {
		if ProductServeable(c, now) && requested[c.ProductID] {
			out = append(out, c)
		}
	}
	return out, nil
}

// serveable holds the checks shared by both campaign types: active, not
// suspended, not auto-paused, inside the inclusive date window.
func serveable(c models.Campaign, now time.Time) bool {
	if c.Status != models.StatusActive {
		return false
	}
	if c.AutoPaused {
		return false
	}
	day := now.Truncate(24 * time.Hour)
	if day.Before(c.StartDate.Truncate(24 * time.Hour)) {
		return false
	}
	if day.After(c.EndDate.Truncate(24 * time.Hour)) {
		return false
	}
	return true
}

// BannerServeable reports whether a banner_external campaign can be shown
// right now. House ads without a payment record pass the payment check.
func BannerServeable(c models.Campaign, now time.Time) bool {
	if c.AdType != models.AdTypeBanner || !serveable(c, now) {
		return false
	}
	if c.BannerImage == "" || c.BannerLink == "" {
		return false
	}
	return c.PaymentSettled || !c.HasPaymentRecord
}

// ProductServeable reports whether a product_internal campaign can sponsor
// its listing right now. Unlike banners, product promotions always require a
// settled payment.
func ProductServeable(c models.Campaign, now time.Time) bool {
	if c.AdType != models.AdTypeProduct || !serveable(c, now) {
		return false
	}
	if c.ApprovalStatus != models.ApprovalApproved && c.ApprovalStatus != "" {
		return false
	}
	if c.ProductID == 0 {
		return false
	}
	return c.PaymentSettled
}
