package logic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketgrid/adengine/internal/models"
)

func TestBannerServeable(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	base := activeBanner(1, 100, now.AddDate(0, -1, 0))

	t.Run("serveable", func(t *testing.T) {
		assert.True(t, BannerServeable(base, now))
	})

	cases := []struct {
		name   string
		mutate func(*models.Campaign)
	}{
		{"suspended", func(c *models.Campaign) { c.Status = models.StatusSuspended }},
		{"draft", func(c *models.Campaign) { c.Status = models.StatusDraft }},
		{"auto paused", func(c *models.Campaign) { c.AutoPaused = true }},
		{"not started", func(c *models.Campaign) { c.StartDate = now.AddDate(0, 0, 1) }},
		{"ended", func(c *models.Campaign) { c.EndDate = now.AddDate(0, 0, -1) }},
		{"missing image", func(c *models.Campaign) { c.BannerImage = "" }},
		{"missing link", func(c *models.Campaign) { c.BannerLink = "" }},
		{"wrong type", func(c *models.Campaign) { c.AdType = models.AdTypeProduct }},
		{"unsettled payment", func(c *models.Campaign) {
			c.HasPaymentRecord = true
			c.PaymentSettled = false
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			tc.mutate(&c)
			assert.False(t, BannerServeable(c, now))
		})
	}
}

func TestBannerServeableDateWindowIsInclusive(t *testing.T) {
	now := time.Date(2026, 6, 15, 23, 30, 0, 0, time.UTC)
	c := activeBanner(1, 100, now.AddDate(0, -1, 0))
	c.StartDate = time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	c.EndDate = time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

	assert.True(t, BannerServeable(c, now), "single-day campaign serves on its day")
}

func TestBannerServeableHouseAdWithoutPaymentRecord(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	c := activeBanner(1, 100, now.AddDate(0, -1, 0))
	c.SellerID = 0
	c.HasPaymentRecord = false
	c.PaymentSettled = false

	assert.True(t, BannerServeable(c, now))
}

func activeProduct(id, productID int) models.Campaign {
	return models.Campaign{
		ID:             id,
		AdType:         models.AdTypeProduct,
		Status:         models.StatusActive,
		ApprovalStatus: models.ApprovalApproved,
		ProductID:      productID,
		StartDate:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		BidAmount:      50,
		CreatedAt:      time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		PaymentSettled: true,
		HasPaymentRecord: true,
	}
}

func TestProductServeable(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	base := activeProduct(1, 42)

	t.Run("serveable", func(t *testing.T) {
		assert.True(t, ProductServeable(base, now))
	})
	t.Run("empty approval passes", func(t *testing.T) {
		c := base
		c.ApprovalStatus = ""
		assert.True(t, ProductServeable(c, now))
	})

	cases := []struct {
		name   string
		mutate func(*models.Campaign)
	}{
		{"pending approval", func(c *models.Campaign) { c.ApprovalStatus = models.ApprovalPending }},
		{"rejected approval", func(c *models.Campaign) { c.ApprovalStatus = models.ApprovalRejected }},
		{"no product", func(c *models.Campaign) { c.ProductID = 0 }},
		{"unsettled payment", func(c *models.Campaign) { c.PaymentSettled = false }},
		{"suspended", func(c *models.Campaign) { c.Status = models.StatusSuspended }},
		{"wrong type", func(c *models.Campaign) { c.AdType = models.AdTypeBanner }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			tc.mutate(&c)
			assert.False(t, ProductServeable(c, now))
		})
	}
}

func TestEligibleBannersRechecksCandidates(t *testing.T) {
	restore := nowFn
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	nowFn = func() time.Time { return now }
	defer func() { nowFn = restore }()

	// The store returned a suspended campaign; the filter must drop it.
	stale := activeBanner(2, 200, now.AddDate(0, -1, 0))
	stale.Status = models.StatusSuspended
	src := &fakeCampaignSource{banners: []models.Campaign{
		activeBanner(1, 100, now.AddDate(0, -1, 0)),
		stale,
	}}

	out, err := NewFilter(src).EligibleBanners(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].ID)
}

func TestEligibleProductsFiltersToRequestedSet(t *testing.T) {
	restore := nowFn
	nowFn = func() time.Time { return time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC) }
	defer func() { nowFn = restore }()

	src := &fakeCampaignSource{products: []models.Campaign{
		activeProduct(1, 42),
		activeProduct(2, 99),
	}}

	out, err := NewFilter(src).EligibleProducts(context.Background(), []int{42})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 42, out[0].ProductID)
}

func TestEligibleProductsEmptyRequest(t *testing.T) {
	out, err := NewFilter(&fakeCampaignSource{}).EligibleProducts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
