package logic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketgrid/adengine/internal/models"
)

type fakeCampaignSource struct {
	banners  []models.Campaign
	products []models.Campaign
	err      error
}

func (f *fakeCampaignSource) EligibleBannerCampaigns(ctx context.Context, now time.Time, limit int) ([]models.Campaign, error) {
	return f.banners, f.err
}

func (f *fakeCampaignSource) EligibleProductCampaigns(ctx context.Context, now time.Time, productIDs []int) ([]models.Campaign, error) {
	return f.products, f.err
}

func activeBanner(id int, bid float64, createdAt time.Time) models.Campaign {
	return models.Campaign{
		ID:          id,
		AdType:      models.AdTypeBanner,
		Status:      models.StatusActive,
		StartDate:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		BidAmount:   bid,
		BannerImage: "https://cdn.example.com/banner.png",
		BannerLink:  "https://example.com",
		CreatedAt:   createdAt,
	}
}

func TestDisplaySeconds(t *testing.T) {
	cases := []struct {
		bid  float64
		want int
	}{
		{0, 30},
		{10, 30},
		{50, 30},
		{100, 60},
		{250, 150},
		{500, 300},
		{750, 300},
		{1000, 300},
		{100000, 300},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, DisplaySeconds(c.bid), "bid %v", c.bid)
	}
}

func TestScheduleOrdersByBidThenRecency(t *testing.T) {
	restore := nowFn
	nowFn = func() time.Time { return time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC) }
	defer func() { nowFn = restore }()

	older := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeCampaignSource{banners: []models.Campaign{
		activeBanner(1, 100, older),
		activeBanner(2, 500, older),
		activeBanner(3, 100, newer),
	}}
	sched := NewScheduler(NewFilter(src))

	slots, err := sched.Schedule(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, slots, 3)

	assert.Equal(t, 2, slots[0].Campaign.ID)
	assert.Equal(t, 3, slots[1].Campaign.ID, "ties break toward the newer campaign")
	assert.Equal(t, 1, slots[2].Campaign.ID)
}

func TestScheduleComputesSlotDurations(t *testing.T) {
	restore := nowFn
	nowFn = func() time.Time { return time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC) }
	defer func() { nowFn = restore }()

	created := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeCampaignSource{banners: []models.Campaign{
		activeBanner(1, 2000, created),
		activeBanner(2, 100, created),
		activeBanner(3, 10, created),
	}}
	sched := NewScheduler(NewFilter(src))

	slots, err := sched.Schedule(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, slots, 3)

	assert.Equal(t, 300, slots[0].DisplaySeconds)
	assert.Equal(t, 5.0, slots[0].DisplayMinutes)
	assert.Equal(t, 60, slots[1].DisplaySeconds)
	assert.Equal(t, 1.0, slots[1].DisplayMinutes)
	assert.Equal(t, 30, slots[2].DisplaySeconds)
	assert.Equal(t, 0.5, slots[2].DisplayMinutes)
}

func TestScheduleTruncatesToLimit(t *testing.T) {
	restore := nowFn
	nowFn = func() time.Time { return time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC) }
	defer func() { nowFn = restore }()

	created := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeCampaignSource{banners: []models.Campaign{
		activeBanner(1, 300, created),
		activeBanner(2, 200, created),
		activeBanner(3, 100, created),
	}}
	sched := NewScheduler(NewFilter(src))

	slots, err := sched.Schedule(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, 1, slots[0].Campaign.ID)
	assert.Equal(t, 2, slots[1].Campaign.ID)
}

func TestScheduleEmptyIsNotAnError(t *testing.T) {
	sched := NewScheduler(NewFilter(&fakeCampaignSource{}))
	slots, err := sched.Schedule(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, slots)
}
