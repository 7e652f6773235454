package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/config"
	"github.com/marketgrid/adengine/internal/logic"
	"github.com/marketgrid/adengine/internal/models"
	"github.com/marketgrid/adengine/internal/observability"
)

func testConfig() config.Config {
	return config.Config{Port: "8686", ServiceName: "adengine"}
}

type fakeCampaignSource struct {
	banners  []models.Campaign
	products []models.Campaign
}

func (f *fakeCampaignSource) EligibleBannerCampaigns(ctx context.Context, now time.Time, limit int) ([]models.Campaign, error) {
	return f.banners, nil
}

func (f *fakeCampaignSource) EligibleProductCampaigns(ctx context.Context, now time.Time, productIDs []int) ([]models.Campaign, error) {
	return f.products, nil
}

type fakeGuard struct {
	verdict models.FraudVerdict
}

func (f *fakeGuard) Check(ctx context.Context, campaignID int, ip, userAgent string) models.FraudVerdict {
	return f.verdict
}

type fakeClickWriter struct {
	inserted []int
	ips      []string
}

func (f *fakeClickWriter) InsertClickEvent(ctx context.Context, campaignID int, ip string, at time.Time) error {
	f.inserted = append(f.inserted, campaignID)
	f.ips = append(f.ips, ip)
	return nil
}

func (f *fakeClickWriter) IncrementClickCount(ctx context.Context, campaignID int) error {
	return nil
}

type fakeReachStore struct {
	seen bool
}

func (f *fakeReachStore) ReachRecordedOn(ctx context.Context, campaignID int, ip string, day time.Time) (bool, error) {
	return f.seen, nil
}

func (f *fakeReachStore) InsertReachEvent(ctx context.Context, campaignID int, ip string, at time.Time) error {
	return nil
}

func (f *fakeReachStore) IncrementReachCount(ctx context.Context, campaignID int) error {
	return nil
}

type fakeSignalSource struct {
	listings []models.ListingSignals
}

func (f *fakeSignalSource) ListingSignals(ctx context.Context, now time.Time) ([]models.ListingSignals, error) {
	return f.listings, nil
}

func serveableBanner(id int, bid float64) models.Campaign {
	now := time.Now()
	return models.Campaign{
		ID:          id,
		AdType:      models.AdTypeBanner,
		Status:      models.StatusActive,
		StartDate:   now.AddDate(0, -1, 0),
		EndDate:     now.AddDate(0, 1, 0),
		BidAmount:   bid,
		BannerImage: "https://cdn.example.com/banner.png",
		BannerLink:  "https://example.com",
		CreatedAt:   now.AddDate(0, -2, 0),
	}
}

func newTestServer(src *fakeCampaignSource, guard logic.Guard, writer logic.ClickWriter,
	reachStore logic.ReachStore, signals logic.SignalSource) (*Server, *observability.MockMetricsRegistry) {
	logger := zap.NewNop()
	metrics := observability.NewMockMetricsRegistry()
	filter := logic.NewFilter(src)
	var clicks *logic.ClickRecorder
	if guard != nil {
		clicks = logic.NewClickRecorder(guard, writer, nil, 0, nil, nil, nil, metrics, logger)
	}
	var reach *logic.ReachRecorder
	if reachStore != nil {
		reach = logic.NewReachRecorder(reachStore, metrics, logger)
	}
	var ranker *logic.Ranker
	if signals != nil {
		ranker = logic.NewRanker(signals, filter, logger)
	}
	srv := NewServer(logger, nil, logic.NewScheduler(filter), filter, clicks, reach, ranker, metrics, testConfig())
	return srv, metrics
}

func TestHealthHandler(t *testing.T) {
	srv, _ := newTestServer(&fakeCampaignSource{}, nil, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	srv.HealthHandler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestBannersHandlerReturnsSchedule(t *testing.T) {
	src := &fakeCampaignSource{banners: []models.Campaign{
		serveableBanner(1, 100),
		serveableBanner(2, 500),
	}}
	srv, _ := newTestServer(src, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/banners", nil)
	rr := httptest.NewRecorder()
	srv.BannersHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Banners []models.BannerSlot `json:"banners"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Banners, 2)
	assert.Equal(t, 2, body.Banners[0].Campaign.ID, "highest bid first")
	assert.Equal(t, 300, body.Banners[0].DisplaySeconds)
	assert.Equal(t, 60, body.Banners[1].DisplaySeconds)
}

func TestBannersHandlerInvalidLimit(t *testing.T) {
	srv, _ := newTestServer(&fakeCampaignSource{}, nil, nil, nil, nil)

	for _, q := range []string{"limit=0", "limit=-3", "limit=abc"} {
		req := httptest.NewRequest(http.MethodGet, "/banners?"+q, nil)
		rr := httptest.NewRecorder()
		srv.BannersHandler(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestBannersHandlerEmptySchedule(t *testing.T) {
	srv, _ := newTestServer(&fakeCampaignSource{}, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/banners", nil)
	rr := httptest.NewRecorder()
	srv.BannersHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"banners":[]}`, rr.Body.String())
}

func TestClickHandlerAccepted(t *testing.T) {
	writer := &fakeClickWriter{}
	srv, metrics := newTestServer(&fakeCampaignSource{}, &fakeGuard{}, writer, nil, nil)

	body := bytes.NewBufferString(`{"campaign_id":7}`)
	req := httptest.NewRequest(http.MethodPost, "/click", body)
	req.RemoteAddr = "192.168.1.1:12345"
	rr := httptest.NewRecorder()
	srv.ClickHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp clickResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Accepted)
	assert.False(t, resp.Duplicate)
	assert.Equal(t, []int{7}, writer.inserted)
	assert.Equal(t, 1, metrics.Clicks[observability.OutcomeAccepted])
}

func TestClickHandlerBlocked(t *testing.T) {
	writer := &fakeClickWriter{}
	guard := &fakeGuard{verdict: models.FraudVerdict{
		IsDuplicate: true,
		IsFraud:     true,
		FraudScore:  100,
		Indicators:  []string{"Repeat click"},
	}}
	srv, metrics := newTestServer(&fakeCampaignSource{}, guard, writer, nil, nil)

	body := bytes.NewBufferString(`{"campaign_id":7}`)
	req := httptest.NewRequest(http.MethodPost, "/click", body)
	req.RemoteAddr = "192.168.1.1:12345"
	rr := httptest.NewRecorder()
	srv.ClickHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp clickResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Accepted)
	assert.True(t, resp.Duplicate)
	assert.Empty(t, writer.inserted, "blocked clicks are never persisted")
	assert.Equal(t, 1, metrics.Clicks[observability.OutcomeDuplicate])
}

func TestClickHandlerBadRequest(t *testing.T) {
	srv, _ := newTestServer(&fakeCampaignSource{}, &fakeGuard{}, &fakeClickWriter{}, nil, nil)

	for _, payload := range []string{``, `{`, `{"campaign_id":0}`, `{"campaign_id":-4}`} {
		req := httptest.NewRequest(http.MethodPost, "/click", bytes.NewBufferString(payload))
		rr := httptest.NewRecorder()
		srv.ClickHandler(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "payload %q", payload)
	}
}

func TestClickHandlerUsesForwardedFor(t *testing.T) {
	writer := &fakeClickWriter{}
	srv, _ := newTestServer(&fakeCampaignSource{}, &fakeGuard{}, writer, nil, nil)

	body := bytes.NewBufferString(`{"campaign_id":7}`)
	req := httptest.NewRequest(http.MethodPost, "/click", body)
	req.RemoteAddr = "10.0.0.1:9999"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rr := httptest.NewRecorder()
	srv.ClickHandler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "203.0.113.9", clientIP(req))
	assert.Equal(t, []string{"203.0.113.9"}, writer.ips)
}

func TestClickHandlerBodyIPOverride(t *testing.T) {
	writer := &fakeClickWriter{}
	srv, _ := newTestServer(&fakeCampaignSource{}, &fakeGuard{}, writer, nil, nil)

	body := bytes.NewBufferString(`{"campaign_id":7,"ip":"198.51.100.4"}`)
	req := httptest.NewRequest(http.MethodPost, "/click", body)
	req.RemoteAddr = "10.0.0.1:9999"
	rr := httptest.NewRecorder()
	srv.ClickHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"198.51.100.4"}, writer.ips)
}

func TestClickHandlerIgnoresInvalidBodyIP(t *testing.T) {
	writer := &fakeClickWriter{}
	srv, _ := newTestServer(&fakeCampaignSource{}, &fakeGuard{}, writer, nil, nil)

	body := bytes.NewBufferString(`{"campaign_id":7,"ip":"not-an-ip"}`)
	req := httptest.NewRequest(http.MethodPost, "/click", body)
	req.RemoteAddr = "10.0.0.1:9999"
	rr := httptest.NewRecorder()
	srv.ClickHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"10.0.0.1"}, writer.ips)
}

func TestReachHandler(t *testing.T) {
	srv, metrics := newTestServer(&fakeCampaignSource{}, nil, nil, &fakeReachStore{}, nil)

	body := bytes.NewBufferString(`{"campaign_id":7}`)
	req := httptest.NewRequest(http.MethodPost, "/reach", body)
	req.RemoteAddr = "192.168.1.1:12345"
	rr := httptest.NewRecorder()
	srv.ReachHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp reachResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Recorded)
	assert.Equal(t, 1, metrics.Reach[observability.OutcomeRecorded])
}

func TestReachHandlerDuplicateDay(t *testing.T) {
	srv, _ := newTestServer(&fakeCampaignSource{}, nil, nil, &fakeReachStore{seen: true}, nil)

	body := bytes.NewBufferString(`{"campaign_id":7}`)
	req := httptest.NewRequest(http.MethodPost, "/reach", body)
	req.RemoteAddr = "192.168.1.1:12345"
	rr := httptest.NewRecorder()
	srv.ReachHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp reachResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Recorded)
}

func TestSponsorshipsHandlerValidation(t *testing.T) {
	srv, _ := newTestServer(&fakeCampaignSource{}, nil, nil, nil, nil)

	for _, q := range []string{"", "product_ids=", "product_ids=abc", "product_ids=1,-2"} {
		req := httptest.NewRequest(http.MethodGet, "/sponsorships?"+q, nil)
		rr := httptest.NewRecorder()
		srv.SponsorshipsHandler(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestSponsorshipsHandlerReturnsEligible(t *testing.T) {
	now := time.Now()
	src := &fakeCampaignSource{products: []models.Campaign{{
		ID:               3,
		AdType:           models.AdTypeProduct,
		Status:           models.StatusActive,
		ApprovalStatus:   models.ApprovalApproved,
		ProductID:        42,
		StartDate:        now.AddDate(0, -1, 0),
		EndDate:          now.AddDate(0, 1, 0),
		PaymentSettled:   true,
		HasPaymentRecord: true,
	}}}
	srv, _ := newTestServer(src, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/sponsorships?product_ids=42,43", nil)
	rr := httptest.NewRecorder()
	srv.SponsorshipsHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Sponsorships []models.Campaign `json:"sponsorships"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Sponsorships, 1)
	assert.Equal(t, 42, body.Sponsorships[0].ProductID)
}

func TestRankedListingsHandler(t *testing.T) {
	now := time.Now()
	signals := &fakeSignalSource{listings: []models.ListingSignals{
		{ProductID: 1, Name: "fresh", CreatedAt: now.AddDate(0, 0, -2), StockQuantity: 50, ListPrice: 100},
		{ProductID: 2, Name: "old", CreatedAt: now.AddDate(0, -6, 0), StockQuantity: 50, ListPrice: 100},
	}}
	srv, _ := newTestServer(&fakeCampaignSource{}, nil, nil, nil, signals)

	req := httptest.NewRequest(http.MethodGet, "/listings/ranked", nil)
	rr := httptest.NewRecorder()
	srv.RankedListingsHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Listings []models.RankedListing `json:"listings"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Listings, 2)
	assert.Equal(t, 1, body.Listings[0].Listing.ProductID, "fresh listing ranks first")
}

func TestRankedListingsHandlerValidation(t *testing.T) {
	srv, _ := newTestServer(&fakeCampaignSource{}, nil, nil, nil, &fakeSignalSource{})

	for _, q := range []string{"limit=0", "limit=101", "offset=-1", "limit=abc"} {
		req := httptest.NewRequest(http.MethodGet, "/listings/ranked?"+q, nil)
		rr := httptest.NewRecorder()
		srv.RankedListingsHandler(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestStatsHandlerInvalidID(t *testing.T) {
	srv, _ := newTestServer(&fakeCampaignSource{}, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/campaigns/abc/stats", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "abc"})
	rr := httptest.NewRecorder()
	srv.StatsHandler(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
