package api

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/middleware"
)

type eventRequest struct {
	CampaignID int `json:"campaign_id"`
	// IP optionally overrides the connection address, for backends relaying
	// events on behalf of storefront clients.
	IP string `json:"ip,omitempty"`
}

type clickResponse struct {
	Accepted   bool     `json:"accepted"`
	Duplicate  bool     `json:"duplicate"`
	Flagged    bool     `json:"flagged"`
	FraudScore int      `json:"fraud_score"`
	Indicators []string `json:"indicators"`
}

type reachResponse struct {
	Recorded bool `json:"recorded"`
}

// ClickHandler handles POST /click. The body names the campaign and may carry
// an IP override for relayed events; otherwise the connection address is used.
func (s *Server) ClickHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "ClickHandler",
		trace.WithAttributes(
			attribute.String("http.method", "POST"),
			attribute.String("http.route", "/click"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "/click"
	const method = "POST"

	req, ok := s.decodeEvent(w, r, endpoint, method, start)
	if !ok {
		return
	}
	campaignID := req.CampaignID
	ip := eventIP(req, r)
	span.SetAttributes(
		attribute.Int("campaign.id", campaignID),
		attribute.String("client.ip", ip),
	)

	verdict, err := s.Clicks.RecordClick(ctx, campaignID, ip, r.UserAgent())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "click persist failed")
		logger.Error("record click", zap.Int("campaign_id", campaignID), zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	span.SetAttributes(
		attribute.Bool("click.accepted", !verdict.Blocked()),
		attribute.Int("click.fraud_score", verdict.FraudScore),
	)

	indicators := verdict.Indicators
	if indicators == nil {
		indicators = []string{}
	}
	writeJSON(w, http.StatusOK, clickResponse{
		Accepted:   !verdict.Blocked(),
		Duplicate:  verdict.IsDuplicate,
		Flagged:    verdict.IsFraud,
		FraudScore: verdict.FraudScore,
		Indicators: indicators,
	})
	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

// ReachHandler handles POST /reach. A repeat view from the same IP on the
// same day is acknowledged but not counted.
func (s *Server) ReachHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "ReachHandler",
		trace.WithAttributes(
			attribute.String("http.method", "POST"),
			attribute.String("http.route", "/reach"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "/reach"
	const method = "POST"

	req, ok := s.decodeEvent(w, r, endpoint, method, start)
	if !ok {
		return
	}
	campaignID := req.CampaignID
	ip := eventIP(req, r)
	span.SetAttributes(
		attribute.Int("campaign.id", campaignID),
		attribute.String("client.ip", ip),
	)

	recorded, err := s.Reach.RecordReach(ctx, campaignID, ip)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reach persist failed")
		logger.Error("record reach", zap.Int("campaign_id", campaignID), zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	span.SetAttributes(attribute.Bool("reach.recorded", recorded))

	writeJSON(w, http.StatusOK, reachResponse{Recorded: recorded})
	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

// decodeEvent parses the shared click/reach request body and validates the
// campaign id. It writes the error response itself; ok is false when it did.
func (s *Server) decodeEvent(w http.ResponseWriter, r *http.Request, endpoint, method string, start time.Time) (eventRequest, bool) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return eventRequest{}, false
	}
	if req.CampaignID < 1 {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "campaign_id required", http.StatusBadRequest)
		return eventRequest{}, false
	}
	return req, true
}

// eventIP resolves the event's source address: a valid override from the body
// wins, otherwise the connection address.
func eventIP(req eventRequest, r *http.Request) string {
	if req.IP != "" && net.ParseIP(req.IP) != nil {
		return req.IP
	}
	return clientIP(r)
}
