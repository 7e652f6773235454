package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/middleware"
	"github.com/marketgrid/adengine/internal/models"
)

// DefaultBannerLimit bounds the rotation schedule when the widget does not ask
// for a specific slot count.
const DefaultBannerLimit = 10

// BannersHandler handles GET /banners and returns the rotation schedule:
// eligible banner campaigns ordered by bid with per-slot display durations.
func (s *Server) BannersHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "BannersHandler",
		trace.WithAttributes(
			attribute.String("http.method", "GET"),
			attribute.String("http.route", "/banners"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "/banners"
	const method = "GET"

	limit := DefaultBannerLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.Metrics.IncrementRequests(endpoint, method, "400")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	span.SetAttributes(attribute.Int("banner.limit", limit))

	slots, err := s.Scheduler.Schedule(ctx, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "schedule failed")
		logger.Error("banner schedule", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if slots == nil {
		slots = []models.BannerSlot{}
	}
	s.Metrics.RecordBannerSlots(len(slots))
	span.SetAttributes(attribute.Int("banner.slots", len(slots)))

	writeJSON(w, http.StatusOK, map[string]any{"banners": slots})
	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

// SponsorshipsHandler handles GET /sponsorships?product_ids=1,2,3 and reports
// which of the requested products carry a serveable sponsorship.
func (s *Server) SponsorshipsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "SponsorshipsHandler",
		trace.WithAttributes(
			attribute.String("http.method", "GET"),
			attribute.String("http.route", "/sponsorships"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "/sponsorships"
	const method = "GET"

	raw := r.URL.Query().Get("product_ids")
	if raw == "" {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "product_ids required", http.StatusBadRequest)
		return
	}
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || id < 1 {
			s.Metrics.IncrementRequests(endpoint, method, "400")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, "invalid product_ids", http.StatusBadRequest)
			return
		}
		ids = append(ids, id)
	}
	span.SetAttributes(attribute.Int("sponsorship.requested", len(ids)))

	campaigns, err := s.Filter.EligibleProducts(ctx, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sponsorship lookup failed")
		logger.Error("sponsorship lookup", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if campaigns == nil {
		campaigns = []models.Campaign{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"sponsorships": campaigns})
	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}
