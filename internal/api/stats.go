package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/middleware"
)

// StatsHandler handles GET /campaigns/{id}/stats.
func (s *Server) StatsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "StatsHandler",
		trace.WithAttributes(
			attribute.String("http.method", "GET"),
			attribute.String("http.route", "/campaigns/{id}/stats"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "/campaigns/stats"
	const method = "GET"

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id < 1 {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.Int("campaign.id", id))

	stats, err := s.PG.CampaignStatistics(ctx, id, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "statistics query failed")
		logger.Error("campaign statistics", zap.Int("campaign_id", id), zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if stats == nil {
		s.Metrics.IncrementRequests(endpoint, method, "404")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "campaign not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, stats)
	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}
