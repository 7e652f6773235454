package api

import (
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/middleware"
	"github.com/marketgrid/adengine/internal/models"
)

// Listing feed pagination bounds.
const (
	DefaultListingLimit = 20
	MaxListingLimit     = 100
)

// RankedListingsHandler handles GET /listings/ranked and returns the blended
// organic-plus-sponsored listing feed.
func (s *Server) RankedListingsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "RankedListingsHandler",
		trace.WithAttributes(
			attribute.String("http.method", "GET"),
			attribute.String("http.route", "/listings/ranked"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "/listings/ranked"
	const method = "GET"

	limit := DefaultListingLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxListingLimit {
			s.Metrics.IncrementRequests(endpoint, method, "400")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.Metrics.IncrementRequests(endpoint, method, "400")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, "invalid offset", http.StatusBadRequest)
			return
		}
		offset = n
	}
	span.SetAttributes(
		attribute.Int("listing.limit", limit),
		attribute.Int("listing.offset", offset),
	)

	ranked, err := s.Ranker.Rank(ctx, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ranking failed")
		logger.Error("rank listings", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if ranked == nil {
		ranked = []models.RankedListing{}
	}
	span.SetAttributes(attribute.Int("listing.returned", len(ranked)))

	writeJSON(w, http.StatusOK, map[string]any{
		"listings": ranked,
		"limit":    limit,
		"offset":   offset,
	})
	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}
