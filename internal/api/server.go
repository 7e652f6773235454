package api

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/config"
	"github.com/marketgrid/adengine/internal/db"
	"github.com/marketgrid/adengine/internal/logic"
	"github.com/marketgrid/adengine/internal/observability"
)

var tracer = otel.Tracer("adengine")

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger    *zap.Logger
	PG        *db.Postgres
	Scheduler *logic.Scheduler
	Filter    *logic.Filter
	Clicks    *logic.ClickRecorder
	Reach     *logic.ReachRecorder
	Ranker    *logic.Ranker
	Metrics   observability.MetricsRegistry
	Config    config.Config
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, pg *db.Postgres, scheduler *logic.Scheduler, filter *logic.Filter,
	clicks *logic.ClickRecorder, reach *logic.ReachRecorder, ranker *logic.Ranker,
	metrics observability.MetricsRegistry, cfg config.Config) *Server {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Server{
		Logger:    logger,
		PG:        pg,
		Scheduler: scheduler,
		Filter:    filter,
		Clicks:    clicks,
		Reach:     reach,
		Ranker:    ranker,
		Metrics:   metrics,
		Config:    cfg,
	}
}

// clientIP extracts the caller's IP, preferring X-Forwarded-For when the
// request came through a proxy.
func clientIP(r *http.Request) string {
	ipStr := r.Header.Get("X-Forwarded-For")
	if ipStr != "" {
		// X-Forwarded-For can be comma-separated, take the first entry.
		if i := strings.Index(ipStr, ","); i >= 0 {
			ipStr = ipStr[:i]
		}
		return strings.TrimSpace(ipStr)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
