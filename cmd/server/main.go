package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/api"
	"github.com/marketgrid/adengine/internal/audit"
	"github.com/marketgrid/adengine/internal/config"
	"github.com/marketgrid/adengine/internal/db"
	"github.com/marketgrid/adengine/internal/geoip"
	"github.com/marketgrid/adengine/internal/logic"
	"github.com/marketgrid/adengine/internal/middleware"
	"github.com/marketgrid/adengine/internal/observability"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.TempoEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer pg.Close()

	store, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		// Redis only backs the duplicate-marker fast path; the SQL
		// fallback covers its absence.
		logger.Warn("redis unavailable, duplicate detection falls back to sql", zap.Error(err))
		store = nil
	} else {
		defer store.Close()
	}

	metricsRegistry := observability.NewPrometheusRegistry()

	var auditLog audit.SecurityLog
	if cfg.AuditDSN != "" {
		chLog, err := audit.InitClickHouse(cfg.AuditDSN, metricsRegistry)
		if err != nil {
			logger.Warn("audit sink unavailable, fraud attempts logged only", zap.Error(err))
		} else {
			defer chLog.Close()
			auditLog = chLog
		}
	}

	geoSvc, err := geoip.Init(cfg.GeoIPDB)
	if err != nil {
		logger.Warn("geoip db unavailable, audit rows carry no country", zap.Error(err))
		geoSvc = nil
	} else {
		defer func() { _ = geoSvc.Close() }()
	}

	filter := logic.NewFilter(pg)
	scheduler := logic.NewScheduler(filter)
	guard := logic.NewGuard(logic.GuardConfig{
		Enabled:             cfg.FraudDetectionEnabled,
		MaxClicksPerHour:    cfg.MaxClicksPerHour,
		DuplicateWindow:     cfg.DuplicateWindow,
		RapidClickWindow:    cfg.RapidClickWindow,
		RapidClickThreshold: cfg.RapidClickThreshold,
		SessionClickLimit:   cfg.SessionClickLimit,
		SuspendThreshold:    cfg.SuspendThreshold,
		HistoryTimeout:      cfg.HistoryTimeout,
	}, pg, store, logger)
	suspender := logic.NewSuspender(pg, metricsRegistry, logger)
	var geo logic.CountryResolver
	if geoSvc != nil {
		geo = geoSvc
	}
	clicks := logic.NewClickRecorder(guard, pg, store, cfg.DuplicateWindow, auditLog, suspender, geo, metricsRegistry, logger)
	reach := logic.NewReachRecorder(pg, metricsRegistry, logger)
	ranker := logic.NewRanker(pg, filter, logger)

	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(logger))
	srvDeps := api.NewServer(logger, pg, scheduler, filter, clicks, reach, ranker, metricsRegistry, cfg)
	r.HandleFunc("/banners", srvDeps.BannersHandler).Methods("GET")
	r.HandleFunc("/sponsorships", srvDeps.SponsorshipsHandler).Methods("GET")
	r.HandleFunc("/click", srvDeps.ClickHandler).Methods("POST")
	r.HandleFunc("/reach", srvDeps.ReachHandler).Methods("POST")
	r.HandleFunc("/listings/ranked", srvDeps.RankedListingsHandler).Methods("GET")
	r.HandleFunc("/campaigns/{id}/stats", srvDeps.StatsHandler).Methods("GET")
	r.HandleFunc("/health", srvDeps.HealthHandler).Methods("GET")

	r.Handle("/metrics", promhttp.Handler())

	var handler http.Handler = r
	if cfg.TracingEnabled {
		handler = otelhttp.NewHandler(r, "adengine")
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Ad engine running", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
