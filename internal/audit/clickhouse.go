package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/marketgrid/adengine/internal/models"
	"github.com/marketgrid/adengine/internal/observability"
)

// SecurityLog receives fraud attempts from the click path. Implementations
// must tolerate being called fire-and-forget: a write failure may be logged
// and counted but must never influence the click decision that produced it.
type SecurityLog interface {
	// RecordFraudAttempt persists one rejected or flagged click together
	// with its verdict. severity is "blocked" for rejected clicks and
	// "flagged" for accepted-but-suspicious ones.
	RecordFraudAttempt(ctx context.Context, campaignID int, ip, country, severity string, verdict models.FraudVerdict) error
}

// ErrUnavailable is returned when the audit sink is not configured.
var ErrUnavailable = fmt.Errorf("audit log unavailable")

// ClickHouseLog wraps a ClickHouse connection holding the append-only
// fraud_attempts table.
type ClickHouseLog struct {
	DB      *sql.DB
	Metrics observability.MetricsRegistry
}

// InitClickHouse connects to ClickHouse and ensures the fraud_attempts table
// exists.
func InitClickHouse(dsn string, metrics observability.MetricsRegistry) (*ClickHouseLog, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(25)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	create := `CREATE TABLE IF NOT EXISTS fraud_attempts (
       timestamp      DateTime,
       event_id       String,
       campaign_id    Int32,
       ip_address     String,
       country        String,
       severity       String,
       is_duplicate   UInt8,
       fraud_score    Int32,
       should_suspend UInt8,
       session_clicks Int32,
       total_clicks   Int32,
       indicators     Array(String)
   ) ENGINE=MergeTree() ORDER BY (campaign_id, timestamp)`
	if _, err := db.ExecContext(context.Background(), create); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	zap.L().Info("Connected to ClickHouse audit log")
	return &ClickHouseLog{DB: db, Metrics: metrics}, nil
}

// RecordFraudAttempt inserts one row into fraud_attempts.
func (l *ClickHouseLog) RecordFraudAttempt(ctx context.Context, campaignID int, ip, country, severity string, verdict models.FraudVerdict) error {
	if l == nil || l.DB == nil {
		return ErrUnavailable
	}
	stmt := `INSERT INTO fraud_attempts
        (timestamp, event_id, campaign_id, ip_address, country, severity,
         is_duplicate, fraud_score, should_suspend, session_clicks,
         total_clicks, indicators)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := l.DB.ExecContext(ctx, stmt, time.Now(), uuid.NewString(),
		int32(campaignID), ip, country, severity,
		boolToUInt8(verdict.IsDuplicate), int32(verdict.FraudScore),
		boolToUInt8(verdict.ShouldSuspend), int32(verdict.SessionClicks),
		int32(verdict.TotalClicks), verdict.Indicators)
	if err != nil {
		if l.Metrics != nil {
			l.Metrics.IncrementAuditErrors()
		}
		zap.L().Error("clickhouse audit insert failed", zap.Error(err),
			zap.Int("campaign_id", campaignID))
		return fmt.Errorf("insert fraud attempt: %w", err)
	}
	return nil
}

// Close shuts down the ClickHouse connection.
func (l *ClickHouseLog) Close() {
	if l != nil && l.DB != nil {
		if err := l.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
