package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ServiceName  string

	PostgresDSN string
	RedisAddr   string
	// AuditDSN points at the ClickHouse instance backing the security
	// audit log. Empty disables the audit sink (attempts are then only
	// logged through zap).
	AuditDSN string
	GeoIPDB  string

	// FraudDetectionEnabled is the successor of the old ADS_IP_LIMIT
	// toggle: when false the click guard is a no-op and every click is
	// logged and counted unconditionally.
	FraudDetectionEnabled bool
	MaxClicksPerHour      int
	DuplicateWindow       time.Duration
	RapidClickWindow      time.Duration
	RapidClickThreshold   int
	SessionClickLimit     int
	// SuspendThreshold is the campaign-wide hourly click count that marks a
	// campaign for auto-suspension.
	SuspendThreshold int
	// HistoryTimeout bounds every fraud-history lookup; on expiry the click
	// is treated as clean rather than blocking the path.
	HistoryTimeout time.Duration

	// Database connection pooling configuration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	// Tracing configuration
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8686")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 10*time.Second)
	cfg.ServiceName = getenv("SERVICE_NAME", "adengine")

	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/postgres?sslmode=disable")
	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.AuditDSN = getenv("AUDIT_CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/default?async_insert=1&wait_for_async_insert=1")
	cfg.GeoIPDB = getenv("GEOIP_DB", "internal/geoip/testdata/GeoLite2-Country.mmdb")

	cfg.FraudDetectionEnabled = envBool("FRAUD_DETECTION_ENABLED", true)
	cfg.MaxClicksPerHour = envInt("FRAUD_MAX_CLICKS_PER_HOUR", 3)
	cfg.DuplicateWindow = envDuration("FRAUD_DUPLICATE_WINDOW", 30*time.Second)
	cfg.RapidClickWindow = envDuration("FRAUD_RAPID_CLICK_WINDOW", 60*time.Second)
	cfg.RapidClickThreshold = envInt("FRAUD_RAPID_CLICK_THRESHOLD", 10)
	cfg.SessionClickLimit = envInt("FRAUD_SESSION_CLICK_LIMIT", 5)
	cfg.SuspendThreshold = envInt("FRAUD_SUSPEND_THRESHOLD", 50)
	cfg.HistoryTimeout = envDuration("FRAUD_HISTORY_TIMEOUT", 250*time.Millisecond)

	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	return cfg
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "30s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}
