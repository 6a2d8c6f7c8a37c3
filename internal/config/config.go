package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverSupabase = "supabase"
	DriverPostgres = "postgres"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port        int
	LogLevel    string
	CORSOrigins []string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheBackend  string
	CacheTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Observability
	OTLPEndpoint string
	ServiceName  string

	// Storage
	StoreDriver        string
	SupabaseURL        string
	SupabaseServiceKey string
	DatabaseURL        string
	DBMaxConns         int32

	// Auth (Supabase-issued JWTs; empty secret disables verification)
	JWTSecret string

	// Commissions
	DefaultCommissionPercent float64
	DefaultSDRPercent        float64

	// Leads
	LeadSourceURL       string
	RecalcRatePerSecond float64
}

var defaults = map[string]any{
	"PORT":                        8080,
	"LOG_LEVEL":                   "info",
	"CORS_ORIGINS":                "*",
	"HTTP_TIMEOUT":                "10s",
	"MAX_RETRIES":                 3,
	"INITIAL_BACKOFF":             "100ms",
	"MAX_CONCURRENCY":             8,
	"CACHE_BACKEND":               CacheMemory,
	"CACHE_TTL":                   "5m",
	"REDIS_ADDR":                  "",
	"REDIS_PASSWORD":              "",
	"REDIS_DB":                    0,
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"OTEL_SERVICE_NAME":           "ops-bfa",
	"STORE_DRIVER":                DriverSupabase,
	"SUPABASE_URL":                "",
	"SUPABASE_SERVICE_ROLE_KEY":   "",
	"DATABASE_URL":                "",
	"DB_MAX_CONNS":                10,
	"SUPABASE_JWT_SECRET":         "",
	"DEFAULT_COMMISSION_PERCENT":  10.0,
	"DEFAULT_SDR_PERCENT":         1.0,
	"LEAD_SOURCE_URL":             "",
	"RECALC_RATE_PER_SECOND":      20.0,
}

// Load reads configuration from the environment (after .env files) with defaults.
func Load() (*Config, error) {
	if err := LoadDotEnv(".env", ".env.local"); err != nil {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	cfg := &Config{
		Port:        v.GetInt("PORT"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		CORSOrigins: splitList(v.GetString("CORS_ORIGINS")),

		HTTPTimeout: v.GetDuration("HTTP_TIMEOUT"),

		MaxRetries:     v.GetInt("MAX_RETRIES"),
		InitialBackoff: v.GetDuration("INITIAL_BACKOFF"),
		MaxConcurrency: v.GetInt("MAX_CONCURRENCY"),

		CacheBackend:  strings.ToLower(v.GetString("CACHE_BACKEND")),
		CacheTTL:      v.GetDuration("CACHE_TTL"),
		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:  v.GetString("OTEL_SERVICE_NAME"),

		StoreDriver:        strings.ToLower(v.GetString("STORE_DRIVER")),
		SupabaseURL:        strings.TrimRight(v.GetString("SUPABASE_URL"), "/"),
		SupabaseServiceKey: v.GetString("SUPABASE_SERVICE_ROLE_KEY"),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		DBMaxConns:         v.GetInt32("DB_MAX_CONNS"),

		JWTSecret: v.GetString("SUPABASE_JWT_SECRET"),

		DefaultCommissionPercent: v.GetFloat64("DEFAULT_COMMISSION_PERCENT"),
		DefaultSDRPercent:        v.GetFloat64("DEFAULT_SDR_PERCENT"),

		LeadSourceURL:       v.GetString("LEAD_SOURCE_URL"),
		RecalcRatePerSecond: v.GetFloat64("RECALC_RATE_PER_SECOND"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects driver/backend combinations that cannot start.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverSupabase:
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			return eris.New("config: supabase driver requires SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return eris.New("config: postgres driver requires DATABASE_URL")
		}
	default:
		return eris.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.CacheBackend {
	case CacheMemory:
	case CacheRedis:
		if c.RedisAddr == "" {
			return eris.New("config: redis cache requires REDIS_ADDR")
		}
	default:
		return eris.Errorf("config: unknown CACHE_BACKEND %q", c.CacheBackend)
	}

	if c.DefaultCommissionPercent < 0 || c.DefaultSDRPercent < 0 {
		return eris.New("config: default commission percents must be >= 0")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
