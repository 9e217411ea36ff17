package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Sweeps   SweepConfig
	Dispatch DispatchConfig
	Engine   EngineConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN runs the
// service on the in-memory store.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr falls back to
// process-local sweep locks.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// SweepConfig schedules the periodic sweeps.
type SweepConfig struct {
	Enabled         bool
	TimeZone        string
	ExpirySpec      string
	AlertSpec       string
	EscalationSpec  string
	Concurrency     int
	LockTTLSeconds  int
	UpdateRetries   int
	HolidayCacheLen int
}

// DispatchConfig bounds outbound delivery.
type DispatchConfig struct {
	Rate             string
	MaxAttempts      int
	BackoffMillis    int
	SendTimeoutSec   int
	WebhookURL       string
	WebhookTimeoutMs int
}

// EngineConfig points at the rule and jurisdiction file.
type EngineConfig struct {
	File string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "locate-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 28),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Sweeps: SweepConfig{
			Enabled:         getEnvAsBool("SWEEPS_ENABLED", true),
			TimeZone:        getEnv("SWEEPS_TIMEZONE", "UTC"),
			ExpirySpec:      getEnv("SWEEP_EXPIRY_SPEC", "@every 1m"),
			AlertSpec:       getEnv("SWEEP_ALERT_SPEC", "@every 1m"),
			EscalationSpec:  getEnv("SWEEP_ESCALATION_SPEC", "@every 1m"),
			Concurrency:     getEnvAsInt("SWEEP_CONCURRENCY", 8),
			LockTTLSeconds:  getEnvAsInt("SWEEP_LOCK_TTL_SECONDS", 55),
			UpdateRetries:   getEnvAsInt("TICKET_UPDATE_RETRIES", 3),
			HolidayCacheLen: getEnvAsInt("HOLIDAY_CACHE_SIZE", 64),
		},
		Dispatch: DispatchConfig{
			Rate:             getEnv("DISPATCH_RATE", "600-M"),
			MaxAttempts:      getEnvAsInt("DISPATCH_MAX_ATTEMPTS", 3),
			BackoffMillis:    getEnvAsInt("DISPATCH_BACKOFF_MS", 500),
			SendTimeoutSec:   getEnvAsInt("DISPATCH_SEND_TIMEOUT_SECONDS", 10),
			WebhookURL:       os.Getenv("NOTIFY_WEBHOOK_URL"),
			WebhookTimeoutMs: getEnvAsInt("NOTIFY_WEBHOOK_TIMEOUT_MS", 5000),
		},
		Engine: EngineConfig{
			File: getEnv("ENGINE_FILE", "configs/engine.yaml"),
		},
	}

	if cfg.Sweeps.Concurrency <= 0 {
		return nil, fmt.Errorf("SWEEP_CONCURRENCY must be positive")
	}
	if cfg.Dispatch.MaxAttempts <= 0 {
		return nil, fmt.Errorf("DISPATCH_MAX_ATTEMPTS must be positive")
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// LockTTL is how long a sweep holds its lock.
func (s SweepConfig) LockTTL() time.Duration {
	return time.Duration(s.LockTTLSeconds) * time.Second
}

// Backoff is the delay before the first retry; it doubles per attempt.
func (d DispatchConfig) Backoff() time.Duration {
	return time.Duration(d.BackoffMillis) * time.Millisecond
}

// SendTimeout bounds a single sink call.
func (d DispatchConfig) SendTimeout() time.Duration {
	return time.Duration(d.SendTimeoutSec) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
