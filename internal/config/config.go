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
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Actor     ActorConfig
	Registry  RegistryConfig
	Readout   ReadoutConfig
	Reconcile ReconcileConfig
	SLA       SLAConfig
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

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. Redis is optional: when
// Addr is empty the service falls back to in-process cache and locks.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// ActorConfig defines actor identity extraction parameters. Identity is
// attribution only; authorization lives outside this service.
type ActorConfig struct {
	JWTSecret string
}

// RegistryConfig points at the external asset registry.
type RegistryConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

// ReadoutConfig bounds live component read-outs.
type ReadoutConfig struct {
	TimeoutSeconds  int
	CacheTTLSeconds int
	CacheMaxEntries int
}

// ReconcileConfig controls the per-unit reconciliation lock.
type ReconcileConfig struct {
	LockTTLSeconds int
}

// SLAConfig controls the escalation worker.
type SLAConfig struct {
	EscalationIntervalSeconds int
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
			Name:                  getEnv("APP_NAME", "hardware-repair-service"),
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
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Actor: ActorConfig{
			JWTSecret: getEnv("ACTOR_JWT_SECRET", "dev-secret"),
		},
		Registry: RegistryConfig{
			BaseURL:        getEnv("REGISTRY_BASE_URL", "http://localhost:8090"),
			TimeoutSeconds: getEnvAsInt("REGISTRY_TIMEOUT_SECONDS", 5),
		},
		Readout: ReadoutConfig{
			TimeoutSeconds:  getEnvAsInt("READOUT_TIMEOUT_SECONDS", 15),
			CacheTTLSeconds: getEnvAsInt("READOUT_CACHE_TTL_SECONDS", 120),
			CacheMaxEntries: getEnvAsInt("READOUT_CACHE_MAX_ENTRIES", 512),
		},
		Reconcile: ReconcileConfig{
			LockTTLSeconds: getEnvAsInt("RECONCILE_LOCK_TTL_SECONDS", 300),
		},
		SLA: SLAConfig{
			EscalationIntervalSeconds: getEnvAsInt("SLA_ESCALATION_INTERVAL_SECONDS", 300),
		},
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

// RegistryTimeout returns the registry client timeout.
func (r RegistryConfig) RegistryTimeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// ReadoutTimeout returns the live read-out timeout.
func (r ReadoutConfig) ReadoutTimeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// CacheTTL returns the snapshot cache TTL.
func (r ReadoutConfig) CacheTTL() time.Duration {
	return time.Duration(r.CacheTTLSeconds) * time.Second
}

// LockTTL returns the reconciliation lock TTL.
func (r ReconcileConfig) LockTTL() time.Duration {
	return time.Duration(r.LockTTLSeconds) * time.Second
}

// EscalationInterval returns the escalation scan period.
func (s SLAConfig) EscalationInterval() time.Duration {
	return time.Duration(s.EscalationIntervalSeconds) * time.Second
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
