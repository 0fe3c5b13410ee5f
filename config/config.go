// Package config loads Polystats configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration.
type Config struct {
	// Application
	App AppConfig

	// HTTP server
	Server ServerConfig

	// Redis cache
	Redis RedisConfig

	// Polytrack API
	Polytrack PolytrackConfig

	// Track catalog
	Catalog CatalogConfig

	// Per-track resolution and sessions
	Resolver ResolverConfig

	// Background jobs
	Scheduler SchedulerConfig

	// Feature flags
	Features *FeatureFlags

	// Logging and metrics
	Observability ObservabilityConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string
	Environment Environment
	Debug       bool
	Version     string

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	EnableCORS     bool
	AllowedOrigins []string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Disabled runs the service without a cache; every page read hits the
	// upstream.
	Disabled bool
}

// PolytrackConfig holds Polytrack API settings. Requests are relayed through
// a CORS proxy; the upstream URL travels as an encoded query parameter.
type PolytrackConfig struct {
	BaseURL  string
	ProxyURL string

	// Version is the game protocol version sent with every request.
	Version string

	RequestTimeout time.Duration

	// Rate limiting toward the proxy
	RateLimit      int // requests per second
	RateLimitBurst int

	// Circuit breaker settings
	CircuitBreakerThreshold   int
	CircuitBreakerTimeout     time.Duration
	CircuitBreakerHalfOpenMax int

	// Cache TTLs
	PageCacheTTL    time.Duration
	ProfileCacheTTL time.Duration
}

// CatalogConfig holds track catalog settings.
type CatalogConfig struct {
	// Path is an optional JSON file overriding the embedded default catalog.
	Path string
}

// ResolverConfig holds per-track resolution and session settings.
type ResolverConfig struct {
	// MaxAttempts is the per-cycle HTTP attempt budget (first try included).
	MaxAttempts int

	// RetryBaseDelay is the backoff before the first retry; it doubles per
	// attempt.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// MaxAutoRetries caps the cumulative attempt count the automatic sweep
	// still acts on.
	MaxAutoRetries int

	// Stagger spaces per-track launches within one sweep.
	Stagger time.Duration

	// DebounceInterval is the quiet period before a non-immediate search
	// starts sweeping.
	DebounceInterval time.Duration

	// MaxSessions bounds the in-memory session map.
	MaxSessions int

	// SessionRetention is how long superseded sessions stay queryable.
	SessionRetention time.Duration
}

// SchedulerConfig holds background job settings.
type SchedulerConfig struct {
	Enabled bool

	// AutoRetryInterval is the base period between retry sweeps; each tick
	// adds a random jitter from the range below.
	AutoRetryInterval  time.Duration
	AutoRetryJitterMin time.Duration
	AutoRetryJitterMax time.Duration

	// JanitorInterval is the period between session cleanup passes.
	JanitorInterval time.Duration
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text

	MetricsEnabled bool
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App:           loadAppConfig(),
		Server:        loadServerConfig(),
		Redis:         loadRedisConfig(),
		Polytrack:     loadPolytrackConfig(),
		Catalog:       loadCatalogConfig(),
		Resolver:      loadResolverConfig(),
		Scheduler:     loadSchedulerConfig(),
		Features:      LoadFeatureFlags(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func loadAppConfig() AppConfig {
	env := Environment(getEnv("APP_ENV", "development"))

	return AppConfig{
		Name:            getEnv("APP_NAME", "polystat"),
		Environment:     env,
		Debug:           env == EnvDevelopment || getEnvBool("APP_DEBUG", false),
		Version:         getEnv("APP_VERSION", "0.1.0"),
		ShutdownTimeout: getEnvDuration("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:           getEnv("HTTP_HOST", "0.0.0.0"),
		Port:           getEnvInt("HTTP_PORT", 8080),
		ReadTimeout:    getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:    getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		EnableCORS:     getEnvBool("HTTP_ENABLE_CORS", true),
		AllowedOrigins: getEnvStringSlice("HTTP_ALLOWED_ORIGINS", []string{"*"}),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Host:         getEnv("REDIS_HOST", "localhost"),
		Port:         getEnvInt("REDIS_PORT", 6379),
		Password:     getEnv("REDIS_PASSWORD", ""),
		DB:           getEnvInt("REDIS_DB", 0),
		PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
		MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		Disabled:     getEnvBool("REDIS_DISABLED", false),
	}
}

func loadPolytrackConfig() PolytrackConfig {
	return PolytrackConfig{
		BaseURL:                   getEnv("POLYTRACK_BASE_URL", "https://vps.kodub.com:43273"),
		ProxyURL:                  getEnv("POLYTRACK_PROXY_URL", "https://hi-rewis.maxicode.workers.dev/?url="),
		Version:                   getEnv("POLYTRACK_VERSION", "0.5.0"),
		RequestTimeout:            getEnvDuration("POLYTRACK_REQUEST_TIMEOUT", 30*time.Second),
		RateLimit:                 getEnvInt("POLYTRACK_RATE_LIMIT", 10),
		RateLimitBurst:            getEnvInt("POLYTRACK_RATE_LIMIT_BURST", 5),
		CircuitBreakerThreshold:   getEnvInt("POLYTRACK_CB_THRESHOLD", 5),
		CircuitBreakerTimeout:     getEnvDuration("POLYTRACK_CB_TIMEOUT", 60*time.Second),
		CircuitBreakerHalfOpenMax: getEnvInt("POLYTRACK_CB_HALF_OPEN_MAX", 3),
		PageCacheTTL:              getEnvDuration("POLYTRACK_PAGE_CACHE_TTL", 2*time.Minute),
		ProfileCacheTTL:           getEnvDuration("POLYTRACK_PROFILE_CACHE_TTL", 10*time.Minute),
	}
}

func loadCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Path: getEnv("CATALOG_PATH", ""),
	}
}

func loadResolverConfig() ResolverConfig {
	return ResolverConfig{
		MaxAttempts:      getEnvInt("RESOLVER_MAX_ATTEMPTS", 4),
		RetryBaseDelay:   getEnvDuration("RESOLVER_RETRY_BASE_DELAY", 500*time.Millisecond),
		RetryMaxDelay:    getEnvDuration("RESOLVER_RETRY_MAX_DELAY", 10*time.Second),
		MaxAutoRetries:   getEnvInt("RESOLVER_MAX_AUTO_RETRIES", 5),
		Stagger:          getEnvDuration("RESOLVER_STAGGER", 20*time.Millisecond),
		DebounceInterval: getEnvDuration("RESOLVER_DEBOUNCE", 500*time.Millisecond),
		MaxSessions:      getEnvInt("RESOLVER_MAX_SESSIONS", 64),
		SessionRetention: getEnvDuration("RESOLVER_SESSION_RETENTION", time.Hour),
	}
}

func loadSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:            getEnvBool("SCHEDULER_ENABLED", true),
		AutoRetryInterval:  getEnvDuration("SCHEDULER_AUTO_RETRY_INTERVAL", 7*time.Second),
		AutoRetryJitterMin: getEnvDuration("SCHEDULER_AUTO_RETRY_JITTER_MIN", 500*time.Millisecond),
		AutoRetryJitterMax: getEnvDuration("SCHEDULER_AUTO_RETRY_JITTER_MAX", 2500*time.Millisecond),
		JanitorInterval:    getEnvDuration("SCHEDULER_JANITOR_INTERVAL", 10*time.Minute),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Polytrack.BaseURL == "" {
		errs = append(errs, "POLYTRACK_BASE_URL is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, "HTTP_PORT must be 1-65535")
	}
	if c.Resolver.MaxAttempts < 1 {
		errs = append(errs, "RESOLVER_MAX_ATTEMPTS must be >= 1")
	}
	if c.Scheduler.AutoRetryJitterMax < c.Scheduler.AutoRetryJitterMin {
		errs = append(errs, "SCHEDULER_AUTO_RETRY_JITTER_MAX must be >= the minimum")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// --- Helper functions for environment variable parsing ---

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}

	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return defaultVal
	}
	return result
}
