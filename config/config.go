// Package config provides environment-driven configuration for the relay.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Cache backend names accepted by CACHE_BACKEND.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
	CacheBackendOff    = "off"
)

// Config holds the application configuration.
type Config struct {
	Server     ServerConfig
	OpenAI     OpenAIConfig
	Resilience ResilienceConfig
	Cache      CacheConfig
	Logging    LoggingConfig
	Metrics    MetricsConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string
	// MasterKey, when set, requires bearer authentication on API routes.
	MasterKey string
	// RequestTimeout is the overall deadline for one chat request,
	// shared across all retry attempts. Zero disables the deadline.
	RequestTimeout time.Duration
	// BodySizeLimit caps the inbound request body in bytes.
	BodySizeLimit int64
}

// OpenAIConfig holds upstream provider configuration.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// ResilienceConfig tunes the retry policy and circuit breaker.
type ResilienceConfig struct {
	MaxAttempts          int
	InitialBackoff       time.Duration
	BreakerWindowSize    int
	BreakerFailureRate   float64
	BreakerMinCalls      int
	BreakerOpenTimeout   time.Duration
	BreakerHalfOpenCalls int
	FallbackMessage      string
}

// CacheConfig selects and tunes the response cache backend.
type CacheConfig struct {
	// Backend is one of "memory", "redis", "off".
	Backend    string
	TTL        time.Duration
	MaxEntries int
	RedisURL   string
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	// Format is "json" or "text".
	Format string
	Level  string
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled  bool
	Endpoint string
}

// DefaultBodySizeLimit is 1MB; chat messages are small.
const DefaultBodySizeLimit int64 = 1 << 20

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			MasterKey:      os.Getenv("CHATRELAY_MASTER_KEY"),
			RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 2*time.Minute),
			BodySizeLimit:  getEnvInt64("BODY_SIZE_LIMIT", DefaultBodySizeLimit),
		},
		OpenAI: OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
		},
		Resilience: ResilienceConfig{
			MaxAttempts:          getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			InitialBackoff:       getEnvDuration("RETRY_INITIAL_BACKOFF", 2*time.Second),
			BreakerWindowSize:    getEnvInt("BREAKER_WINDOW_SIZE", 10),
			BreakerFailureRate:   getEnvFloat("BREAKER_FAILURE_RATE", 0.5),
			BreakerMinCalls:      getEnvInt("BREAKER_MIN_CALLS", 5),
			BreakerOpenTimeout:   getEnvDuration("BREAKER_OPEN_TIMEOUT", 5*time.Second),
			BreakerHalfOpenCalls: getEnvInt("BREAKER_HALF_OPEN_CALLS", 3),
			FallbackMessage:      os.Getenv("FALLBACK_MESSAGE"),
		},
		Cache: CacheConfig{
			Backend:    getEnv("CACHE_BACKEND", CacheBackendMemory),
			TTL:        getEnvDuration("CACHE_TTL", time.Hour),
			MaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 1024),
			RedisURL:   os.Getenv("REDIS_URL"),
		},
		Logging: LoggingConfig{
			Format: getEnv("LOG_FORMAT", "json"),
			Level:  getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Enabled:  getEnvBool("METRICS_ENABLED", true),
			Endpoint: getEnv("METRICS_ENDPOINT", "/metrics"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Cache.Backend {
	case CacheBackendMemory, CacheBackendRedis, CacheBackendOff:
	default:
		return fmt.Errorf("invalid CACHE_BACKEND %q (expected memory, redis, or off)", c.Cache.Backend)
	}
	if c.Cache.Backend == CacheBackendRedis && c.Cache.RedisURL == "" {
		return fmt.Errorf("CACHE_BACKEND=redis requires REDIS_URL")
	}
	if c.Resilience.MaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.Resilience.MaxAttempts)
	}
	if c.Resilience.BreakerFailureRate <= 0 || c.Resilience.BreakerFailureRate > 1 {
		return fmt.Errorf("BREAKER_FAILURE_RATE must be in (0, 1], got %v", c.Resilience.BreakerFailureRate)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDuration accepts either plain integers (interpreted as seconds) or
// Go duration strings (e.g., "90s", "5m").
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	return defaultVal
}
