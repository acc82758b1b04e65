package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	LemonSqueezy    LemonSqueezyConfig
	Webhook         WebhookConfig
	Polling         PollingConfig
	OTel            OTelConfig
	Pipeline        PipelineConfig
	Env             string
	AdminAPIKey     string
	EnableResources bool
}

type LemonSqueezyConfig struct {
	APIKey  string
	BaseURL string
	StoreID string
	Timeout time.Duration
}

type WebhookConfig struct {
	Secret       string
	Port         int
	LogPath      string // legacy log-tail source, superseded by the listener
	MaxBodyBytes int64
	RateLimit    float64 // requests per second per client IP, 0 disables
	RateBurst    int

	// TrustedProxies are the CIDRs or IPs whose X-Forwarded-For is honoured
	// when resolving the client IP. Empty trusts no proxy.
	TrustedProxies []string
}

type PollingConfig struct {
	Enabled         bool
	IntervalMinutes int
	PageSize        int
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

type PipelineConfig struct {
	RedisURL    string
	RedisStream string
	MaxLen      int64
}

// Load loads configuration from environment variables.
// In development, a .env file in the working directory is loaded first when present.
func Load() (Config, error) {
	if getEnv("APP_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}

	cfg := Config{
		Env:             getEnv("APP_ENV", "development"),
		AdminAPIKey:     getEnv("ADMIN_API_KEY", ""),
		EnableResources: getEnvBool("ENABLE_RESOURCES", false),
		LemonSqueezy: LemonSqueezyConfig{
			APIKey: firstEnv(
				"LEMONSQUEEZY_API_KEY",
				"LEMON_SQUEEZY_API_KEY",
				"LEMONSQUEEZY_TEST_API_KEY",
				"LEMON_SQUEEZY_TEST_API_KEY",
			),
			BaseURL: getEnv("LEMONSQUEEZY_BASE_URL", "https://api.lemonsqueezy.com/v1"),
			StoreID: getEnv("LEMON_SQUEEZY_STORE_ID", ""),
			Timeout: getEnvDuration("LEMONSQUEEZY_TIMEOUT", 10*time.Second),
		},
		Webhook: WebhookConfig{
			Secret:         getEnv("LEMONSQUEEZY_WEBHOOK_SECRET", ""),
			Port:           getEnvInt("WEBHOOK_PORT", 3000),
			LogPath:        getEnv("WEBHOOK_LOG_PATH", ""),
			MaxBodyBytes:   getEnvInt64("WEBHOOK_MAX_BODY_BYTES", 1<<20),
			RateLimit:      getEnvFloat("WEBHOOK_RATE_LIMIT", 20),
			RateBurst:      getEnvInt("WEBHOOK_RATE_BURST", 40),
			TrustedProxies: getEnvList("WEBHOOK_TRUSTED_PROXIES"),
		},
		Polling: PollingConfig{
			Enabled:         getEnvBool("POLL_FAILED_PAYMENTS", false),
			IntervalMinutes: getEnvInt("POLL_INTERVAL_MINUTES", 5),
			PageSize:        getEnvInt("POLL_PAGE_SIZE", 5),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "lemonsqueezy-webhook-listener"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		Pipeline: PipelineConfig{
			RedisURL:    getEnv("PIPELINE_REDIS_URL", ""),
			RedisStream: getEnv("PIPELINE_REDIS_STREAM", "payment_events"),
			MaxLen:      getEnvInt64("PIPELINE_REDIS_MAXLEN", 1000),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.Webhook.Port <= 0 || c.Webhook.Port > 65535 {
		return fmt.Errorf("WEBHOOK_PORT must be between 1 and 65535, got %d", c.Webhook.Port)
	}
	if c.Webhook.MaxBodyBytes <= 0 {
		return fmt.Errorf("WEBHOOK_MAX_BODY_BYTES must be positive")
	}
	if c.PollerEnabled() {
		if c.Polling.IntervalMinutes <= 0 {
			return fmt.Errorf("POLL_INTERVAL_MINUTES must be positive, got %d", c.Polling.IntervalMinutes)
		}
		if !c.LemonSqueezy.Enabled() {
			return fmt.Errorf("LEMONSQUEEZY_API_KEY or LEMONSQUEEZY_TEST_API_KEY must be set when POLL_FAILED_PAYMENTS is enabled")
		}
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// PollerEnabled reports whether the failed-payment poller should run.
func (c Config) PollerEnabled() bool {
	return c.EnableResources && c.Polling.Enabled
}

// LogTailEnabled reports whether the legacy log-tail watcher should run.
func (c Config) LogTailEnabled() bool {
	return c.EnableResources && c.Webhook.LogPath != ""
}

func (c PollingConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

func (c WebhookConfig) VerificationEnabled() bool {
	return c.Secret != ""
}

func (c LemonSqueezyConfig) Enabled() bool {
	return c.APIKey != ""
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c PipelineConfig) Enabled() bool {
	return c.RedisURL != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

func getEnvList(key string) []string {
	var values []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		return value == "true"
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
