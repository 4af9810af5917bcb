package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	BrandName string

	// Uazapi WhatsApp gateway
	UazapiServer     string
	UazapiToken      string
	UazapiAdminToken string
	UazapiInstance   string
	UazapiTimeout    time.Duration
	WebhookURL       string
	MarkChatsUnread  bool

	// ISPBOX billing backend
	IspboxBaseURL      string
	IspboxClientID     string
	IspboxClientSecret string
	IspboxTimeout      time.Duration

	// Conversation state
	SessionBackend     string
	SessionTTL         time.Duration
	SessionSweep       time.Duration
	DedupBackend       string
	DedupRetention     time.Duration
	DedupSweepInterval time.Duration

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	DatabaseURL string

	AdminJWTSecret   string
	WebhookRateLimit float64
	WebhookRateBurst int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "3020"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		BrandName: getEnv("BRAND_NAME", "ZC NET"),

		UazapiServer:     strings.TrimRight(getEnv("UAZAPI_SERVER", "https://free.uazapi.com"), "/"),
		UazapiToken:      getEnv("UAZAPI_TOKEN", ""),
		UazapiAdminToken: getEnv("UAZAPI_ADMIN_TOKEN", ""),
		UazapiInstance:   getEnv("UAZAPI_INSTANCE", ""),
		UazapiTimeout:    getEnvAsDuration("UAZAPI_TIMEOUT", 15*time.Second),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		MarkChatsUnread:  getEnvAsBool("MARK_CHATS_UNREAD", true),

		IspboxBaseURL:      strings.TrimRight(getEnv("ISPBOX_BASE_URL", ""), "/"),
		IspboxClientID:     getEnv("ISPBOX_CLIENT_ID", ""),
		IspboxClientSecret: getEnv("ISPBOX_CLIENT_SECRET", ""),
		IspboxTimeout:      getEnvAsDuration("ISPBOX_TIMEOUT", 20*time.Second),

		SessionBackend:     strings.ToLower(strings.TrimSpace(getEnv("SESSION_BACKEND", "memory"))),
		SessionTTL:         getEnvAsDuration("SESSION_TTL", time.Hour),
		SessionSweep:       getEnvAsDuration("SESSION_SWEEP_INTERVAL", 30*time.Minute),
		DedupBackend:       strings.ToLower(strings.TrimSpace(getEnv("DEDUP_BACKEND", "memory"))),
		DedupRetention:     getEnvAsDuration("DEDUP_RETENTION", 30*time.Second),
		DedupSweepInterval: getEnvAsDuration("DEDUP_SWEEP_INTERVAL", time.Minute),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		AdminJWTSecret:   getEnv("ADMIN_JWT_SECRET", ""),
		WebhookRateLimit: getEnvAsFloat("WEBHOOK_RATE_LIMIT", 20),
		WebhookRateBurst: getEnvAsInt("WEBHOOK_RATE_BURST", 40),
	}
}

// UsesRedis reports whether any state backend needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.SessionBackend == "redis" || c.DedupBackend == "redis"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
