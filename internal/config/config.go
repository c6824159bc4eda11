package config

import (
	"os"
	"strconv"
	"time"

	"github.com/n3m01726/cloudcaddy-sub000/internal/secret"
)

// Config is the process configuration, read once from the environment.
type Config struct {
	DevMode  bool
	LogLevel string
	Port     string

	FrontendURL   string
	PublicBaseURL string // origin of the file proxy used in preview URLs

	AccountsTable      string
	MetadataTable      string
	NotificationsTable string
	KMSKeyID           string

	GoogleClientID          string
	GoogleClientSecretParam string
	GoogleRedirectURL       string
	DropboxAppKey           string
	DropboxAppSecretParam   string
	JWTSecretParam          string
	OriginVerifyParam       string // shared secret CloudFront sends as X-Origin-Verify

	RedisAddr     string
	RedisPassword string

	VendorCallTimeout      time.Duration
	NotificationCacheTTL   time.Duration
	AggregationConcurrency int

	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads the configuration from environment variables.
func Load() Config {
	frontend := getEnvWithDefault("FRONTEND_URL", "http://localhost:3000")
	return Config{
		DevMode:  os.Getenv("DEV_MODE") == "true",
		LogLevel: getEnvWithDefault("LOG_LEVEL", "info"),
		Port:     getEnvWithDefault("PORT", "8080"),

		FrontendURL:   frontend,
		PublicBaseURL: getEnvWithDefault("PUBLIC_BASE_URL", frontend),

		AccountsTable:      getEnvWithDefault("CLOUD_ACCOUNTS_TABLE", "CloudAccounts"),
		MetadataTable:      getEnvWithDefault("FILE_METADATA_TABLE", "FileMetadata"),
		NotificationsTable: getEnvWithDefault("NOTIFICATIONS_TABLE", "Notifications"),
		KMSKeyID:           getEnvWithDefault("KMS_KEY_ID", "alias/cloudcaddy-token-key"),

		GoogleClientID:          os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecretParam: getEnvWithDefault("GOOGLE_CLIENT_SECRET_PARAM", secret.GoogleClientSecretParam),
		GoogleRedirectURL:       getEnvWithDefault("GOOGLE_REDIRECT_URL", frontend+"/api/auth/google/callback"),
		DropboxAppKey:           os.Getenv("DROPBOX_APP_KEY"),
		DropboxAppSecretParam:   getEnvWithDefault("DROPBOX_APP_SECRET_PARAM", secret.DropboxAppSecretParam),
		JWTSecretParam:          getEnvWithDefault("JWT_SECRET_PARAM", secret.JWTSecretParam),
		OriginVerifyParam:       getEnvWithDefault("API_GATEWAY_SECRET_PARAM", secret.OriginVerifyParam),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		VendorCallTimeout:      getEnvDuration("VENDOR_CALL_TIMEOUT", 30*time.Second),
		NotificationCacheTTL:   getEnvDuration("NOTIFICATION_CACHE_TTL", 60*time.Second),
		AggregationConcurrency: getEnvInt("AGGREGATION_CONCURRENCY", 4),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20),
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("45s") or plain seconds ("45").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
