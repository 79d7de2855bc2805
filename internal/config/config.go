package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	ServerPort string
	MySQLDSN   string
	RedisAddr  string
	RedisDB    int
	RedisPass  string
	JWTSecret  string

	// Provider gateway settings. One webhook secret per provider.
	TossBaseURL     string
	TossSecretKey   string
	IamportBaseURL  string
	IamportAPIKey   string
	WebhookSecrets  map[string]string
	ProviderTimeout time.Duration

	// Payment lifecycle settings.
	DefaultTimeoutMinutes int
	SweepInterval         string
	SweepBatchSize        int

	// External collaborators.
	DirectoryBaseURL    string
	NotificationBaseURL string

	SwaggerHost string
}

// Load builds Config from environment with sensible defaults. A local .env
// file is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		MySQLDSN:   getEnv("MYSQL_DSN", "user:password@tcp(localhost:3306)/counselpay?charset=utf8mb4&parseTime=True&loc=Local"),
		RedisAddr:  getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:    getEnvInt("REDIS_DB", 0),
		RedisPass:  os.Getenv("REDIS_PASSWORD"),
		JWTSecret:  getEnv("JWT_SECRET", "change-me"),

		TossBaseURL:    getEnv("TOSS_BASE_URL", "https://api.tosspayments.com"),
		TossSecretKey:  getEnv("TOSS_SECRET_KEY", "test_sk"),
		IamportBaseURL: getEnv("IAMPORT_BASE_URL", "https://api.iamport.kr"),
		IamportAPIKey:  getEnv("IAMPORT_API_KEY", "test_ak"),
		WebhookSecrets: map[string]string{
			"TOSS":     getEnv("TOSS_WEBHOOK_SECRET", "toss-webhook-secret"),
			"IAMPORT":  getEnv("IAMPORT_WEBHOOK_SECRET", "iamport-webhook-secret"),
			"KAKAOPAY": getEnv("KAKAOPAY_WEBHOOK_SECRET", "kakaopay-webhook-secret"),
		},
		ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second),

		DefaultTimeoutMinutes: getEnvInt("PAYMENT_TIMEOUT_MINUTES", 30),
		SweepInterval:         getEnv("SWEEP_INTERVAL", "@every 1m"),
		SweepBatchSize:        getEnvInt("SWEEP_BATCH_SIZE", 200),

		DirectoryBaseURL:    getEnv("DIRECTORY_BASE_URL", "http://localhost:8081"),
		NotificationBaseURL: getEnv("NOTIFICATION_BASE_URL", "http://localhost:8082"),

		SwaggerHost: os.Getenv("SWAGGER_HOST"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
