package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	// Reporting currency for all billing arithmetic (single-currency).
	ReportingCurrency string

	// DataEncryptionKey is the 32-byte secret for field-level encryption.
	DataEncryptionKey string

	// PDF rendering and artifact storage.
	PDFSidecarURL string
	PDFStorageDir string
	PDFS3Bucket   string
	AWSRegion     string

	// Email gateway. SendGrid is primary; SES is the fallback sender.
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SESFromName       string

	AdminJWTSecret string

	// Effect delivery loop.
	EffectPollInterval time.Duration
	EffectBatchSize    int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		ReportingCurrency: getEnv("REPORTING_CURRENCY", "GBP"),
		DataEncryptionKey: getEnv("DATA_ENCRYPTION_KEY", ""),

		PDFSidecarURL: getEnv("PDF_SIDECAR_URL", "http://localhost:3000"),
		PDFStorageDir: getEnv("PDF_STORAGE_DIR", "./data/invoices"),
		PDFS3Bucket:   getEnv("PDF_S3_BUCKET", ""),
		AWSRegion:     getEnv("AWS_REGION", "eu-west-2"),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Bridges Physiotherapy"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "Bridges Physiotherapy"),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		EffectPollInterval: getEnvAsDuration("EFFECT_POLL_INTERVAL", 5*time.Second),
		EffectBatchSize:    getEnvAsInt("EFFECT_BATCH_SIZE", 20),
	}
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
