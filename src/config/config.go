package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type AppConfig struct {
	JWTSecret    string
	Port         string
	DatabasePath string
	LogLevel     string

	FeedABaseURL string
	FeedBBaseURL string
	FeedAAPIKey  string
	FeedBAPIKey  string
	FeedPageSize int

	// Matching knobs. Windows are in minutes; the payout tolerance is the
	// maximum absolute difference for two amounts to be considered equal.
	MatchWindowMinutes      float64
	AdjustmentWindowMinutes float64
	PayoutTolerance         decimal.Decimal
	CountryCallingCode      string

	SyncInterval     time.Duration
	SyncLookbackDays int

	AlertErrorThreshold  int
	MailgunDomain        string
	MailgunPrivateAPIKey string
	AlertSenderEmail     string
	AlertRecipientEmail  string
}

var Cfg *AppConfig

func LoadConfig() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, relying on OS environment variables and defaults.")
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	jwtSecret := getEnv("JWT_SECRET", "an-insecure-development-only-secret-at-least-32-bytes!")
	if jwtSecret == "an-insecure-development-only-secret-at-least-32-bytes!" {
		log.Println("WARNING: Using default insecure JWT_SECRET. Set JWT_SECRET environment variable for production.")
	}

	payoutToleranceStr := getEnv("PAYOUT_TOLERANCE", "0.01")
	payoutTolerance, err := decimal.NewFromString(payoutToleranceStr)
	if err != nil {
		log.Printf("WARNING: Invalid PAYOUT_TOLERANCE %q. Using default 0.01. Error: %v", payoutToleranceStr, err)
		payoutTolerance = decimal.RequireFromString("0.01")
	}

	Cfg = &AppConfig{
		JWTSecret:    jwtSecret,
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./callrecon.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		FeedABaseURL: getEnv("FEED_A_BASE_URL", "http://localhost:9001"),
		FeedBBaseURL: getEnv("FEED_B_BASE_URL", "http://localhost:9002"),
		FeedAAPIKey:  getEnv("FEED_A_API_KEY", ""),
		FeedBAPIKey:  getEnv("FEED_B_API_KEY", ""),
		FeedPageSize: getEnvAsInt("FEED_PAGE_SIZE", 500),

		MatchWindowMinutes:      getEnvAsFloat("MATCH_WINDOW_MINUTES", 30),
		AdjustmentWindowMinutes: getEnvAsFloat("ADJUSTMENT_WINDOW_MINUTES", 30),
		PayoutTolerance:         payoutTolerance,
		CountryCallingCode:      getEnv("COUNTRY_CALLING_CODE", "1"),

		SyncInterval:     getEnvAsDuration("SYNC_INTERVAL", time.Hour),
		SyncLookbackDays: getEnvAsInt("SYNC_LOOKBACK_DAYS", 10),

		AlertErrorThreshold:  getEnvAsInt("ALERT_ERROR_THRESHOLD", 5),
		MailgunDomain:        getEnv("MAILGUN_DOMAIN", ""),
		MailgunPrivateAPIKey: getEnv("MAILGUN_PRIVATE_API_KEY", ""),
		AlertSenderEmail:     getEnv("ALERT_SENDER_EMAIL", "noreply@example.com"),
		AlertRecipientEmail:  getEnv("ALERT_RECIPIENT_EMAIL", ""),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, SyncInterval=%s, LookbackDays=%d",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.SyncInterval, Cfg.SyncLookbackDays)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		log.Printf("Integer value for %s not set or empty, using default: %d", key, fallback)
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		log.Printf("Float value for %s not set or empty, using default: %g", key, fallback)
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	log.Printf("Invalid float value for %s ('%s'), using default: %g", key, valueStr, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		log.Printf("Duration value for %s not set or empty, using default: %s", key, fallback.String())
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}
