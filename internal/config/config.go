package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds application configuration
type Config struct {
	Port           string
	DBConn         string
	LogLevel       string
	JWTSecret      string
	AdminAccountID int64
	PaystackURL    string
	PaystackSecret string
	SMTPHost       string
	SMTPPort       string
	SMTPUsername   string
	SMTPPassword   string
	SenderEmail    string
	InterestCron   string
	InterestRate   string
	FeeOnDayOne    bool
}

// NewConfig loads configuration from environment variables. The admin/pool
// account id is required and has no default: every pooled-track transfer
// needs it as counterparty, so a missing value is a startup error rather
// than a per-request surprise.
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		DBConn:         getEnv("DB_CONN", "host=localhost port=5432 user=mdbx password=mdbx dbname=mdbx sslmode=disable"),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:      getEnv("JWT_SECRET", "secret"),
		PaystackURL:    getEnv("PAYSTACK_URL", "https://api.paystack.co"),
		PaystackSecret: getEnv("PAYSTACK_SECRET", ""),
		SMTPHost:       getEnv("SMTP_HOST", ""),
		SMTPPort:       getEnv("SMTP_PORT", "587"),
		SMTPUsername:   getEnv("SMTP_USERNAME", ""),
		SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
		SenderEmail:    getEnv("SENDER_EMAIL", "no-reply@mdbx.example"),
		InterestCron:   getEnv("INTEREST_CRON", ""),
		InterestRate:   getEnv("INTEREST_RATE", ""),
		FeeOnDayOne:    getEnv("FEE_ON_DAY_ONE", "false") == "true",
	}

	raw, exists := os.LookupEnv("ADMIN_ACCOUNT_ID")
	if !exists || raw == "" {
		return nil, fmt.Errorf("ADMIN_ACCOUNT_ID is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("ADMIN_ACCOUNT_ID must be a positive integer, got %q", raw)
	}
	cfg.AdminAccountID = id

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
