package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/dreams-saver/internal/server"
)

// loadConfig reads the server configuration through getenv so tests can
// supply a map instead of the process environment.
func loadConfig(getenv func(string) string) (server.Config, error) {
	cfg := server.Config{
		DBDriver:              stringOr(getenv("DB_DRIVER"), server.DriverSQLite),
		DBPath:                stringOr(getenv("DB_PATH"), "data/dreams.db"),
		DatabaseURL:           getenv("DATABASE_URL"),
		JWTSecret:             getenv("SUPABASE_JWT_SECRET"),
		JWKSURL:               getenv("SUPABASE_JWKS_URL"),
		JWTIssuer:             getenv("SUPABASE_JWT_ISSUER"),
		GeminiAPIKey:          getenv("GEMINI_API_KEY"),
		GeminiModel:           stringOr(getenv("GEMINI_MODEL"), "gemini-1.5-pro"),
		StripeSecretKey:       getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:   getenv("STRIPE_WEBHOOK_SECRET"),
		StripePriceID:         getenv("STRIPE_PRICE_ID"),
		AppURL:                stringOr(getenv("APP_URL"), "http://localhost:3000"),
		SendGridAPIKey:        getenv("SENDGRID_API_KEY"),
		NotifyFromEmail:       getenv("NOTIFY_FROM_EMAIL"),
		AdminTokenHash:        getenv("ADMIN_TOKEN_HASH"),
		GenerationTimeout:     30 * time.Second,
		GenerationConcurrency: 4,
		InsightRatePerMinute:  6,
		Port:                  8080,
	}

	var err error
	if cfg.Port, err = intOr(getenv, "PORT", cfg.Port); err != nil {
		return cfg, err
	}
	if cfg.GenerationConcurrency, err = intOr(getenv, "GENERATION_CONCURRENCY", cfg.GenerationConcurrency); err != nil {
		return cfg, err
	}
	if cfg.InsightRatePerMinute, err = intOr(getenv, "INSIGHT_RATE_PER_MINUTE", cfg.InsightRatePerMinute); err != nil {
		return cfg, err
	}
	if v := getenv("GENERATION_TIMEOUT"); v != "" {
		if cfg.GenerationTimeout, err = time.ParseDuration(v); err != nil {
			return cfg, fmt.Errorf("invalid GENERATION_TIMEOUT %q: %w", v, err)
		}
	}

	if cfg.StripeSecretKey != "" && (cfg.StripeWebhookSecret == "" || cfg.StripePriceID == "") {
		return cfg, errors.New("STRIPE_WEBHOOK_SECRET and STRIPE_PRICE_ID are required when STRIPE_SECRET_KEY is set")
	}
	if cfg.SendGridAPIKey != "" && cfg.NotifyFromEmail == "" {
		return cfg, errors.New("NOTIFY_FROM_EMAIL is required when SENDGRID_API_KEY is set")
	}

	return cfg, nil
}

// parseLevel maps LOG_LEVEL to a slog level; unknown values fall back to Info.
func parseLevel(v string) slog.Level {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func stringOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func intOr(getenv func(string) string, key string, fallback int) (int, error) {
	v := getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s value %q", key, v)
	}
	return n, nil
}
