package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all service configuration, loaded from the environment.
type Config struct {
	Port     string
	BaseURL  string
	DBPath   string
	LogLevel string

	// Magic-link token signing secret.
	AuthSecret string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeProPriceID    string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string

	SendGridAPIKey string
	FromEmail      string
	FromName       string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first if present, without overriding existing variables.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:                getenv("LAUNCHPAD_PORT", "8080"),
		DBPath:              getenv("LAUNCHPAD_DB_PATH", "launchpad.db"),
		LogLevel:            os.Getenv("LAUNCHPAD_LOG_LEVEL"),
		AuthSecret:          os.Getenv("LAUNCHPAD_AUTH_SECRET"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeProPriceID:    os.Getenv("STRIPE_PRO_PRICE_ID"),
		SendGridAPIKey:      os.Getenv("SENDGRID_API_KEY"),
		FromEmail:           getenv("LAUNCHPAD_FROM_EMAIL", "noreply@example.com"),
		FromName:            getenv("LAUNCHPAD_FROM_NAME", "Launchpad"),
	}

	cfg.BaseURL = getenv("LAUNCHPAD_BASE_URL", "http://localhost:"+cfg.Port)
	cfg.CheckoutSuccessURL = getenv("CHECKOUT_SUCCESS_URL", cfg.BaseURL+"/dashboard?checkout=success")
	cfg.CheckoutCancelURL = getenv("CHECKOUT_CANCEL_URL", cfg.BaseURL+"/pricing?checkout=canceled")

	if cfg.AuthSecret == "" {
		return Config{}, fmt.Errorf("LAUNCHPAD_AUTH_SECRET is required")
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
