// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Redis (rate limiting; optional)
	RedisURL string `koanf:"redis_url"`

	// JWT Authentication (admin endpoints)
	JWTSecret string `koanf:"jwt_secret"`

	// Stripe (sponsorship slot purchases; optional as a group)
	StripeAPIKey         string `koanf:"stripe_api_key"`
	StripeWebhookSecret  string `koanf:"stripe_webhook_secret"`
	SponsorSuccessURL    string `koanf:"sponsor_success_url"`
	SponsorCancelURL     string `koanf:"sponsor_cancel_url"`
	SponsorSlotPriceCents int64 `koanf:"sponsor_slot_price_cents"`

	// Ranking
	RankCalibrationPath string `koanf:"rank_calibration_path"`
	RankCollegeEnabled  bool   `koanf:"rank_college_enabled"` // College affinity bonus in relevance scoring; on unless set to false

	// Item cache
	ItemCacheTTLSeconds int `koanf:"item_cache_ttl_seconds"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL         = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret           = errors.New("JWT_SECRET is required")
	ErrMissingStripeAPIKey        = errors.New("STRIPE_API_KEY is required when Stripe is configured")
	ErrMissingStripeWebhookSecret = errors.New("STRIPE_WEBHOOK_SECRET is required when Stripe is configured")
	ErrMissingSponsorSuccessURL   = errors.New("SPONSOR_SUCCESS_URL is required when Stripe is configured")
	ErrMissingSponsorCancelURL    = errors.New("SPONSOR_CANCEL_URL is required when Stripe is configured")
	ErrInvalidPort                = errors.New("PORT must be a valid integer")
	ErrInvalidSlotPrice           = errors.New("SPONSOR_SLOT_PRICE_CENTS must be positive")
)

// Default values for non-secret configuration.
const (
	DefaultPort                  = 8080
	DefaultEnv                   = "development"
	DefaultSponsorSlotPriceCents = 49900
	DefaultItemCacheTTLSeconds   = 300
	DefaultRankCollegeEnabled    = true
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Try STUDX_PORT first, then PORT for backward compatibility
	port, portErr := getEnvIntOrDefaultMulti([]string{"STUDX_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	slotPrice, slotPriceErr := getEnvInt64OrDefault("SPONSOR_SLOT_PRICE_CENTS", k.Int64("sponsor_slot_price_cents"), DefaultSponsorSlotPriceCents)
	if slotPriceErr != nil {
		loadErrs = append(loadErrs, slotPriceErr)
	}

	cacheTTL, cacheTTLErr := getEnvIntOrDefault("ITEM_CACHE_TTL_SECONDS", k.Int("item_cache_ttl_seconds"), DefaultItemCacheTTLSeconds)
	if cacheTTLErr != nil {
		loadErrs = append(loadErrs, cacheTTLErr)
	}

	collegeEnabled := DefaultRankCollegeEnabled
	if k.Exists("rank_college_enabled") {
		collegeEnabled = k.Bool("rank_college_enabled")
	}
	if val := os.Getenv("RANK_COLLEGE_ENABLED"); val != "" {
		// Env var takes precedence over file config
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			collegeEnabled = true
		case "false", "0", "no", "off":
			collegeEnabled = false
		}
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                  port,
		Env:                   getEnvOrDefaultMulti([]string{"STUDX_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:           getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:              getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		JWTSecret:             getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		StripeAPIKey:          getEnvOrKoanf("STRIPE_API_KEY", k, "stripe_api_key"),
		StripeWebhookSecret:   getEnvOrKoanf("STRIPE_WEBHOOK_SECRET", k, "stripe_webhook_secret"),
		SponsorSuccessURL:     getEnvOrKoanf("SPONSOR_SUCCESS_URL", k, "sponsor_success_url"),
		SponsorCancelURL:      getEnvOrKoanf("SPONSOR_CANCEL_URL", k, "sponsor_cancel_url"),
		SponsorSlotPriceCents: slotPrice,
		RankCalibrationPath:   getEnvOrKoanf("RANK_CALIBRATION_PATH", k, "rank_calibration_path"),
		RankCollegeEnabled:    collegeEnabled,
		ItemCacheTTLSeconds:   cacheTTL,
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, err)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
// Note: A port value of 0 from a YAML file will fall back to the default; port 0 is not supported in YAML files.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvInt64OrDefault returns the environment variable as int64 if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed.
func getEnvInt64OrDefault(envKey string, koanfVal int64, defaultVal int64) (int64, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, err)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}

	// Stripe configuration is optional. Only validate fields if any Stripe value is set.
	if c.StripeAPIKey != "" || c.StripeWebhookSecret != "" || c.SponsorSuccessURL != "" || c.SponsorCancelURL != "" {
		if c.StripeAPIKey == "" {
			errs = append(errs, ErrMissingStripeAPIKey)
		}
		if c.StripeWebhookSecret == "" {
			errs = append(errs, ErrMissingStripeWebhookSecret)
		}
		if c.SponsorSuccessURL == "" {
			errs = append(errs, ErrMissingSponsorSuccessURL)
		}
		if c.SponsorCancelURL == "" {
			errs = append(errs, ErrMissingSponsorCancelURL)
		}
		if c.SponsorSlotPriceCents <= 0 {
			errs = append(errs, ErrInvalidSlotPrice)
		}
	}

	return errs
}

// StripeEnabled reports whether slot purchases through Stripe are configured.
func (c *Config) StripeEnabled() bool {
	return c.StripeAPIKey != "" && c.StripeWebhookSecret != ""
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                     fmt.Sprintf("%d", c.Port),
		"env":                      c.Env,
		"database_url":             maskDatabaseURL(c.DatabaseURL),
		"redis_url":                maskDatabaseURL(c.RedisURL),
		"jwt_secret":               maskSecret(c.JWTSecret),
		"stripe_api_key":           maskStripeKey(c.StripeAPIKey),
		"stripe_webhook_secret":    maskSecret(c.StripeWebhookSecret),
		"sponsor_success_url":      c.SponsorSuccessURL,
		"sponsor_cancel_url":       c.SponsorCancelURL,
		"sponsor_slot_price_cents": fmt.Sprintf("%d", c.SponsorSlotPriceCents),
		"rank_calibration_path":    c.RankCalibrationPath,
		"rank_college_enabled":     fmt.Sprintf("%t", c.RankCollegeEnabled),
		"item_cache_ttl_seconds":   fmt.Sprintf("%d", c.ItemCacheTTLSeconds),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskStripeKey masks a Stripe API key, preserving the prefix (sk_live_, sk_test_, etc.)
func maskStripeKey(s string) string {
	if s == "" {
		return "<not set>"
	}

	// Stripe keys have format like sk_live_..., sk_test_..., pk_live_..., etc.
	parts := strings.SplitN(s, "_", 3)
	if len(parts) == 3 {
		return parts[0] + "_" + parts[1] + "_****"
	}

	// Fallback to generic masking
	return maskSecret(s)
}

// maskDatabaseURL masks the password in a connection URL.
// Supports postgres://, postgresql:// and redis:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	// Look for password pattern: user:password@host
	// Simple approach: find :// and then mask between : and @
	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	// Reconstruct URL with masked password
	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
