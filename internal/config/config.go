package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port      string
	Env       string
	DBSource  string
	StaticDir string

	// PayHero gateway parameters. These are static deployment settings,
	// not per-request data.
	PayHeroBaseURL string
	AuthToken      string
	APIUsername    string
	APIPassword    string
	ChannelID      int64
	Provider       string
	NetworkCode    string
	CallbackURL    string
	CredentialID   string
	GatewayTimeout time.Duration

	// Pending-payment bookkeeping.
	PendingBackend string // "memory" or "redis"
	RedisURL       string
	PendingMaxAge  time.Duration
	SweepInterval  time.Duration
}

func Load() (*Config, error) {
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	cfg := &Config{
		Port:           getEnv("SERVER_PORT", "3002"),
		Env:            getEnv("ENVIRONMENT", "development"),
		DBSource:       dbSource,
		StaticDir:      getEnv("STATIC_DIR", "./public"),
		PayHeroBaseURL: getEnv("PAYHERO_API_URL", "https://backend.payhero.co.ke/api/v2"),
		AuthToken:      os.Getenv("BASIC_AUTH_TOKEN"),
		APIUsername:    os.Getenv("PAYHERO_API_USERNAME"),
		APIPassword:    os.Getenv("PAYHERO_API_PASSWORD"),
		Provider:       getEnv("PROVIDER", "sasapay"),
		NetworkCode:    getEnv("NETWORK_CODE", "63902"),
		CallbackURL:    os.Getenv("CALLBACK_URL"),
		CredentialID:   os.Getenv("CREDENTIAL_ID"),
		PendingBackend: getEnv("PENDING_BACKEND", "memory"),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379"),
	}

	if cfg.AuthToken == "" && (cfg.APIUsername == "" || cfg.APIPassword == "") {
		return nil, fmt.Errorf("either BASIC_AUTH_TOKEN or PAYHERO_API_USERNAME and PAYHERO_API_PASSWORD are required")
	}
	if cfg.PendingBackend != "memory" && cfg.PendingBackend != "redis" {
		return nil, fmt.Errorf("PENDING_BACKEND must be \"memory\" or \"redis\", got %q", cfg.PendingBackend)
	}

	channelID, err := getEnvInt64("CHANNEL_ID", 1692)
	if err != nil {
		return nil, err
	}
	cfg.ChannelID = channelID

	cfg.GatewayTimeout, err = getEnvDuration("GATEWAY_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.PendingMaxAge, err = getEnvDuration("PENDING_MAX_AGE", time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.SweepInterval, err = getEnvDuration("SWEEP_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
