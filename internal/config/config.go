package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	// DatabaseURL selects the PostgreSQL store; empty falls back to the
	// in-memory store.
	DatabaseURL string

	// Upstream provider settings.
	UpstreamBaseURL       string
	UpstreamRetryAttempts int
	UpstreamRetryWait     time.Duration
	HTTPTimeout           time.Duration

	// RefreshInterval controls how often the refresh loop re-fetches every
	// location's forecast; RefreshPageSize is the batch granularity.
	RefreshInterval time.Duration
	RefreshPageSize int

	// MonitorInterval controls the store health/staleness report.
	MonitorInterval time.Duration

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.UpstreamBaseURL = getenvDefault("UPSTREAM_BASE_URL", "https://api.open-meteo.com/v1/forecast")
	cfg.UpstreamRetryAttempts = getenvInt("UPSTREAM_RETRY_ATTEMPTS", 3)

	retryWait, err := getenvDuration("UPSTREAM_RETRY_WAIT", "10s")
	if err != nil {
		return nil, err
	}
	cfg.UpstreamRetryWait = retryWait

	httpTimeout, err := getenvDuration("HTTP_TIMEOUT", "20s")
	if err != nil {
		return nil, err
	}
	cfg.HTTPTimeout = httpTimeout

	refreshInterval, err := getenvDuration("REFRESH_INTERVAL", "15m")
	if err != nil {
		return nil, err
	}
	cfg.RefreshInterval = refreshInterval
	cfg.RefreshPageSize = getenvInt("REFRESH_PAGE_SIZE", 100)

	monitorInterval, err := getenvDuration("MONITOR_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}
	cfg.MonitorInterval = monitorInterval

	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
