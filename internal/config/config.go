package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the daemon's configuration.
type Config struct {
	DatabasePath  string
	Port          int
	LogLevel      string
	Environment   string
	SweepCronSpec string
}

// Load reads configuration from environment variables, with a .env file as a
// fallback (existing variables are not overridden).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabasePath:  "data.db",
		Port:          3000,
		LogLevel:      "info",
		Environment:   "development",
		SweepCronSpec: "@every 1m",
	}

	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid PORT %q", v)
		}
		cfg.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Environment = strings.ToLower(v)
	}
	if v := os.Getenv("SWEEP_CRON_SPEC"); v != "" {
		cfg.SweepCronSpec = v
	}

	return cfg, nil
}
