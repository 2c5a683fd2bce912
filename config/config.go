package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr         string
	DBPath       string
	TokenSecret  string
	TokenTTL     time.Duration
	CORSOrigin   string
	ReadTimeout  time.Duration // 0 disables the read deadline
	WriteTimeout time.Duration
}

// Load reads configuration from the environment. The token signing secret
// has no default: the process must not start with a baked-in secret.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:         ":3000",
		DBPath:       "chatrelay.db",
		TokenTTL:     time.Hour,
		CORSOrigin:   "http://localhost:4200",
		WriteTimeout: 30 * time.Second,
	}

	if addr := os.Getenv("RELAY_ADDR"); addr != "" {
		cfg.Addr = addr
	}

	if dbPath := os.Getenv("RELAY_DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}

	if origin := os.Getenv("RELAY_CORS_ORIGIN"); origin != "" {
		cfg.CORSOrigin = origin
	}

	if ttlStr := os.Getenv("RELAY_TOKEN_TTL"); ttlStr != "" {
		if ttl, err := time.ParseDuration(ttlStr); err == nil {
			cfg.TokenTTL = ttl
		}
	}

	if timeoutStr := os.Getenv("RELAY_READ_TIMEOUT"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil {
			cfg.ReadTimeout = time.Duration(timeout) * time.Second
		}
	}

	if timeoutStr := os.Getenv("RELAY_WRITE_TIMEOUT"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil {
			cfg.WriteTimeout = time.Duration(timeout) * time.Second
		}
	}

	cfg.TokenSecret = os.Getenv("RELAY_TOKEN_SECRET")
	if cfg.TokenSecret == "" {
		return nil, errors.New("RELAY_TOKEN_SECRET must be set")
	}

	return cfg, nil
}
