// Package config loads server settings from the environment, reading a
// .env file first when one is present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DevJWTSecret is used outside production when JWT_SECRET is unset.
const DevJWTSecret = "bailago-dev-secret"

// Config holds every setting of the server.
type Config struct {
	// Env is "development" or "production".
	Env      string
	Port     int
	LogLevel slog.Level

	// DBPath is the SQLite snapshot file. Empty keeps everything in memory.
	DBPath string

	JWTSecret string
	JWTTTL    time.Duration

	SweepInterval    time.Duration
	SnapshotInterval time.Duration
	BcryptCost       int
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads .env files (if any) and then the environment.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, which has the signature of
// os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, fallback string) string {
		if v, _ := lookup(key); strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return fallback
	}

	cfg := &Config{
		Env:       strings.ToLower(get("ENV", "development")),
		DBPath:    get("DB_PATH", "./data/bailago.db"),
		JWTSecret: get("JWT_SECRET", ""),
		LogLevel:  ParseLevel(get("LOG_LEVEL", "info")),
	}
	// DB_PATH set to an empty value disables snapshots.
	if v, ok := lookup("DB_PATH"); ok && strings.TrimSpace(v) == "" {
		cfg.DBPath = ""
	}

	var err error
	if cfg.Port, err = strconv.Atoi(get("PORT", "8080")); err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	if cfg.BcryptCost, err = strconv.Atoi(get("BCRYPT_COST", "10")); err != nil {
		return nil, fmt.Errorf("invalid BCRYPT_COST: %w", err)
	}
	if cfg.JWTTTL, err = time.ParseDuration(get("JWT_TTL", "168h")); err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL: %w", err)
	}
	if cfg.SweepInterval, err = time.ParseDuration(get("SWEEP_INTERVAL", "24h")); err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
	}
	if cfg.SnapshotInterval, err = time.ParseDuration(get("SNAPSHOT_INTERVAL", "5m")); err != nil {
		return nil, fmt.Errorf("invalid SNAPSHOT_INTERVAL: %w", err)
	}

	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			return nil, errors.New("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = DevJWTSecret
	}
	if cfg.SweepInterval <= 0 || cfg.SnapshotInterval <= 0 {
		return nil, errors.New("SWEEP_INTERVAL and SNAPSHOT_INTERVAL must be positive")
	}

	return cfg, nil
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything
// else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
