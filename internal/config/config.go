package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/congo-pay/txengine/internal/ledger"
)

const (
	defaultLogLevel      = "info"
	defaultLogFormat     = "text"
	defaultOutcomeStream = "ledger:outcomes"
	defaultStreamMaxLen  = 100_000
	defaultExportTimeout = 30 * time.Second
	maxPrecision         = 16
	precisionEnvVar      = "LEDGER_PRECISION"
	streamMaxLenEnvVar   = "OUTCOME_STREAM_MAXLEN"
	exportSecondsEnvVar  = "EXPORT_TIMEOUT_SECONDS"
	exportDurationEnvVar = "EXPORT_TIMEOUT"
)

// Config captures runtime configuration loaded from environment variables.
type Config struct {
	LogLevel  string
	LogFormat string
	// Precision is the number of fractional digits kept for amounts.
	Precision int32
	// DatabaseURL enables the Postgres snapshot export when set.
	DatabaseURL string
	// RedisURL enables publishing outcomes to a Redis stream when set.
	RedisURL      string
	OutcomeStream string
	StreamMaxLen  int64
	ExportTimeout time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogFormat:     strings.ToLower(getEnv("LOG_FORMAT", defaultLogFormat)),
		Precision:     ledger.DefaultPrecision,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		OutcomeStream: getEnv("OUTCOME_STREAM", defaultOutcomeStream),
		StreamMaxLen:  defaultStreamMaxLen,
		ExportTimeout: defaultExportTimeout,
	}

	if v := os.Getenv(precisionEnvVar); v != "" {
		places, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", precisionEnvVar, err)
		}
		cfg.Precision = int32(places)
	}

	if v := os.Getenv(streamMaxLenEnvVar); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", streamMaxLenEnvVar, err)
		}
		cfg.StreamMaxLen = n
	}

	if v := os.Getenv(exportSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", exportSecondsEnvVar, err)
		}
		cfg.ExportTimeout = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(exportDurationEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", exportDurationEnvVar, err)
		}
		cfg.ExportTimeout = d
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that may also have been overridden by flags.
func (c Config) Validate() error {
	if c.Precision < 0 || c.Precision > maxPrecision {
		return fmt.Errorf("precision must be between 0 and %d, got %d", maxPrecision, c.Precision)
	}
	if c.StreamMaxLen < 0 {
		return fmt.Errorf("%s must not be negative", streamMaxLenEnvVar)
	}
	if c.ExportTimeout <= 0 {
		return fmt.Errorf("export timeout must be positive")
	}
	if c.RedisURL != "" && c.OutcomeStream == "" {
		return fmt.Errorf("OUTCOME_STREAM must be set when REDIS_URL is set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
