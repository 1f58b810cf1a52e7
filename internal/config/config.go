// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the database and caches (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	Channels   ChannelsConfig
	Export     ExportConfig
	Conversion ConversionConfig
	Runs       RunsConfig
}

// ChannelsConfig holds channel resolver settings
type ChannelsConfig struct {
	CSVPath          string // Optional upstream mapping; empty uses the database only
	RuleCachePath    string
	NameThreshold    int
	AcronymThreshold int
	RefreshSchedule  string // Six-field cron spec, empty disables refresh
}

// ExportConfig holds the S3-compatible bucket for unresolved-name exports
// and database backups
type ExportConfig struct {
	S3Bucket    string
	S3Prefix    string
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string

	BackupSchedule string // Database backups to the same bucket, empty disables
}

// Enabled reports whether a bucket is configured
func (c ExportConfig) Enabled() bool {
	return c.S3Bucket != ""
}

// ConversionConfig points at the exchange rate and deflator table
type ConversionConfig struct {
	CSVPath string // Empty means values are used as reported
}

// RunsConfig holds stored dataset retention
type RunsConfig struct {
	Retention       time.Duration
	CleanupSchedule string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("CF_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnvAsInt("CF_PORT", 8080),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		Channels: ChannelsConfig{
			CSVPath:          getEnv("CF_CHANNELS_CSV", ""),
			RuleCachePath:    getEnv("CF_RULE_CACHE", filepath.Join(absDataDir, "cache", "channel_rules.msgpack")),
			NameThreshold:    getEnvAsInt("CF_FUZZY_NAME_THRESHOLD", 90),
			AcronymThreshold: getEnvAsInt("CF_FUZZY_ACRONYM_THRESHOLD", 95),
			RefreshSchedule:  getEnv("CF_CATALOGUE_REFRESH", "0 0 3 * * *"),
		},
		Export: ExportConfig{
			S3Bucket:    getEnv("CF_EXPORT_S3_BUCKET", ""),
			S3Prefix:    getEnv("CF_EXPORT_S3_PREFIX", "channels"),
			S3Endpoint:  getEnv("CF_EXPORT_S3_ENDPOINT", ""),
			S3Region:    getEnv("CF_EXPORT_S3_REGION", ""),
			S3AccessKey: getEnv("CF_EXPORT_S3_ACCESS_KEY", ""),
			S3SecretKey: getEnv("CF_EXPORT_S3_SECRET_KEY", ""),

			BackupSchedule: getEnv("CF_BACKUP_SCHEDULE", "0 0 1 * * *"),
		},
		Conversion: ConversionConfig{
			CSVPath: getEnv("CF_CONVERSION_CSV", ""),
		},
		Runs: RunsConfig{
			Retention:       getEnvAsDuration("CF_RUN_RETENTION", 30*24*time.Hour),
			CleanupSchedule: getEnv("CF_RUN_CLEANUP", "0 30 4 * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DatabasePath returns the location of the engine database
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "engine.db")
}

// Validate checks that settings are usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	for name, v := range map[string]int{
		"CF_FUZZY_NAME_THRESHOLD":    c.Channels.NameThreshold,
		"CF_FUZZY_ACRONYM_THRESHOLD": c.Channels.AcronymThreshold,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s must be between 0 and 100, got %d", name, v)
		}
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range map[string]string{
		"CF_CATALOGUE_REFRESH": c.Channels.RefreshSchedule,
		"CF_RUN_CLEANUP":       c.Runs.CleanupSchedule,
		"CF_BACKUP_SCHEDULE":   c.Export.BackupSchedule,
	} {
		if spec == "" {
			continue
		}
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", name, spec, err)
		}
	}

	if c.Runs.Retention < 0 {
		return fmt.Errorf("run retention cannot be negative")
	}
	if (c.Export.S3AccessKey == "") != (c.Export.S3SecretKey == "") {
		return fmt.Errorf("CF_EXPORT_S3_ACCESS_KEY and CF_EXPORT_S3_SECRET_KEY must be set together")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
