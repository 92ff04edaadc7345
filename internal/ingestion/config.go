// Package ingestion pulls device data from registered manufacturer clients,
// validates it, and writes readings and alerts to a storage sink.
package ingestion

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config controls the ingestion pipeline.
type Config struct {
	BatchSize                int           `yaml:"batch_size"`
	RetryAttempts            int           `yaml:"retry_attempts"`
	RetryDelay               time.Duration `yaml:"retry_delay"`
	MaxWorkers               int           `yaml:"max_workers"`
	ValidationEnabled        bool          `yaml:"validation_enabled"`
	DuplicateCheckWindow     time.Duration `yaml:"duplicate_check_window"`
	AlertThresholdViolations bool          `yaml:"alert_threshold_violations"`
	Interval                 time.Duration `yaml:"interval"`
	PatientIDs               []string      `yaml:"patient_ids"`
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:                100,
		RetryAttempts:            3,
		RetryDelay:               5 * time.Second,
		MaxWorkers:               4,
		ValidationEnabled:        true,
		DuplicateCheckWindow:     24 * time.Hour,
		AlertThresholdViolations: true,
		Interval:                 time.Hour,
	}
}

// LoadConfig loads config from yaml or env. The yaml file named by
// INGESTION_CONFIG, when set, overrides the defaults; env vars fill
// whatever the file left unset.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("INGESTION_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.BatchSize = getenvIntDefault("INGESTION_BATCH_SIZE", cfg.BatchSize)
	cfg.RetryAttempts = getenvIntDefault("INGESTION_RETRY_ATTEMPTS", cfg.RetryAttempts)
	cfg.RetryDelay = getenvDuration("INGESTION_RETRY_DELAY", cfg.RetryDelay)
	cfg.MaxWorkers = getenvIntDefault("INGESTION_MAX_WORKERS", cfg.MaxWorkers)
	cfg.ValidationEnabled = getenvBoolDefault("INGESTION_VALIDATION_ENABLED", cfg.ValidationEnabled)
	cfg.DuplicateCheckWindow = getenvDuration("INGESTION_DUPLICATE_CHECK_WINDOW", cfg.DuplicateCheckWindow)
	cfg.AlertThresholdViolations = getenvBoolDefault("INGESTION_ALERT_THRESHOLD_VIOLATIONS", cfg.AlertThresholdViolations)
	cfg.Interval = getenvDuration("INGESTION_INTERVAL", cfg.Interval)
	if len(cfg.PatientIDs) == 0 {
		cfg.PatientIDs = splitCSV(os.Getenv("INGESTION_PATIENT_IDS"))
	}

	if cfg.BatchSize <= 0 {
		return cfg, errors.New("ingestion: batch size must be positive")
	}
	if cfg.MaxWorkers <= 0 {
		return cfg, errors.New("ingestion: max workers must be positive")
	}
	return cfg, nil
}

func getenvIntDefault(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return value
}

func getenvBoolDefault(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return value
}

func getenvDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return value
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
