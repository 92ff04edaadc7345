package ingestion

import (
	"testing"
	"time"
)

func TestSuccessRate(t *testing.T) {
	stats := NewStats(time.Now())
	if rate := stats.SuccessRate(); rate != 0 {
		t.Fatalf("expected 0%% for empty run, got %v", rate)
	}
	stats.TotalReadings = 4
	stats.SuccessfulReadings = 3
	if rate := stats.SuccessRate(); rate != 75 {
		t.Fatalf("expected 75%%, got %v", rate)
	}
}

func TestMergeAccumulates(t *testing.T) {
	total := NewStats(time.Now())
	total.Merge(&Stats{TotalReadings: 2, SuccessfulReadings: 1, DuplicateReadings: 1, Errors: []string{"a"}})
	total.Merge(&Stats{TotalReadings: 3, SuccessfulReadings: 3, AlertsGenerated: 2})
	total.Merge(nil)

	if total.TotalReadings != 5 || total.SuccessfulReadings != 4 {
		t.Fatalf("unexpected totals: %+v", total)
	}
	if total.DuplicateReadings != 1 || total.AlertsGenerated != 2 {
		t.Fatalf("unexpected counters: %+v", total)
	}
	if len(total.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", total.Errors)
	}
}

func TestDurationOpenRun(t *testing.T) {
	stats := NewStats(time.Now())
	if stats.Duration() != 0 {
		t.Fatalf("expected zero duration for open run")
	}
	stats.CompletedAt = stats.StartedAt.Add(3 * time.Second)
	if stats.Duration() != 3*time.Second {
		t.Fatalf("expected 3s, got %s", stats.Duration())
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.BatchSize != 100 || cfg.MaxWorkers != 4 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !cfg.ValidationEnabled || !cfg.AlertThresholdViolations {
		t.Fatalf("expected validation and alerting enabled by default: %+v", cfg)
	}
	if cfg.DuplicateCheckWindow != 24*time.Hour {
		t.Fatalf("unexpected duplicate window: %s", cfg.DuplicateCheckWindow)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("INGESTION_MAX_WORKERS", "8")
	t.Setenv("INGESTION_VALIDATION_ENABLED", "false")
	t.Setenv("INGESTION_PATIENT_IDS", "PAT-1, PAT-2")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.MaxWorkers != 8 || cfg.ValidationEnabled {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if len(cfg.PatientIDs) != 2 || cfg.PatientIDs[1] != "PAT-2" {
		t.Fatalf("unexpected patient ids: %v", cfg.PatientIDs)
	}
}
