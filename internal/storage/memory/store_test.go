package memory

import (
	"context"
	"testing"
	"time"

	devices "cardiac-monitor/internal/devices/domain"
)

func floatPtr(v float64) *float64 { return &v }

func reading(deviceID, readingType string, ts time.Time) devices.Reading {
	return devices.Reading{
		DeviceID:    deviceID,
		PatientID:   "PAT-1",
		ReadingType: readingType,
		Value:       floatPtr(72),
		Unit:        "bpm",
		Timestamp:   ts,
	}
}

func TestStoreReadingsDeduplicates(t *testing.T) {
	store := NewStore()
	ts := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	batch := []devices.Reading{
		reading("DEV-1", "heart_rate", ts),
		reading("DEV-1", "heart_rate", ts),
		reading("DEV-1", "heart_rate", ts.Add(time.Minute)),
	}
	stored, err := store.StoreReadings(context.Background(), batch)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if stored != 2 {
		t.Fatalf("expected 2 new rows, got %d", stored)
	}
	stored, err = store.StoreReadings(context.Background(), batch)
	if err != nil {
		t.Fatalf("re-store: %v", err)
	}
	if stored != 0 {
		t.Fatalf("expected 0 new rows on re-ingestion, got %d", stored)
	}
}

func TestStoreReadingsSkipsNilValue(t *testing.T) {
	store := NewStore()
	bad := reading("DEV-1", "heart_rate", time.Now())
	bad.Value = nil
	stored, err := store.StoreReadings(context.Background(), []devices.Reading{bad})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if stored != 0 {
		t.Fatalf("expected nil-value reading skipped, got %d", stored)
	}
}

func TestStoreAlertsDeduplicatesByID(t *testing.T) {
	store := NewStore()
	alerts := []devices.Alert{
		{AlertID: "AL-1", PatientID: "PAT-1", Severity: devices.SeverityHigh},
		{AlertID: "AL-1", PatientID: "PAT-1", Severity: devices.SeverityHigh},
		{AlertID: "AL-2", PatientID: "PAT-1", Severity: devices.SeverityLow},
	}
	stored, err := store.StoreAlerts(context.Background(), alerts)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if stored != 2 {
		t.Fatalf("expected 2 alerts stored, got %d", stored)
	}
}

func TestListRecentReadingsOrdersNewestFirst(t *testing.T) {
	store := NewStore()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	batch := []devices.Reading{
		reading("DEV-1", "heart_rate", base),
		reading("DEV-1", "heart_rate", base.Add(2*time.Hour)),
		reading("DEV-1", "heart_rate", base.Add(time.Hour)),
		reading("DEV-2", "heart_rate", base.Add(3*time.Hour)),
	}
	if _, err := store.StoreReadings(context.Background(), batch); err != nil {
		t.Fatalf("store: %v", err)
	}
	result, err := store.ListRecentReadings(context.Background(), "DEV-1", base)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("expected 3 readings for DEV-1, got %d", len(result))
	}
	if !result[0].Timestamp.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("expected newest first, got %s", result[0].Timestamp)
	}
}

func TestListOpenAlertsExcludesResolved(t *testing.T) {
	store := NewStore()
	alerts := []devices.Alert{
		{AlertID: "AL-1", PatientID: "PAT-1", Timestamp: time.Now()},
		{AlertID: "AL-2", PatientID: "PAT-1", Resolved: true, Timestamp: time.Now()},
		{AlertID: "AL-3", PatientID: "PAT-2", Timestamp: time.Now()},
	}
	if _, err := store.StoreAlerts(context.Background(), alerts); err != nil {
		t.Fatalf("store: %v", err)
	}
	open, err := store.ListOpenAlerts(context.Background(), "PAT-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 1 || open[0].AlertID != "AL-1" {
		t.Fatalf("unexpected open alerts: %v", open)
	}
}

func TestStoreRespectsCancelledContext(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.StoreReadings(ctx, []devices.Reading{reading("DEV-1", "heart_rate", time.Now())}); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}
