package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	devices "cardiac-monitor/internal/devices/domain"
)

func TestRunnerStopsOnCancel(t *testing.T) {
	client := &stubClient{
		manufacturer: "bsc",
		devices:      []devices.PatientDevice{testDevice("DEV-1", "bsc")},
		readings: map[string][]devices.Reading{
			"DEV-1": {sampleReading("heart_rate", floatPtr(72), "bpm")},
		},
	}
	pipeline := newTestPipeline(t, newStubSink(), client)
	runner, err := NewRunner(pipeline, []string{"PAT-1"}, 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Start(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not stop after cancel")
	}
}

func TestRunCycleAggregatesPatients(t *testing.T) {
	client := &stubClient{
		manufacturer: "bsc",
		devices:      []devices.PatientDevice{testDevice("DEV-1", "bsc")},
		readings: map[string][]devices.Reading{
			"DEV-1": {sampleReading("heart_rate", floatPtr(72), "bpm")},
		},
	}
	pipeline := newTestPipeline(t, newStubSink(), client)
	runner, err := NewRunner(pipeline, []string{"PAT-1", "PAT-2"}, time.Hour, nil)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	stats, err := runner.runCycle(context.Background())
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	// The second patient sees the same device; its reading deduplicates.
	if stats.TotalReadings != 2 || stats.SuccessfulReadings != 1 || stats.DuplicateReadings != 1 {
		t.Fatalf("unexpected aggregate stats: %+v", stats)
	}
	if stats.CompletedAt.IsZero() {
		t.Fatalf("expected completion timestamp")
	}
}

func TestNewRunnerRequiresPipeline(t *testing.T) {
	if _, err := NewRunner(nil, nil, time.Hour, nil); err == nil {
		t.Fatalf("expected error for nil pipeline")
	}
}
