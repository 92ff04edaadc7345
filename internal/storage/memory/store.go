// Package memory is an in-process storage sink with the same duplicate
// semantics as the PostgreSQL store. Used for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	devices "cardiac-monitor/internal/devices/domain"
)

// Store keeps readings and alerts in memory.
type Store struct {
	mu       sync.RWMutex
	readings map[string]devices.Reading
	alerts   map[string]devices.Alert
	registry map[string]devices.PatientDevice
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		readings: make(map[string]devices.Reading),
		alerts:   make(map[string]devices.Alert),
		registry: make(map[string]devices.PatientDevice),
	}
}

// StoreReadings inserts readings, skipping duplicates by
// (device_id, reading_type, timestamp). Returns the number of new rows.
func (s *Store) StoreReadings(ctx context.Context, readings []devices.Reading) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := 0
	for _, reading := range readings {
		if reading.Value == nil {
			continue
		}
		key := reading.DedupKey()
		if _, ok := s.readings[key]; ok {
			continue
		}
		s.readings[key] = reading
		stored++
	}
	return stored, nil
}

// StoreAlerts inserts alerts, skipping alert_ids already present.
func (s *Store) StoreAlerts(ctx context.Context, alerts []devices.Alert) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := 0
	for _, alert := range alerts {
		if _, ok := s.alerts[alert.AlertID]; ok {
			continue
		}
		s.alerts[alert.AlertID] = alert
		stored++
	}
	return stored, nil
}

// UpsertDevices writes the patient device registry.
func (s *Store) UpsertDevices(ctx context.Context, registry []devices.PatientDevice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, device := range registry {
		s.registry[device.DeviceID] = device
	}
	return nil
}

// ListRecentReadings returns readings for a device newer than the cutoff,
// newest first.
func (s *Store) ListRecentReadings(ctx context.Context, deviceID string, since time.Time) ([]devices.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []devices.Reading
	for _, reading := range s.readings {
		if reading.DeviceID == deviceID && !reading.Timestamp.Before(since) {
			result = append(result, reading)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	return result, nil
}

// ListOpenAlerts returns unresolved alerts for a patient, newest first.
func (s *Store) ListOpenAlerts(ctx context.Context, patientID string) ([]devices.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []devices.Alert
	for _, alert := range s.alerts {
		if alert.PatientID == patientID && !alert.Resolved {
			result = append(result, alert)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	return result, nil
}

// Counts reports the stored volumes.
func (s *Store) Counts() (readings, alerts int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings), len(s.alerts)
}
