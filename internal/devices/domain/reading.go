package devices

import (
	"strings"
	"time"
)

// DeviceType classifies a cardiac implant.
type DeviceType string

const (
	DeviceTypePacemaker     DeviceType = "pacemaker"
	DeviceTypeICD           DeviceType = "icd"
	DeviceTypeCRT           DeviceType = "crt"
	DeviceTypeLoopRecorder  DeviceType = "loop_recorder"
	DeviceTypeRemoteMonitor DeviceType = "remote_monitor"
)

// DeviceStatus is the operational status of a device or reading.
type DeviceStatus string

const (
	StatusNormal      DeviceStatus = "normal"
	StatusWarning     DeviceStatus = "warning"
	StatusCritical    DeviceStatus = "critical"
	StatusOffline     DeviceStatus = "offline"
	StatusMaintenance DeviceStatus = "maintenance"
)

// ParseDeviceType maps a raw value onto a DeviceType, falling back to the
// given default for unknown values so one bad field never discards a record.
func ParseDeviceType(raw string, fallback DeviceType) DeviceType {
	switch DeviceType(strings.ToLower(strings.TrimSpace(raw))) {
	case DeviceTypePacemaker, DeviceTypeICD, DeviceTypeCRT, DeviceTypeLoopRecorder, DeviceTypeRemoteMonitor:
		return DeviceType(strings.ToLower(strings.TrimSpace(raw)))
	default:
		return fallback
	}
}

// ParseDeviceStatus maps a raw value onto a DeviceStatus with a fallback.
func ParseDeviceStatus(raw string, fallback DeviceStatus) DeviceStatus {
	switch DeviceStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusNormal, StatusWarning, StatusCritical, StatusOffline, StatusMaintenance:
		return DeviceStatus(strings.ToLower(strings.TrimSpace(raw)))
	default:
		return fallback
	}
}

// Reading is a single standardized device measurement. Immutable once
// constructed; identity for deduplication is (DeviceID, ReadingType, Timestamp).
type Reading struct {
	DeviceID     string         `json:"device_id"`
	PatientID    string         `json:"patient_id"`
	Manufacturer string         `json:"manufacturer"`
	ReadingType  string         `json:"reading_type"`
	Value        *float64       `json:"value"`
	Unit         string         `json:"unit"`
	Timestamp    time.Time      `json:"timestamp"`
	DeviceType   DeviceType     `json:"device_type"`
	Status       DeviceStatus   `json:"status"`
	RawData      map[string]any `json:"raw_data,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// DedupKey returns the duplicate boundary for a reading.
func (r Reading) DedupKey() string {
	return r.DeviceID + "|" + r.ReadingType + "|" + r.Timestamp.UTC().Format(time.RFC3339Nano)
}
