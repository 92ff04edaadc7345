package devices

import (
	"strings"
	"time"
)

// AlertSeverity grades device alerts.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// ParseAlertSeverity maps a raw value onto an AlertSeverity with a fallback.
func ParseAlertSeverity(raw string, fallback AlertSeverity) AlertSeverity {
	switch AlertSeverity(strings.ToLower(strings.TrimSpace(raw))) {
	case SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return AlertSeverity(strings.ToLower(strings.TrimSpace(raw)))
	default:
		return fallback
	}
}

// Alert is a device alert, either vendor-originated or synthesized locally
// from a threshold violation. AlertID is globally unique and is the
// deduplication key for persistence. Acknowledged/Resolved and their
// timestamps are the only mutable fields after creation.
type Alert struct {
	AlertID        string         `json:"alert_id"`
	DeviceID       string         `json:"device_id"`
	PatientID      string         `json:"patient_id"`
	Manufacturer   string         `json:"manufacturer"`
	AlertType      string         `json:"alert_type"`
	Severity       AlertSeverity  `json:"severity"`
	Message        string         `json:"message"`
	Timestamp      time.Time      `json:"timestamp"`
	Acknowledged   bool           `json:"acknowledged"`
	AcknowledgedBy string         `json:"acknowledged_by,omitempty"`
	AcknowledgedAt time.Time      `json:"acknowledged_at,omitempty"`
	Resolved       bool           `json:"resolved"`
	ResolvedAt     time.Time      `json:"resolved_at,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}
