package devices

import "time"

// PatientDevice describes an implanted device registered to a patient.
// DeviceID is globally unique across manufacturers.
type PatientDevice struct {
	DeviceID          string         `json:"device_id"`
	PatientID         string         `json:"patient_id"`
	Manufacturer      string         `json:"manufacturer"`
	Model             string         `json:"model"`
	DeviceType        DeviceType     `json:"device_type"`
	ImplantDate       time.Time      `json:"implant_date"`
	LastCommunication time.Time      `json:"last_communication,omitempty"`
	BatteryLevel      *float64       `json:"battery_level,omitempty"`
	Status            DeviceStatus   `json:"status"`
	Settings          map[string]any `json:"settings,omitempty"`
}
