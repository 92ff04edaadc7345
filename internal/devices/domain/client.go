package devices

import (
	"context"
	"time"
)

// Client is the capability set a manufacturer integration must provide.
// Implementations resolve a valid token before every call and translate the
// vendor wire format into the canonical model.
type Client interface {
	Manufacturer() string
	GetPatientDevices(ctx context.Context, patientID string) ([]PatientDevice, error)
	GetDeviceReadings(ctx context.Context, deviceID string, start, end time.Time) ([]Reading, error)
	GetRecentReadings(ctx context.Context, deviceID string, hours int) ([]Reading, error)
	GetDeviceAlerts(ctx context.Context, deviceID string) ([]Alert, error)
	AcknowledgeAlert(ctx context.Context, alertID, acknowledgedBy string) (bool, error)
	GetDeviceStatus(ctx context.Context, deviceID string) (map[string]any, error)
}
