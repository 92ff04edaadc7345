package bostonscientific

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"cardiac-monitor/internal/auth"
	devices "cardiac-monitor/internal/devices/domain"
	"cardiac-monitor/internal/restclient"
)

// TokenSource resolves a live token before every vendor call.
type TokenSource interface {
	GetValidToken(ctx context.Context, manufacturer string) (auth.Token, error)
}

// Client is the Boston Scientific device API client.
type Client struct {
	http   *restclient.Client
	tokens TokenSource
	logger *log.Logger
	clock  auth.Clock
}

// ClientOption customizes the client.
type ClientOption func(*Client)

// WithClientClock assigns a clock.
func WithClientClock(clock auth.Clock) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewClient constructs a vendor API client.
func NewClient(httpClient *restclient.Client, tokens TokenSource, logger *log.Logger, opts ...ClientOption) (*Client, error) {
	if httpClient == nil {
		return nil, errors.New("bostonscientific: nil http client")
	}
	if tokens == nil {
		return nil, errors.New("bostonscientific: nil token source")
	}
	client := &Client{http: httpClient, tokens: tokens, logger: logger, clock: utcClock{}}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Manufacturer returns the registry key.
func (c *Client) Manufacturer() string { return Manufacturer }

// GetPatientDevices lists the patient's Boston Scientific implants.
func (c *Client) GetPatientDevices(ctx context.Context, patientID string) ([]devices.PatientDevice, error) {
	if patientID == "" {
		return nil, errors.New("bostonscientific: empty patient id")
	}
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Devices []devicePayload `json:"devices"`
	}
	endpoint := fmt.Sprintf("/patients/%s/devices", url.PathEscape(patientID))
	if err := c.http.Get(ctx, endpoint, headers, nil, &resp); err != nil {
		return nil, err
	}
	result := make([]devices.PatientDevice, 0, len(resp.Devices))
	for _, payload := range resp.Devices {
		result = append(result, payload.toDomain())
	}
	if c.logger != nil {
		c.logger.Printf("bostonscientific: devices fetched patient=%s count=%d", patientID, len(result))
	}
	return result, nil
}

// GetDeviceReadings fetches readings for a time window.
func (c *Client) GetDeviceReadings(ctx context.Context, deviceID string, start, end time.Time) ([]devices.Reading, error) {
	if deviceID == "" {
		return nil, errors.New("bostonscientific: empty device id")
	}
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("start_time", start.UTC().Format(time.RFC3339))
	query.Set("end_time", end.UTC().Format(time.RFC3339))

	var resp struct {
		Readings []json.RawMessage `json:"readings"`
	}
	endpoint := fmt.Sprintf("/devices/%s/readings", url.PathEscape(deviceID))
	if err := c.http.Get(ctx, endpoint, headers, query, &resp); err != nil {
		return nil, err
	}

	result := make([]devices.Reading, 0, len(resp.Readings))
	for _, raw := range resp.Readings {
		var payload readingPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			continue
		}
		result = append(result, payload.toDomain(deviceID, raw))
	}
	if c.logger != nil {
		c.logger.Printf("bostonscientific: readings fetched device=%s count=%d", deviceID, len(result))
	}
	return result, nil
}

// GetRecentReadings fetches readings over the trailing window. A non-positive
// hours defaults to 24.
func (c *Client) GetRecentReadings(ctx context.Context, deviceID string, hours int) ([]devices.Reading, error) {
	if hours <= 0 {
		hours = 24
	}
	end := c.clock.Now()
	start := end.Add(-time.Duration(hours) * time.Hour)
	return c.GetDeviceReadings(ctx, deviceID, start, end)
}

// GetDeviceAlerts fetches the device's native alerts.
func (c *Client) GetDeviceAlerts(ctx context.Context, deviceID string) ([]devices.Alert, error) {
	if deviceID == "" {
		return nil, errors.New("bostonscientific: empty device id")
	}
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Alerts []alertPayload `json:"alerts"`
	}
	endpoint := fmt.Sprintf("/devices/%s/alerts", url.PathEscape(deviceID))
	if err := c.http.Get(ctx, endpoint, headers, nil, &resp); err != nil {
		return nil, err
	}
	result := make([]devices.Alert, 0, len(resp.Alerts))
	for _, payload := range resp.Alerts {
		result = append(result, payload.toDomain())
	}
	return result, nil
}

// AcknowledgeAlert marks a vendor alert acknowledged.
func (c *Client) AcknowledgeAlert(ctx context.Context, alertID, acknowledgedBy string) (bool, error) {
	if alertID == "" || acknowledgedBy == "" {
		return false, errors.New("bostonscientific: alert id and acknowledger required")
	}
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return false, err
	}
	body := map[string]string{
		"acknowledged_by": acknowledgedBy,
		"acknowledged_at": c.clock.Now().Format(time.RFC3339),
	}
	endpoint := fmt.Sprintf("/alerts/%s/acknowledge", url.PathEscape(alertID))
	if err := c.http.Post(ctx, endpoint, body, headers, nil); err != nil {
		return false, err
	}
	if c.logger != nil {
		c.logger.Printf("bostonscientific: alert acknowledged alert=%s by=%s", alertID, acknowledgedBy)
	}
	return true, nil
}

// GetDeviceStatus returns the raw vendor status document.
func (c *Client) GetDeviceStatus(ctx context.Context, deviceID string) (map[string]any, error) {
	if deviceID == "" {
		return nil, errors.New("bostonscientific: empty device id")
	}
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}
	status := make(map[string]any)
	endpoint := fmt.Sprintf("/devices/%s/status", url.PathEscape(deviceID))
	if err := c.http.Get(ctx, endpoint, headers, nil, &status); err != nil {
		return nil, err
	}
	return status, nil
}

// authHeaders resolves a token and builds the bearer header. Failing to
// obtain a token fails the operation before any vendor call is attempted.
func (c *Client) authHeaders(ctx context.Context) (map[string]string, error) {
	token, err := c.tokens.GetValidToken(ctx, Manufacturer)
	if err != nil {
		return nil, err
	}
	tokenType := token.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return map[string]string{"Authorization": tokenType + " " + token.AccessToken}, nil
}

// ---- Wire format ----

type devicePayload struct {
	DeviceID          string         `json:"device_id"`
	PatientID         string         `json:"patient_id"`
	Model             string         `json:"model"`
	DeviceType        string         `json:"device_type"`
	ImplantDate       string         `json:"implant_date"`
	LastCommunication string         `json:"last_communication"`
	BatteryLevel      *float64       `json:"battery_level"`
	Status            string         `json:"status"`
	Settings          map[string]any `json:"settings"`
}

// vendor device-type vocabulary; unknown values default to pacemaker.
var deviceTypeByVendor = map[string]devices.DeviceType{
	"ICD":           devices.DeviceTypeICD,
	"Pacemaker":     devices.DeviceTypePacemaker,
	"CRT-D":         devices.DeviceTypeCRT,
	"CRT-P":         devices.DeviceTypeCRT,
	"Loop Recorder": devices.DeviceTypeLoopRecorder,
}

// vendor status vocabulary; unknown values default to normal.
var statusByVendor = map[string]devices.DeviceStatus{
	"Normal":      devices.StatusNormal,
	"Warning":     devices.StatusWarning,
	"Critical":    devices.StatusCritical,
	"Offline":     devices.StatusOffline,
	"Maintenance": devices.StatusMaintenance,
}

// vendor severity vocabulary; unknown values default to low.
var severityByVendor = map[string]devices.AlertSeverity{
	"Info":     devices.SeverityInfo,
	"Low":      devices.SeverityLow,
	"Medium":   devices.SeverityMedium,
	"High":     devices.SeverityHigh,
	"Critical": devices.SeverityCritical,
}

func (p devicePayload) toDomain() devices.PatientDevice {
	deviceType, ok := deviceTypeByVendor[p.DeviceType]
	if !ok {
		deviceType = devices.DeviceTypePacemaker
	}
	status, ok := statusByVendor[p.Status]
	if !ok {
		status = devices.StatusNormal
	}
	return devices.PatientDevice{
		DeviceID:          p.DeviceID,
		PatientID:         p.PatientID,
		Manufacturer:      Manufacturer,
		Model:             p.Model,
		DeviceType:        deviceType,
		ImplantDate:       parseVendorTime(p.ImplantDate),
		LastCommunication: parseVendorTime(p.LastCommunication),
		BatteryLevel:      p.BatteryLevel,
		Status:            status,
		Settings:          p.Settings,
	}
}

type readingPayload struct {
	PatientID       string         `json:"patient_id"`
	MeasurementType string         `json:"measurement_type"`
	Value           *float64       `json:"value"`
	Unit            string         `json:"unit"`
	Timestamp       string         `json:"timestamp"`
	DeviceType      string         `json:"device_type"`
	Status          string         `json:"status"`
	Metadata        map[string]any `json:"metadata"`
}

func (p readingPayload) toDomain(deviceID string, raw json.RawMessage) devices.Reading {
	status, ok := statusByVendor[p.Status]
	if !ok {
		status = devices.StatusNormal
	}
	deviceType, ok := deviceTypeByVendor[p.DeviceType]
	if !ok {
		deviceType = devices.DeviceTypeICD
	}
	var rawData map[string]any
	_ = json.Unmarshal(raw, &rawData)
	return devices.Reading{
		DeviceID:     deviceID,
		PatientID:    p.PatientID,
		Manufacturer: Manufacturer,
		ReadingType:  p.MeasurementType,
		Value:        p.Value,
		Unit:         p.Unit,
		Timestamp:    parseVendorTime(p.Timestamp),
		DeviceType:   deviceType,
		Status:       status,
		RawData:      rawData,
		Metadata:     p.Metadata,
	}
}

type alertPayload struct {
	AlertID        string         `json:"alert_id"`
	DeviceID       string         `json:"device_id"`
	PatientID      string         `json:"patient_id"`
	AlertType      string         `json:"alert_type"`
	Severity       string         `json:"severity"`
	Message        string         `json:"message"`
	Timestamp      string         `json:"timestamp"`
	Acknowledged   bool           `json:"acknowledged"`
	AcknowledgedBy string         `json:"acknowledged_by"`
	AcknowledgedAt string         `json:"acknowledged_at"`
	Resolved       bool           `json:"resolved"`
	ResolvedAt     string         `json:"resolved_at"`
	Metadata       map[string]any `json:"metadata"`
}

func (p alertPayload) toDomain() devices.Alert {
	severity, ok := severityByVendor[p.Severity]
	if !ok {
		severity = devices.SeverityLow
	}
	return devices.Alert{
		AlertID:        p.AlertID,
		DeviceID:       p.DeviceID,
		PatientID:      p.PatientID,
		Manufacturer:   Manufacturer,
		AlertType:      p.AlertType,
		Severity:       severity,
		Message:        p.Message,
		Timestamp:      parseVendorTime(p.Timestamp),
		Acknowledged:   p.Acknowledged,
		AcknowledgedBy: p.AcknowledgedBy,
		AcknowledgedAt: parseVendorTime(p.AcknowledgedAt),
		Resolved:       p.Resolved,
		ResolvedAt:     parseVendorTime(p.ResolvedAt),
		Metadata:       p.Metadata,
	}
}

func parseVendorTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}
