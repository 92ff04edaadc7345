// Package postgres persists readings, devices, and alerts in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"time"

	devices "cardiac-monitor/internal/devices/domain"
)

// Store handles cardiac device persistence.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// NewStore constructs a store.
func NewStore(db *sql.DB, logger *log.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("postgres: nil db")
	}
	return &Store{db: db, logger: logger}, nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS device_readings (
	id BIGSERIAL PRIMARY KEY,
	device_id VARCHAR(100) NOT NULL,
	patient_id VARCHAR(100) NOT NULL,
	manufacturer VARCHAR(50) NOT NULL,
	reading_type VARCHAR(100) NOT NULL,
	value DECIMAL(10,4) NOT NULL,
	unit VARCHAR(20) NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	device_type VARCHAR(50) NOT NULL,
	status VARCHAR(20) NOT NULL,
	raw_data JSONB,
	metadata JSONB,
	created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (device_id, reading_type, timestamp)
)`,
	`CREATE INDEX IF NOT EXISTS idx_device_readings_patient ON device_readings (patient_id, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_device_readings_manufacturer ON device_readings (manufacturer, timestamp)`,
	`CREATE TABLE IF NOT EXISTS patient_devices (
	id BIGSERIAL PRIMARY KEY,
	device_id VARCHAR(100) UNIQUE NOT NULL,
	patient_id VARCHAR(100) NOT NULL,
	manufacturer VARCHAR(50) NOT NULL,
	model VARCHAR(100),
	device_type VARCHAR(50) NOT NULL,
	implant_date TIMESTAMPTZ,
	last_communication TIMESTAMPTZ,
	battery_level DECIMAL(5,2),
	status VARCHAR(20) NOT NULL DEFAULT 'normal',
	settings JSONB,
	created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS idx_patient_devices_patient ON patient_devices (patient_id)`,
	`CREATE TABLE IF NOT EXISTS device_alerts (
	id BIGSERIAL PRIMARY KEY,
	alert_id VARCHAR(100) UNIQUE NOT NULL,
	device_id VARCHAR(100) NOT NULL,
	patient_id VARCHAR(100) NOT NULL,
	manufacturer VARCHAR(50) NOT NULL,
	alert_type VARCHAR(100) NOT NULL,
	severity VARCHAR(20) NOT NULL,
	message TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	acknowledged BOOLEAN DEFAULT FALSE,
	acknowledged_by VARCHAR(100),
	acknowledged_at TIMESTAMPTZ,
	resolved BOOLEAN DEFAULT FALSE,
	resolved_at TIMESTAMPTZ,
	metadata JSONB,
	created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS idx_device_alerts_device ON device_alerts (device_id, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_device_alerts_open ON device_alerts (severity, acknowledged, resolved)`,
}

// EnsureSchema creates the tables and indexes when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("postgres: nil db")
	}
	for _, statement := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return err
		}
	}
	if s.logger != nil {
		s.logger.Printf("postgres: schema ensured")
	}
	return nil
}

// StoreReadings inserts readings, skipping rows already present for the same
// (device_id, reading_type, timestamp). Returns the number of new rows.
func (s *Store) StoreReadings(ctx context.Context, readings []devices.Reading) (int, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("postgres: nil db")
	}
	if len(readings) == 0 {
		return 0, nil
	}
	stored := 0
	for _, reading := range readings {
		if reading.Value == nil {
			continue
		}
		rawData, err := marshalJSONB(reading.RawData)
		if err != nil {
			return stored, err
		}
		metadata, err := marshalJSONB(reading.Metadata)
		if err != nil {
			return stored, err
		}
		result, err := s.db.ExecContext(ctx, `
INSERT INTO device_readings (
	device_id, patient_id, manufacturer, reading_type, value, unit,
	timestamp, device_type, status, raw_data, metadata
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (device_id, reading_type, timestamp)
DO NOTHING`,
			reading.DeviceID, reading.PatientID, reading.Manufacturer, reading.ReadingType,
			*reading.Value, reading.Unit, reading.Timestamp.UTC(), string(reading.DeviceType),
			string(reading.Status), rawData, metadata,
		)
		if err != nil {
			return stored, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return stored, err
		}
		stored += int(affected)
	}
	if s.logger != nil {
		s.logger.Printf("postgres: stored %d device readings", stored)
	}
	return stored, nil
}

// StoreAlerts inserts alerts, skipping alert_ids already present. Returns the
// number of new rows.
func (s *Store) StoreAlerts(ctx context.Context, alerts []devices.Alert) (int, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("postgres: nil db")
	}
	if len(alerts) == 0 {
		return 0, nil
	}
	stored := 0
	for _, alert := range alerts {
		metadata, err := marshalJSONB(alert.Metadata)
		if err != nil {
			return stored, err
		}
		result, err := s.db.ExecContext(ctx, `
INSERT INTO device_alerts (
	alert_id, device_id, patient_id, manufacturer, alert_type, severity,
	message, timestamp, acknowledged, acknowledged_by, acknowledged_at,
	resolved, resolved_at, metadata
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)
ON CONFLICT (alert_id)
DO NOTHING`,
			alert.AlertID, alert.DeviceID, alert.PatientID, alert.Manufacturer, alert.AlertType,
			string(alert.Severity), alert.Message, alert.Timestamp.UTC(), alert.Acknowledged,
			nullString(alert.AcknowledgedBy), nullTime(alert.AcknowledgedAt),
			alert.Resolved, nullTime(alert.ResolvedAt), metadata,
		)
		if err != nil {
			return stored, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return stored, err
		}
		stored += int(affected)
	}
	if s.logger != nil {
		s.logger.Printf("postgres: stored %d device alerts", stored)
	}
	return stored, nil
}

// UpsertDevices writes the patient device registry, updating mutable fields
// for devices already known.
func (s *Store) UpsertDevices(ctx context.Context, registry []devices.PatientDevice) error {
	if s == nil || s.db == nil {
		return errors.New("postgres: nil db")
	}
	now := time.Now().UTC()
	for _, device := range registry {
		settings, err := marshalJSONB(device.Settings)
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx, `
INSERT INTO patient_devices (
	device_id, patient_id, manufacturer, model, device_type, implant_date,
	last_communication, battery_level, status, settings, created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11
)
ON CONFLICT (device_id)
DO UPDATE SET
	last_communication = EXCLUDED.last_communication,
	battery_level = EXCLUDED.battery_level,
	status = EXCLUDED.status,
	settings = EXCLUDED.settings,
	updated_at = EXCLUDED.updated_at`,
			device.DeviceID, device.PatientID, device.Manufacturer, device.Model,
			string(device.DeviceType), nullTime(device.ImplantDate),
			nullTime(device.LastCommunication), device.BatteryLevel,
			string(device.Status), settings, now,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListRecentReadings returns readings for a device newer than the cutoff,
// newest first.
func (s *Store) ListRecentReadings(ctx context.Context, deviceID string, since time.Time) ([]devices.Reading, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("postgres: nil db")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT device_id, patient_id, manufacturer, reading_type, value, unit,
	timestamp, device_type, status, raw_data, metadata
FROM device_readings
WHERE device_id = $1 AND timestamp >= $2
ORDER BY timestamp DESC`, deviceID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []devices.Reading
	for rows.Next() {
		var reading devices.Reading
		var value float64
		var deviceType, status string
		var rawData, metadata []byte
		if err := rows.Scan(
			&reading.DeviceID,
			&reading.PatientID,
			&reading.Manufacturer,
			&reading.ReadingType,
			&value,
			&reading.Unit,
			&reading.Timestamp,
			&deviceType,
			&status,
			&rawData,
			&metadata,
		); err != nil {
			return nil, err
		}
		reading.Value = &value
		reading.DeviceType = devices.ParseDeviceType(deviceType, devices.DeviceTypePacemaker)
		reading.Status = devices.ParseDeviceStatus(status, devices.StatusNormal)
		reading.Timestamp = reading.Timestamp.UTC()
		if len(rawData) > 0 {
			_ = json.Unmarshal(rawData, &reading.RawData)
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &reading.Metadata)
		}
		result = append(result, reading)
	}
	return result, rows.Err()
}

// ListOpenAlerts returns unresolved alerts for a patient, newest first.
func (s *Store) ListOpenAlerts(ctx context.Context, patientID string) ([]devices.Alert, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("postgres: nil db")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT alert_id, device_id, patient_id, manufacturer, alert_type, severity,
	message, timestamp, acknowledged, acknowledged_by, acknowledged_at,
	resolved, resolved_at, metadata
FROM device_alerts
WHERE patient_id = $1 AND resolved = FALSE
ORDER BY timestamp DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []devices.Alert
	for rows.Next() {
		var alert devices.Alert
		var severity string
		var acknowledgedBy sql.NullString
		var acknowledgedAt, resolvedAt sql.NullTime
		var metadata []byte
		if err := rows.Scan(
			&alert.AlertID,
			&alert.DeviceID,
			&alert.PatientID,
			&alert.Manufacturer,
			&alert.AlertType,
			&severity,
			&alert.Message,
			&alert.Timestamp,
			&alert.Acknowledged,
			&acknowledgedBy,
			&acknowledgedAt,
			&alert.Resolved,
			&resolvedAt,
			&metadata,
		); err != nil {
			return nil, err
		}
		alert.Severity = devices.ParseAlertSeverity(severity, devices.SeverityLow)
		alert.Timestamp = alert.Timestamp.UTC()
		alert.AcknowledgedBy = acknowledgedBy.String
		if acknowledgedAt.Valid {
			alert.AcknowledgedAt = acknowledgedAt.Time.UTC()
		}
		if resolvedAt.Valid {
			alert.ResolvedAt = resolvedAt.Time.UTC()
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &alert.Metadata)
		}
		result = append(result, alert)
	}
	return result, rows.Err()
}

func marshalJSONB(value map[string]any) ([]byte, error) {
	if len(value) == 0 {
		return nil, nil
	}
	return json.Marshal(value)
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullTime(value time.Time) sql.NullTime {
	return sql.NullTime{Time: value.UTC(), Valid: !value.IsZero()}
}
