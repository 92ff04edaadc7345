package ingestion

import (
	"fmt"

	devices "cardiac-monitor/internal/devices/domain"
)

// Validator checks readings for completeness and clinically plausible values.
type Validator struct {
	enabled bool
}

// NewValidator constructs a validator. When disabled it reports no
// violations at all.
func NewValidator(enabled bool) *Validator {
	return &Validator{enabled: enabled}
}

// Validate returns all violations for one reading: presence checks first,
// then range checks against the normal ranges table.
func (v *Validator) Validate(reading devices.Reading) []string {
	if !v.enabled {
		return nil
	}
	var violations []string
	if reading.DeviceID == "" {
		violations = append(violations, "Missing device_id")
	}
	if reading.PatientID == "" {
		violations = append(violations, "Missing patient_id")
	}
	if reading.Value == nil {
		violations = append(violations, "Missing reading value")
	}
	if reading.Unit == "" {
		violations = append(violations, "Missing unit")
	}
	if reading.Timestamp.IsZero() {
		violations = append(violations, "Missing timestamp")
	}
	violations = append(violations, rangeViolations(reading)...)
	return violations
}

// ValidateBatch validates readings by index, omitting clean ones.
func (v *Validator) ValidateBatch(readings []devices.Reading) map[int][]string {
	results := make(map[int][]string)
	for i, reading := range readings {
		if violations := v.Validate(reading); len(violations) > 0 {
			results[i] = violations
		}
	}
	return results
}

// rangeViolations checks a reading against the normal ranges table. Reading
// types without a table entry pass.
func rangeViolations(reading devices.Reading) []string {
	nr, ok := devices.RangeFor(reading.ReadingType)
	if !ok || reading.Value == nil {
		return nil
	}
	var violations []string
	value := *reading.Value
	if value < nr.Min {
		violations = append(violations, fmt.Sprintf("%s below normal range: %v < %v %s", reading.ReadingType, value, nr.Min, nr.Unit))
	}
	if value > nr.Max {
		violations = append(violations, fmt.Sprintf("%s above normal range: %v > %v %s", reading.ReadingType, value, nr.Max, nr.Unit))
	}
	if reading.Unit != nr.Unit {
		violations = append(violations, fmt.Sprintf("Unit mismatch for %s: expected %s, got %s", reading.ReadingType, nr.Unit, reading.Unit))
	}
	return violations
}
