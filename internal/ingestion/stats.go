package ingestion

import (
	"time"

	"github.com/google/uuid"
)

// Stats summarizes one ingestion run.
type Stats struct {
	RunID              string
	StartedAt          time.Time
	CompletedAt        time.Time
	TotalReadings      int
	SuccessfulReadings int
	FailedReadings     int
	DuplicateReadings  int
	ValidationFailures int
	AlertsGenerated    int
	Errors             []string
}

// NewStats starts a run record.
func NewStats(start time.Time) *Stats {
	return &Stats{RunID: uuid.NewString(), StartedAt: start.UTC()}
}

// Merge folds another run's counters into this one.
func (s *Stats) Merge(other *Stats) {
	if other == nil {
		return
	}
	s.TotalReadings += other.TotalReadings
	s.SuccessfulReadings += other.SuccessfulReadings
	s.FailedReadings += other.FailedReadings
	s.DuplicateReadings += other.DuplicateReadings
	s.ValidationFailures += other.ValidationFailures
	s.AlertsGenerated += other.AlertsGenerated
	s.Errors = append(s.Errors, other.Errors...)
}

// SuccessRate returns the percentage of fetched readings successfully stored.
func (s *Stats) SuccessRate() float64 {
	if s.TotalReadings == 0 {
		return 0
	}
	return float64(s.SuccessfulReadings) / float64(s.TotalReadings) * 100
}

// Duration returns the run duration, zero while the run is still open.
func (s *Stats) Duration() time.Duration {
	if s.CompletedAt.IsZero() {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}
