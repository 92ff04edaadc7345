package ingestion

import (
	"context"
	"errors"
	"log"
	"time"
)

const errorBackoff = 60 * time.Second

// Runner drives the pipeline on a fixed interval until its context is
// cancelled.
type Runner struct {
	pipeline   *Pipeline
	patientIDs []string
	interval   time.Duration
	logger     *log.Logger
}

// NewRunner constructs a continuous ingestion runner.
func NewRunner(pipeline *Pipeline, patientIDs []string, interval time.Duration, logger *log.Logger) (*Runner, error) {
	if pipeline == nil {
		return nil, errors.New("ingestion: nil pipeline")
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Runner{
		pipeline:   pipeline,
		patientIDs: patientIDs,
		interval:   interval,
		logger:     logger,
	}, nil
}

// Start loops ingestion cycles until ctx is done. A cycle that returns an
// error backs off for a minute instead of the full interval.
func (r *Runner) Start(ctx context.Context) error {
	if r.logger != nil {
		r.logger.Printf("ingestion: continuous run started patients=%d interval=%s", len(r.patientIDs), r.interval)
	}
	for {
		stats, err := r.runCycle(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wait := r.interval
		if err != nil {
			if r.logger != nil {
				r.logger.Printf("ingestion: cycle error: %v", err)
			}
			wait = errorBackoff
		} else if r.logger != nil {
			r.logger.Printf("ingestion: cycle completed readings=%d stored=%d duplicates=%d alerts=%d errors=%d",
				stats.TotalReadings, stats.SuccessfulReadings, stats.DuplicateReadings, stats.AlertsGenerated, len(stats.Errors))
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// runCycle ingests every configured patient once and aggregates the stats.
func (r *Runner) runCycle(ctx context.Context) (*Stats, error) {
	total := NewStats(r.pipeline.clock.Now())
	for _, patientID := range r.patientIDs {
		stats, err := r.pipeline.IngestPatient(ctx, patientID)
		if err != nil {
			return total, err
		}
		total.Merge(stats)
	}
	total.CompletedAt = r.pipeline.clock.Now().UTC()
	return total, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
