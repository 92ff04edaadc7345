package ingestion

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	devices "cardiac-monitor/internal/devices/domain"
	"cardiac-monitor/internal/observability/metrics"
	"cardiac-monitor/internal/restclient"
)

// Sink persists readings and alerts. Both methods return the number of rows
// actually written, so callers can derive the duplicate count.
type Sink interface {
	StoreReadings(ctx context.Context, readings []devices.Reading) (int, error)
	StoreAlerts(ctx context.Context, alerts []devices.Alert) (int, error)
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Pipeline fetches recent device data from every registered manufacturer
// client and writes it through the sink.
type Pipeline struct {
	sink      Sink
	cfg       Config
	validator *Validator
	metrics   *metrics.Metrics
	logger    *log.Logger
	clock     Clock

	mu      sync.RWMutex
	clients map[string]devices.Client
}

// Option customizes the pipeline.
type Option func(*Pipeline)

// WithClock assigns a clock.
func WithClock(clock Clock) Option {
	return func(p *Pipeline) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithMetrics attaches ingestion metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// NewPipeline constructs a pipeline writing to the given sink.
func NewPipeline(sink Sink, cfg Config, logger *log.Logger, opts ...Option) (*Pipeline, error) {
	if sink == nil {
		return nil, errors.New("ingestion: nil sink")
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultConfig().MaxWorkers
	}
	p := &Pipeline{
		sink:      sink,
		cfg:       cfg,
		validator: NewValidator(cfg.ValidationEnabled),
		logger:    logger,
		clock:     systemClock{},
		clients:   make(map[string]devices.Client),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// RegisterClient registers a manufacturer client under its own key.
func (p *Pipeline) RegisterClient(client devices.Client) error {
	if client == nil {
		return errors.New("ingestion: nil client")
	}
	manufacturer := client.Manufacturer()
	if manufacturer == "" {
		return errors.New("ingestion: client with empty manufacturer")
	}
	p.mu.Lock()
	p.clients[manufacturer] = client
	p.mu.Unlock()
	if p.logger != nil {
		p.logger.Printf("ingestion: client registered manufacturer=%s", manufacturer)
	}
	return nil
}

// Manufacturers lists registered manufacturers, sorted.
func (p *Pipeline) Manufacturers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]string, 0, len(p.clients))
	for key := range p.clients {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (p *Pipeline) client(manufacturer string) (devices.Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	client, ok := p.clients[manufacturer]
	return client, ok
}

// IngestPatient pulls all data for one patient. A manufacturer that fails to
// list devices is recorded as an error and skipped; the run itself still
// completes. Devices are ingested concurrently, bounded by MaxWorkers.
func (p *Pipeline) IngestPatient(ctx context.Context, patientID string, manufacturers ...string) (*Stats, error) {
	if patientID == "" {
		return nil, errors.New("ingestion: empty patient id")
	}
	stats := NewStats(p.clock.Now())
	defer func() {
		stats.CompletedAt = p.clock.Now().UTC()
		p.recordRun(stats)
	}()

	if len(manufacturers) == 0 {
		manufacturers = p.Manufacturers()
	}

	var patientDevices []devices.PatientDevice
	for _, manufacturer := range manufacturers {
		client, ok := p.client(manufacturer)
		if !ok {
			stats.Errors = append(stats.Errors, fmt.Sprintf("no api client registered for manufacturer: %s", manufacturer))
			continue
		}
		found, err := client.GetPatientDevices(ctx, patientID)
		if err != nil {
			msg := fmt.Sprintf("failed to get devices for patient %s from %s: %v", patientID, manufacturer, err)
			stats.Errors = append(stats.Errors, msg)
			p.recordAuthFailure(manufacturer, err)
			if p.logger != nil {
				p.logger.Printf("ingestion: %s", msg)
			}
			continue
		}
		if p.logger != nil {
			p.logger.Printf("ingestion: found %d devices for patient %s from %s", len(found), patientID, manufacturer)
		}
		patientDevices = append(patientDevices, found...)
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.cfg.MaxWorkers)
	for _, device := range patientDevices {
		device := device
		group.Go(func() error {
			deviceStats := p.ingestDevice(groupCtx, device)
			mu.Lock()
			stats.Merge(deviceStats)
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		stats.Errors = append(stats.Errors, err.Error())
	}

	if p.logger != nil {
		p.logger.Printf("ingestion: patient run completed patient=%s success_rate=%.1f%% errors=%d",
			patientID, stats.SuccessRate(), len(stats.Errors))
	}
	return stats, ctx.Err()
}

// ingestDevice pulls recent readings and alerts for a single device. Any
// storage or fetch failure marks every reading of the device as failed.
func (p *Pipeline) ingestDevice(ctx context.Context, device devices.PatientDevice) *Stats {
	stats := NewStats(p.clock.Now())
	defer func() { stats.CompletedAt = p.clock.Now().UTC() }()

	client, ok := p.client(device.Manufacturer)
	if !ok {
		stats.Errors = append(stats.Errors, fmt.Sprintf("no api client registered for manufacturer: %s", device.Manufacturer))
		return stats
	}

	hours := int(p.cfg.DuplicateCheckWindow / time.Hour)
	readings, err := client.GetRecentReadings(ctx, device.DeviceID, hours)
	if err != nil {
		p.recordAuthFailure(device.Manufacturer, err)
		return p.failDevice(stats, device.DeviceID, err)
	}
	stats.TotalReadings = len(readings)

	if len(readings) > 0 {
		violations := p.validator.ValidateBatch(readings)
		stats.ValidationFailures = len(violations)
		if len(violations) > 0 && p.logger != nil {
			p.logger.Printf("ingestion: validation failures device=%s count=%d", device.DeviceID, len(violations))
		}

		// Threshold alerts are derived from the full fetched batch, before
		// invalid readings are dropped: an out-of-range reading must raise an
		// alert even though it never reaches storage.
		var thresholdAlerts []devices.Alert
		if p.cfg.AlertThresholdViolations {
			thresholdAlerts = p.thresholdAlerts(readings, device)
		}

		if p.cfg.ValidationEnabled && len(violations) > 0 {
			valid := make([]devices.Reading, 0, len(readings))
			for i, reading := range readings {
				if _, bad := violations[i]; !bad {
					valid = append(valid, reading)
				}
			}
			readings = valid
		}

		stored, err := p.storeReadingsBatched(ctx, readings)
		if err != nil {
			return p.failDevice(stats, device.DeviceID, err)
		}
		stats.SuccessfulReadings = stored
		stats.DuplicateReadings = len(readings) - stored

		if len(thresholdAlerts) > 0 {
			storedAlerts, err := p.sink.StoreAlerts(ctx, thresholdAlerts)
			if err != nil {
				return p.failDevice(stats, device.DeviceID, err)
			}
			stats.AlertsGenerated += storedAlerts
			if p.metrics != nil {
				p.metrics.AlertsTotal.WithLabelValues("threshold").Add(float64(storedAlerts))
			}
		}
	}

	deviceAlerts, err := client.GetDeviceAlerts(ctx, device.DeviceID)
	if err != nil {
		return p.failDevice(stats, device.DeviceID, err)
	}
	if len(deviceAlerts) > 0 {
		storedAlerts, err := p.sink.StoreAlerts(ctx, deviceAlerts)
		if err != nil {
			return p.failDevice(stats, device.DeviceID, err)
		}
		stats.AlertsGenerated += storedAlerts
		if p.metrics != nil {
			p.metrics.AlertsTotal.WithLabelValues("device").Add(float64(storedAlerts))
		}
	}
	return stats
}

// storeReadingsBatched writes readings in BatchSize chunks.
func (p *Pipeline) storeReadingsBatched(ctx context.Context, readings []devices.Reading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}
	batchSize := p.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = len(readings)
	}
	stored := 0
	for start := 0; start < len(readings); start += batchSize {
		end := start + batchSize
		if end > len(readings) {
			end = len(readings)
		}
		count, err := p.sink.StoreReadings(ctx, readings[start:end])
		if err != nil {
			return stored, err
		}
		stored += count
	}
	return stored, nil
}

func (p *Pipeline) failDevice(stats *Stats, deviceID string, err error) *Stats {
	msg := fmt.Sprintf("failed to ingest data for device %s: %v", deviceID, err)
	stats.Errors = append(stats.Errors, msg)
	stats.FailedReadings = stats.TotalReadings
	stats.SuccessfulReadings = 0
	if p.logger != nil {
		p.logger.Printf("ingestion: %s", msg)
	}
	return stats
}

// thresholdAlerts builds alerts for readings outside their normal ranges.
// Alert IDs are a stable hash of the violating sample, so re-ingesting the
// same window never duplicates an alert.
func (p *Pipeline) thresholdAlerts(readings []devices.Reading, device devices.PatientDevice) []devices.Alert {
	var alerts []devices.Alert
	for _, reading := range readings {
		for _, violation := range rangeViolations(reading) {
			if !strings.Contains(violation, "above normal range") && !strings.Contains(violation, "below normal range") {
				continue
			}
			severity := devices.SeverityMedium
			if strings.Contains(violation, "Critical") {
				severity = devices.SeverityHigh
			}
			var value any
			if reading.Value != nil {
				value = *reading.Value
			}
			alerts = append(alerts, devices.Alert{
				AlertID:      buildAlertID(device.DeviceID, reading.ReadingType, reading.Timestamp, violation),
				DeviceID:     device.DeviceID,
				PatientID:    device.PatientID,
				Manufacturer: device.Manufacturer,
				AlertType:    "threshold_violation",
				Severity:     severity,
				Message:      "Threshold violation detected: " + violation,
				Timestamp:    reading.Timestamp,
				Metadata: map[string]any{
					"reading_type":      reading.ReadingType,
					"reading_value":     value,
					"reading_unit":      reading.Unit,
					"violation_details": violation,
				},
			})
		}
	}
	return alerts
}

// recordAuthFailure counts errors caused by a rejected or unavailable token.
func (p *Pipeline) recordAuthFailure(manufacturer string, err error) {
	if p.metrics == nil {
		return
	}
	var authErr *restclient.AuthError
	if errors.As(err, &authErr) {
		p.metrics.AuthFailures.WithLabelValues(manufacturer).Inc()
	}
}

func (p *Pipeline) recordRun(stats *Stats) {
	if p.metrics == nil {
		return
	}
	result := "success"
	if len(stats.Errors) > 0 {
		result = "error"
	}
	p.metrics.RunsTotal.WithLabelValues(result).Inc()
	p.metrics.RunDuration.Observe(stats.Duration().Seconds())
	p.metrics.ReadingsTotal.WithLabelValues("stored").Add(float64(stats.SuccessfulReadings))
	p.metrics.ReadingsTotal.WithLabelValues("failed").Add(float64(stats.FailedReadings))
	p.metrics.DuplicatesTotal.Add(float64(stats.DuplicateReadings))
	p.metrics.ValidationFailures.Add(float64(stats.ValidationFailures))
}

func buildAlertID(deviceID, readingType string, ts time.Time, violation string) string {
	sum := sha1.Sum([]byte(deviceID + "|" + readingType + "|" + ts.UTC().Format(time.RFC3339Nano) + "|" + violation))
	return "alert-" + hex.EncodeToString(sum[:8])
}
