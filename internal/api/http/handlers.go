// Package apihttp exposes the thin operational HTTP surface: triggering an
// ingestion run, inspecting service status, and downloading run reports.
package apihttp

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"cardiac-monitor/internal/auth"
	"cardiac-monitor/internal/ingestion"
	"cardiac-monitor/internal/report"
)

// RunTracker remembers completed ingestion runs for the status and report
// endpoints.
type RunTracker struct {
	mu      sync.RWMutex
	total   *ingestion.Stats
	perRun  []report.RunSummary
	lastRun time.Time
}

// NewRunTracker constructs an empty tracker.
func NewRunTracker() *RunTracker {
	return &RunTracker{}
}

// Record stores a completed patient run.
func (t *RunTracker) Record(patientID string, stats *ingestion.Stats) {
	if stats == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.total == nil {
		t.total = ingestion.NewStats(stats.StartedAt)
	}
	t.total.Merge(stats)
	t.total.CompletedAt = stats.CompletedAt
	t.perRun = append(t.perRun, report.RunSummary{PatientID: patientID, Stats: *stats})
	t.lastRun = stats.CompletedAt
}

// Snapshot returns the accumulated totals and per-patient breakdown.
func (t *RunTracker) Snapshot() (*ingestion.Stats, []report.RunSummary, time.Time) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.total == nil {
		return nil, nil, time.Time{}
	}
	total := *t.total
	patients := make([]report.RunSummary, len(t.perRun))
	copy(patients, t.perRun)
	return &total, patients, t.lastRun
}

// IngestHandler triggers an ingestion run for one patient.
type IngestHandler struct {
	pipeline *ingestion.Pipeline
	tracker  *RunTracker
	logger   *log.Logger
}

// NewIngestHandler constructs an IngestHandler.
func NewIngestHandler(pipeline *ingestion.Pipeline, tracker *RunTracker, logger *log.Logger) *IngestHandler {
	return &IngestHandler{pipeline: pipeline, tracker: tracker, logger: logger}
}

// ServeHTTP handles POST /api/v1/patients/{id}/ingest.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.pipeline == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	patientID, ok := patientIDFromPath(r.URL.Path)
	if !ok {
		http.Error(w, "patient id is required", http.StatusBadRequest)
		return
	}
	var manufacturers []string
	if raw := r.URL.Query().Get("manufacturer"); raw != "" {
		manufacturers = strings.Split(raw, ",")
	}

	stats, err := h.pipeline.IngestPatient(r.Context(), patientID, manufacturers...)
	if err != nil {
		http.Error(w, "ingestion aborted", http.StatusInternalServerError)
		return
	}
	if h.tracker != nil {
		h.tracker.Record(patientID, stats)
	}
	if h.logger != nil {
		h.logger.Printf("api: ingest run patient=%s readings=%d errors=%d", patientID, stats.TotalReadings, len(stats.Errors))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"run_id":              stats.RunID,
		"patient_id":          patientID,
		"total_readings":      stats.TotalReadings,
		"successful_readings": stats.SuccessfulReadings,
		"failed_readings":     stats.FailedReadings,
		"duplicate_readings":  stats.DuplicateReadings,
		"validation_failures": stats.ValidationFailures,
		"alerts_generated":    stats.AlertsGenerated,
		"success_rate":        stats.SuccessRate(),
		"duration_ms":         stats.Duration().Milliseconds(),
		"errors":              stats.Errors,
	})
}

// patientIDFromPath extracts {id} from /api/v1/patients/{id}/ingest.
func patientIDFromPath(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, "/api/v1/patients/")
	if !ok {
		return "", false
	}
	patientID, ok := strings.CutSuffix(rest, "/ingest")
	if !ok || patientID == "" || strings.Contains(patientID, "/") {
		return "", false
	}
	return patientID, true
}

// StatusHandler reports registered manufacturers, stored credentials, and
// accumulated run totals.
type StatusHandler struct {
	pipeline  *ingestion.Pipeline
	auth      *auth.Manager
	tracker   *RunTracker
	startedAt time.Time
}

// NewStatusHandler constructs a StatusHandler. The auth manager may be nil.
func NewStatusHandler(pipeline *ingestion.Pipeline, authManager *auth.Manager, tracker *RunTracker, startedAt time.Time) *StatusHandler {
	return &StatusHandler{pipeline: pipeline, auth: authManager, tracker: tracker, startedAt: startedAt}
}

// ServeHTTP handles GET /api/v1/status.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.pipeline == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	body := map[string]any{
		"manufacturers":  h.pipeline.Manufacturers(),
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	}
	if h.auth != nil {
		if stored, err := h.auth.StoredManufacturers(r.Context()); err == nil {
			body["stored_credentials"] = stored
		}
	}
	if h.tracker != nil {
		if total, _, lastRun := h.tracker.Snapshot(); total != nil {
			body["last_run_at"] = lastRun.Format(time.RFC3339)
			body["total_readings"] = total.TotalReadings
			body["successful_readings"] = total.SuccessfulReadings
			body["alerts_generated"] = total.AlertsGenerated
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// ReportHandler renders the accumulated run as a downloadable document.
type ReportHandler struct {
	tracker *RunTracker
}

// NewReportHandler constructs a ReportHandler.
func NewReportHandler(tracker *RunTracker) *ReportHandler {
	return &ReportHandler{tracker: tracker}
}

// ServeHTTP handles GET /api/v1/reports/run?format=xlsx|pdf.
func (h *ReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.tracker == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	total, patients, _ := h.tracker.Snapshot()
	if total == nil {
		http.Error(w, "no ingestion run recorded", http.StatusNotFound)
		return
	}

	switch r.URL.Query().Get("format") {
	case "pdf":
		data, err := report.BuildRunPDF(total, patients)
		if err != nil {
			http.Error(w, "render report error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="ingestion-run.pdf"`)
		_, _ = w.Write(data)
	case "", "xlsx":
		data, err := report.BuildRunXLSX(total, patients)
		if err != nil {
			http.Error(w, "render report error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="ingestion-run.xlsx"`)
		_, _ = w.Write(data)
	default:
		http.Error(w, "unsupported format", http.StatusBadRequest)
	}
}
