// fake_vendor_server simulates a Boston Scientific-style device API for
// local development: OAuth token endpoint, patient devices, readings, alerts
// and acknowledgement. Data is synthesized per device on first access.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

type fakeVendorServer struct {
	start    time.Time
	latency  time.Duration
	failRate float64

	mu       sync.Mutex
	tokenSeq int64
	tokens   map[string]time.Time
	acks     map[string]string
	rng      *rand.Rand
}

func main() {
	addr := getenvDefault("FAKE_VENDOR_ADDR", ":18081")
	latencyMs := getenvIntDefault("FAKE_VENDOR_LATENCY_MS", 0)
	failRate := getenvFloatDefault("FAKE_VENDOR_FAIL_RATE", 0)

	srv := &fakeVendorServer{
		start:    time.Now().UTC(),
		latency:  time.Duration(latencyMs) * time.Millisecond,
		failRate: failRate,
		tokens:   make(map[string]time.Time),
		acks:     make(map[string]string),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/oauth/token", srv.handleToken)
	mux.HandleFunc("/patients/", srv.handlePatients)
	mux.HandleFunc("/devices/", srv.handleDevices)
	mux.HandleFunc("/alerts/", srv.handleAcknowledge)

	log.Printf("fake vendor server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

func (s *fakeVendorServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *fakeVendorServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	switch body["grant_type"] {
	case "client_credentials":
		if body["client_id"] == "" || body["client_secret"] == "" {
			s.writeAuthError(w)
			return
		}
	case "refresh_token":
		if body["refresh_token"] == "" {
			s.writeAuthError(w)
			return
		}
	default:
		http.Error(w, `{"error":"unsupported_grant_type"}`, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.tokenSeq++
	token := fmt.Sprintf("fake-token-%d", s.tokenSeq)
	refresh := fmt.Sprintf("fake-refresh-%d", s.tokenSeq)
	s.tokens[token] = time.Now().UTC().Add(time.Hour)
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"access_token":  token,
		"token_type":    "Bearer",
		"expires_in":    3600,
		"refresh_token": refresh,
		"scope":         "device_data patient_data alerts",
	})
}

func (s *fakeVendorServer) writeAuthError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
}

// authorized checks the bearer token issued by handleToken.
func (s *fakeVendorServer) authorized(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, known := s.tokens[token]
	return known && time.Now().UTC().Before(expiry)
}

func (s *fakeVendorServer) gate(w http.ResponseWriter, r *http.Request) bool {
	if s.latency > 0 {
		time.Sleep(s.latency)
	}
	if !s.authorized(r) {
		s.writeAuthError(w)
		return false
	}
	s.mu.Lock()
	fail := s.rng.Float64() < s.failRate
	s.mu.Unlock()
	if fail {
		http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
		return false
	}
	return true
}

// handlePatients serves GET /patients/{id}/devices.
func (s *fakeVendorServer) handlePatients(w http.ResponseWriter, r *http.Request) {
	if !s.gate(w, r) {
		return
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[2] != "devices" {
		http.NotFound(w, r)
		return
	}
	patientID := parts[1]
	writeJSON(w, map[string]any{
		"devices": []map[string]any{
			{
				"device_id":          "BSC-" + patientID + "-001",
				"patient_id":         patientID,
				"model":              "Accolade MRI",
				"device_type":        "Pacemaker",
				"implant_date":       "2023-04-12T00:00:00Z",
				"last_communication": time.Now().UTC().Add(-2 * time.Hour).Format(time.RFC3339),
				"battery_level":      87.5,
				"status":             "Normal",
				"settings":           map[string]any{"mode": "DDD", "lower_rate": 60},
			},
			{
				"device_id":          "BSC-" + patientID + "-002",
				"patient_id":         patientID,
				"model":              "Emblem S-ICD",
				"device_type":        "ICD",
				"implant_date":       "2022-11-03T00:00:00Z",
				"last_communication": time.Now().UTC().Add(-26 * time.Hour).Format(time.RFC3339),
				"battery_level":      64.0,
				"status":             "Warning",
				"settings":           map[string]any{"shock_zone_bpm": 220},
			},
		},
	})
}

// handleDevices serves /devices/{id}/readings, /devices/{id}/alerts and
// /devices/{id}/status.
func (s *fakeVendorServer) handleDevices(w http.ResponseWriter, r *http.Request) {
	if !s.gate(w, r) {
		return
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 {
		http.NotFound(w, r)
		return
	}
	deviceID := parts[1]
	switch parts[2] {
	case "readings":
		s.writeReadings(w, deviceID)
	case "alerts":
		s.writeAlerts(w, deviceID)
	case "status":
		writeJSON(w, map[string]any{
			"device_id":           deviceID,
			"battery":             "ok",
			"telemetry":           "active",
			"last_interrogation":  time.Now().UTC().Add(-3 * time.Hour).Format(time.RFC3339),
			"next_follow_up":      time.Now().UTC().AddDate(0, 3, 0).Format(time.RFC3339),
			"remote_monitoring":   true,
			"enrollment_complete": true,
		})
	default:
		http.NotFound(w, r)
	}
}

func (s *fakeVendorServer) writeReadings(w http.ResponseWriter, deviceID string) {
	now := time.Now().UTC()
	s.mu.Lock()
	heartRate := 55 + s.rng.Float64()*60
	impedance := 400 + s.rng.Float64()*400
	outOfRange := s.rng.Float64() < 0.2
	s.mu.Unlock()
	if outOfRange {
		heartRate = 230
	}

	readings := []map[string]any{
		{
			"patient_id":       "PAT-demo",
			"measurement_type": "heart_rate",
			"value":            round1(heartRate),
			"unit":             "bpm",
			"timestamp":        now.Add(-30 * time.Minute).Format(time.RFC3339),
			"device_type":      "Pacemaker",
			"status":           "Normal",
			"metadata":         map[string]any{"episode": false},
		},
		{
			"patient_id":       "PAT-demo",
			"measurement_type": "battery_voltage",
			"value":            2.91,
			"unit":             "V",
			"timestamp":        now.Add(-30 * time.Minute).Format(time.RFC3339),
			"device_type":      "Pacemaker",
			"status":           "Normal",
		},
		{
			"patient_id":       "PAT-demo",
			"measurement_type": "lead_impedance",
			"value":            round1(impedance),
			"unit":             "ohms",
			"timestamp":        now.Add(-90 * time.Minute).Format(time.RFC3339),
			"device_type":      "Pacemaker",
			"status":           "Normal",
			"metadata":         map[string]any{"lead": "RV"},
		},
	}
	writeJSON(w, map[string]any{"device_id": deviceID, "readings": readings})
}

func (s *fakeVendorServer) writeAlerts(w http.ResponseWriter, deviceID string) {
	s.mu.Lock()
	_, acked := s.acks[deviceID+"-alert-1"]
	s.mu.Unlock()
	writeJSON(w, map[string]any{
		"alerts": []map[string]any{
			{
				"alert_id":     deviceID + "-alert-1",
				"device_id":    deviceID,
				"patient_id":   "PAT-demo",
				"alert_type":   "battery_depletion",
				"severity":     "Medium",
				"message":      "Battery approaching elective replacement indicator",
				"timestamp":    time.Now().UTC().Add(-6 * time.Hour).Format(time.RFC3339),
				"acknowledged": acked,
			},
		},
	})
}

// handleAcknowledge serves POST /alerts/{id}/acknowledge.
func (s *fakeVendorServer) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	if !s.gate(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[2] != "acknowledge" {
		http.NotFound(w, r)
		return
	}
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	s.acks[parts[1]] = body["acknowledged_by"]
	s.mu.Unlock()
	writeJSON(w, map[string]any{"alert_id": parts[1], "acknowledged": true})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func round1(v float64) float64 {
	return float64(int(v*10)) / 10
}

func getenvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvIntDefault(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}
