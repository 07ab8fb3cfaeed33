package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"giftbox-rest-api/pkg/response"
)

// StartTime tracks when the server started for uptime calculation
var StartTime = time.Now()

// Pinger is a dependency that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains shared HTTP handlers and their dependencies.
type Handler struct {
	service string
	version string
	checks  map[string]Pinger
	timeout time.Duration
}

// New creates a new handler. Each entry of checks is pinged by Ready and Status.
func New(serviceName, version string, checks map[string]Pinger) *Handler {
	return &Handler{
		service: serviceName,
		version: version,
		checks:  checks,
		timeout: 2 * time.Second,
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// Health handles GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	}
	response.OK(w, resp)
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Ready     bool      `json:"ready"`
	Timestamp time.Time `json:"timestamp"`
	Checks    []Check   `json:"checks"`
}

// Check represents an individual readiness check.
type Check struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (h *Handler) runChecks(ctx context.Context) ([]Check, bool) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	checks := []Check{{Name: "api", Status: "ok"}}
	allReady := true
	for name, dep := range h.checks {
		check := Check{Name: name, Status: "ok"}
		if err := dep.Ping(ctx); err != nil {
			check.Status = "error"
			check.Error = err.Error()
			allReady = false
		}
		checks = append(checks, check)
	}
	return checks, allReady
}

// Ready handles GET /api/v1/ready
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	checks, allReady := h.runChecks(r.Context())

	resp := ReadyResponse{
		Ready:     allReady,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	}

	if !allReady {
		response.JSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	response.OK(w, resp)
}

// StatusChecks represents the checks in status response
type StatusChecks struct {
	Database string  `json:"database"`
	MemoryMB float64 `json:"memory_mb"`
}

// StatusResponse represents the unified status response for bot monitoring
type StatusResponse struct {
	Service       string       `json:"service"`
	Status        string       `json:"status"`
	Timestamp     string       `json:"timestamp"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	PingMS        int64        `json:"ping_ms"`
	Checks        StatusChecks `json:"checks"`
}

// Status handles GET /api/status - unified health check for bot monitoring
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	requestStart := time.Now()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	memoryMB := float64(memStats.Alloc) / 1024 / 1024

	_, allReady := h.runChecks(r.Context())
	status, database := "ok", "ok"
	if !allReady {
		status, database = "degraded", "error"
	}

	resp := StatusResponse{
		Service:       h.service,
		Status:        status,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(StartTime).Seconds()),
		PingMS:        time.Since(requestStart).Milliseconds(),
		Checks: StatusChecks{
			Database: database,
			MemoryMB: float64(int(memoryMB*100)) / 100,
		},
	}

	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	response.OK(w, resp)
}
