package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/learnhub/payhook/internal/database"
)

const (
	healthTimeout    = 5 * time.Second
	readinessTimeout = 2 * time.Second
)

var processStart = time.Now()

type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth is one entry of the health body.
type ComponentHealth struct {
	Status  HealthStatus `json:"status"`
	Latency string       `json:"latency,omitempty"`
	Message string       `json:"message,omitempty"`
}

type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
	Timestamp  string                     `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	db      *database.DB
	store   string
	version string
}

// NewHealthHandlers creates health handlers. store names the purchase store
// driver reported in the health body.
func NewHealthHandlers(db *database.DB, store, version string) *HealthHandlers {
	return &HealthHandlers{db: db, store: store, version: version}
}

func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:    HealthStatusHealthy,
		Version:   h.version,
		Uptime:    time.Since(processStart).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Components: map[string]ComponentHealth{
			"database": h.pingDatabase(ctx),
			"store":    {Status: HealthStatusHealthy, Message: h.store},
		},
	}

	status := http.StatusOK
	for _, c := range resp.Components {
		if c.Status != HealthStatusHealthy {
			resp.Status = HealthStatusUnhealthy
			status = http.StatusServiceUnavailable
		}
	}

	JSON(w, status, resp)
}

// Readiness reports whether the audit log and reference store can be reached.
func (h *HealthHandlers) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if c := h.pingDatabase(ctx); c.Status != HealthStatusHealthy {
		JSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": c.Message,
		})
		return
	}

	JSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *HealthHandlers) pingDatabase(ctx context.Context) ComponentHealth {
	start := time.Now()
	err := h.db.Ping(ctx)

	c := ComponentHealth{Status: HealthStatusHealthy, Latency: time.Since(start).String()}
	if err != nil {
		c.Status = HealthStatusUnhealthy
		c.Message = "database unavailable"
	}
	return c
}
