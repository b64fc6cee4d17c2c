package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rubenelhore/simonkey-identity/internal/queue"
	"github.com/rubenelhore/simonkey-identity/internal/session"
	"github.com/rubenelhore/simonkey-identity/internal/store"
)

// HealthChecker handles health check requests
type HealthChecker struct {
	records  store.RecordStore
	sessions *session.RedisStore
	jobQueue queue.JobQueue
}

// NewHealthChecker creates a new health checker. sessions and jobQueue may be
// nil when the session cache or job queue is not configured.
func NewHealthChecker(records store.RecordStore, sessions *session.RedisStore, jobQueue queue.JobQueue) *HealthChecker {
	return &HealthChecker{records: records, sessions: sessions, jobQueue: jobQueue}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck handles the /healthz endpoint
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("mode")

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if mode == "extended" {
		checks := make(map[string]string)

		if err := h.checkStore(r.Context()); err != nil {
			response.Status = "unhealthy"
			checks["database"] = "unhealthy: " + err.Error()
		} else {
			checks["database"] = "healthy"
		}

		if h.sessions != nil {
			if err := h.checkSessions(r.Context()); err != nil {
				response.Status = "unhealthy"
				checks["session_cache"] = "unhealthy: " + err.Error()
			} else {
				checks["session_cache"] = "healthy"
			}
		}

		if h.jobQueue != nil {
			if err := h.jobQueue.HealthCheck(r.Context()); err != nil {
				response.Status = "unhealthy"
				checks["job_queue"] = "unhealthy: " + err.Error()
			} else {
				checks["job_queue"] = "healthy"
			}
		}

		response.Checks = checks

		statusCode := http.StatusOK
		if response.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		json.NewEncoder(w).Encode(response)
		return
	}

	// Basic mode - just return that the server is running
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// checkStore verifies the record store connection
func (h *HealthChecker) checkStore(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return h.records.HealthCheck(ctx)
}

// checkSessions verifies the session cache connection
func (h *HealthChecker) checkSessions(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return h.sessions.Ping(ctx)
}
