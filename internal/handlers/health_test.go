package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rubenelhore/simonkey-identity/internal/store"
)

// failingStore wraps a MemoryStore with a health check that always fails.
type failingStore struct {
	*store.MemoryStore
}

func (f *failingStore) HealthCheck(ctx context.Context) error {
	return errors.New("connection refused")
}

func TestHealthCheckBasicMode(t *testing.T) {
	t.Parallel()

	h := NewHealthChecker(store.NewMemoryStore(), nil, nil)
	r := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()

	h.HealthCheck(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", resp.Status)
	}
	if resp.Checks != nil {
		t.Errorf("basic mode should not run checks, got %v", resp.Checks)
	}
	if _, err := time.Parse(time.RFC3339, resp.Timestamp); err != nil {
		t.Errorf("Timestamp %q is not RFC3339: %v", resp.Timestamp, err)
	}
}

func TestHealthCheckExtendedMode(t *testing.T) {
	t.Parallel()

	h := NewHealthChecker(store.NewMemoryStore(), nil, nil)
	r := httptest.NewRequest("GET", "/healthz?mode=extended", nil)
	w := httptest.NewRecorder()

	h.HealthCheck(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", resp.Status)
	}
	if resp.Checks["database"] != "healthy" {
		t.Errorf("Checks[database] = %q, want healthy", resp.Checks["database"])
	}
	if _, ok := resp.Checks["session_cache"]; ok {
		t.Error("session_cache check should be absent when no cache is configured")
	}
}

func TestHealthCheckExtendedModeWithQueue(t *testing.T) {
	t.Parallel()

	h := NewHealthChecker(store.NewMemoryStore(), nil, &mockQueue{})
	r := httptest.NewRequest("GET", "/healthz?mode=extended", nil)
	w := httptest.NewRecorder()

	h.HealthCheck(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Checks["job_queue"] != "healthy" {
		t.Errorf("Checks[job_queue] = %q, want healthy", resp.Checks["job_queue"])
	}
}

func TestHealthCheckExtendedModeUnhealthyStore(t *testing.T) {
	t.Parallel()

	h := NewHealthChecker(&failingStore{store.NewMemoryStore()}, nil, nil)
	r := httptest.NewRequest("GET", "/healthz?mode=extended", nil)
	w := httptest.NewRecorder()

	h.HealthCheck(w, r)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("Status = %q, want unhealthy", resp.Status)
	}
	if resp.Checks["database"] != "unhealthy: connection refused" {
		t.Errorf("Checks[database] = %q, want failure detail", resp.Checks["database"])
	}
}
