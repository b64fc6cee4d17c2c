package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	logpkg "github.com/rubenelhore/simonkey-identity/internal/logger"
	"github.com/rubenelhore/simonkey-identity/internal/queue"
	"github.com/rubenelhore/simonkey-identity/internal/reconcile"
	"github.com/rubenelhore/simonkey-identity/internal/validation"
	"go.uber.org/zap"
)

// AdminHandler exposes the reconciliation surface to operators.
type AdminHandler struct {
	reconciler *reconcile.Reconciler
	jobQueue   queue.JobQueue
	logger     *zap.Logger
}

// NewAdminHandler creates a new admin handler. jobQueue may be nil, in which
// case scan-all requests run synchronously instead of being enqueued.
func NewAdminHandler(reconciler *reconcile.Reconciler, jobQueue queue.JobQueue, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{reconciler: reconciler, jobQueue: jobQueue, logger: logger}
}

// RegisterRoutes registers admin routes. The router should already carry the
// /api/v1/admin prefix and the admin-token gate.
func (h *AdminHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/reconcile", h.PostReconcileAll).Methods("POST")
	r.HandleFunc("/reconcile/email", h.PostReconcileEmail).Methods("POST")
}

// PostReconcileAll triggers a full duplicate scan. With a queue configured the
// scan runs in the worker so the request returns immediately; duplicates are
// self-healing, nothing here needs to block.
func (h *AdminHandler) PostReconcileAll(w http.ResponseWriter, r *http.Request) {
	if h.jobQueue != nil {
		job := queue.NewJob(queue.JobTypeReconcileAll, "")
		if err := h.jobQueue.Enqueue(r.Context(), job); err != nil {
			h.logger.Error("failed_to_enqueue_reconcile_job", zap.Error(err))
			respondJSONError(w, http.StatusServiceUnavailable, "enqueue_failed", "Failed to schedule reconciliation")
			return
		}
		respondJSON(w, http.StatusAccepted, map[string]any{
			"success": true,
			"job_id":  job.ID,
		})
		return
	}

	report, err := h.reconciler.ReconcileAll(r.Context())
	if err != nil {
		h.logger.Error("reconcile_all_failed", zap.Error(err))
		respondJSONError(w, http.StatusServiceUnavailable, "reconcile_failed", "Reconciliation pass failed to start")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "report": report})
}

type reconcileEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// PostReconcileEmail reconciles a single email group synchronously and returns
// the group report, including any records that failed to delete.
func (h *AdminHandler) PostReconcileEmail(w http.ResponseWriter, r *http.Request) {
	var req reconcileEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if err := validation.Validate.Struct(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "invalid_request", "A valid email is required")
		return
	}

	report, err := h.reconciler.ReconcileEmail(r.Context(), req.Email)
	if err != nil {
		h.logger.Error("reconcile_email_failed",
			zap.String("email", logpkg.SanitizeEmail(req.Email)),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusServiceUnavailable, "reconcile_failed", "Failed to reconcile email group")
		return
	}

	status := http.StatusOK
	if report.HasErrors() {
		// Partial progress is still progress; the report says exactly which
		// records remain.
		status = http.StatusMultiStatus
	}
	respondJSON(w, status, map[string]any{"success": !report.HasErrors(), "report": report})
}
