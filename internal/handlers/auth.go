package handlers

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rubenelhore/simonkey-identity/internal/identity"
	logpkg "github.com/rubenelhore/simonkey-identity/internal/logger"
	"github.com/rubenelhore/simonkey-identity/internal/request"
	"github.com/rubenelhore/simonkey-identity/internal/services/oidc"
	"github.com/rubenelhore/simonkey-identity/internal/session"
	"github.com/rubenelhore/simonkey-identity/internal/store"
	"github.com/rubenelhore/simonkey-identity/internal/verification"
	"go.uber.org/zap"
)

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	provider     *oidc.Provider
	client       *oidc.Client
	verifier     *oidc.Verifier
	manager      *session.Manager
	verification *verification.Service
	logger       *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(
	provider *oidc.Provider,
	client *oidc.Client,
	verifier *oidc.Verifier,
	manager *session.Manager,
	verificationSvc *verification.Service,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		provider:     provider,
		client:       client,
		verifier:     verifier,
		manager:      manager,
		verification: verificationSvc,
		logger:       logger,
	}
}

// RegisterPublicRoutes registers the unauthenticated auth routes. The router
// should already carry the /api/v1/auth prefix.
func (h *AuthHandler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/oidc/login", h.GetOIDCLogin).Methods("GET")
	r.HandleFunc("/oidc/callback", h.PostOIDCCallback).Methods("POST")
}

// RegisterProtectedRoutes registers routes that require a resolved identity.
func (h *AuthHandler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/me", h.GetMe).Methods("GET")
	r.HandleFunc("/verification/resend", h.PostVerificationResend).Methods("POST")
	r.HandleFunc("/verification/check", h.PostVerificationCheck).Methods("POST")
}

// GetOIDCLogin returns OIDC configuration for the frontend
func (h *AuthHandler) GetOIDCLogin(w http.ResponseWriter, r *http.Request) {
	loginConfig, err := h.provider.GetLoginConfig(r.Context())
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "oidc_config_failed", "Failed to get OIDC configuration")
		return
	}
	respondJSON(w, http.StatusOK, loginConfig)
}

type callbackRequest struct {
	Code string `json:"code"`
}

// PostOIDCCallback exchanges the authorization code, verifies the resulting
// ID token, and resolves the identity. This is the explicit sign-in event.
func (h *AuthHandler) PostOIDCCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		respondJSONError(w, http.StatusBadRequest, "invalid_request", "Missing authorization code")
		return
	}

	ctx := r.Context()
	idToken, err := h.client.ExchangeCode(ctx, req.Code)
	if err != nil {
		h.logger.Warn("code_exchange_failed", zap.String("error", logpkg.SanitizeError(err)))
		respondJSONError(w, http.StatusUnauthorized, "exchange_failed", "Authorization code exchange failed")
		return
	}

	assertion, err := h.verifier.Verify(ctx, idToken)
	if err != nil {
		respondJSONError(w, http.StatusUnauthorized, "invalid_token", "Invalid ID token")
		return
	}

	rec, err := h.manager.ResolveIdentity(ctx, *assertion)
	if err != nil {
		switch {
		case identity.IsConflict(err):
			respondJSONError(w, http.StatusConflict, "account_conflict",
				"This email is already associated with a different account")
		case store.IsTransient(err):
			respondJSONError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "Please retry in a moment")
		default:
			h.logger.Error("sign_in_resolution_failed", zap.Error(err))
			respondJSONError(w, http.StatusInternalServerError, "resolution_failed", "Failed to resolve identity")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"effective_user_id": rec.RecordID,
		"record":            rec,
	})
}

// GetMe returns the resolved canonical record for the current identity.
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	rec := request.RecordFromContext(r)
	if rec == nil {
		respondJSONError(w, http.StatusUnauthorized, "unauthorized", "No resolved identity in context")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"effective_user_id": rec.RecordID,
		"record":            rec,
	})
}

// PostVerificationResend asks the rate limiter for permission and dispatches a
// verification message when allowed.
func (h *AuthHandler) PostVerificationResend(w http.ResponseWriter, r *http.Request) {
	rec := request.RecordFromContext(r)
	if rec == nil {
		respondJSONError(w, http.StatusUnauthorized, "unauthorized", "No resolved identity in context")
		return
	}
	if rec.Verification.IsVerified {
		respondJSON(w, http.StatusOK, map[string]any{"success": true, "already_verified": true})
		return
	}

	decision, err := h.verification.RequestResend(r.Context(), rec)
	if err != nil {
		if store.IsTransient(err) {
			respondJSONError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "Please retry in a moment")
			return
		}
		h.logger.Error("verification_resend_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "resend_failed", "Failed to send verification email")
		return
	}

	if !decision.Allowed {
		if decision.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
		}
		respondJSON(w, http.StatusTooManyRequests, map[string]any{
			"success": false,
			"error":   "rate_limited",
			"message": decision.Reason,
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// PostVerificationCheck re-reads the freshly presented token's verification
// claim and marks the record verified when the provider now asserts it. The
// client is expected to refresh its token with the provider first.
func (h *AuthHandler) PostVerificationCheck(w http.ResponseWriter, r *http.Request) {
	rec := request.RecordFromContext(r)
	if rec == nil {
		respondJSONError(w, http.StatusUnauthorized, "unauthorized", "No resolved identity in context")
		return
	}

	assertion, ok := request.AssertionFromContext(r)
	if !ok {
		respondJSONError(w, http.StatusUnauthorized, "unauthorized", "No verified assertion in context")
		return
	}

	if assertion.EmailVerified && !rec.Verification.IsVerified {
		if err := h.verification.MarkVerified(r.Context(), rec); err != nil {
			if store.IsTransient(err) {
				respondJSONError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "Please retry in a moment")
				return
			}
			h.logger.Error("mark_verified_failed", zap.Error(err))
			respondJSONError(w, http.StatusInternalServerError, "check_failed", "Failed to update verification state")
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"verified": rec.Verification.IsVerified,
	})
}
