package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rubenelhore/simonkey-identity/internal/identity"
	logpkg "github.com/rubenelhore/simonkey-identity/internal/logger"
	"github.com/rubenelhore/simonkey-identity/internal/request"
	"github.com/rubenelhore/simonkey-identity/internal/services/oidc"
	"github.com/rubenelhore/simonkey-identity/internal/session"
	"github.com/rubenelhore/simonkey-identity/internal/store"
	"go.uber.org/zap"
)

// Auth verifies the bearer token, resolves the external identity onto its
// canonical record through the session manager, and attaches both to the
// request context.
//
// Resolution outcomes map to status codes precisely: an account conflict is
// 409 (terminal for this sign-in, the session is already torn down), a
// transient store failure is 503 (retryable, never "not found"), and only a
// bad token is 401.
func Auth(manager *session.Manager, verifier *oidc.Verifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, http.StatusUnauthorized, "missing_token", "Missing Authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondError(w, http.StatusUnauthorized, "invalid_token", "Invalid Authorization header format")
				return
			}

			ctx := r.Context()
			assertion, err := verifier.Verify(ctx, parts[1])
			if err != nil {
				logger.Debug("token_verification_failed", zap.String("error", logpkg.SanitizeError(err)))
				respondError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
				return
			}

			rec, err := manager.CurrentRecord(ctx, *assertion)
			if err != nil {
				switch {
				case identity.IsConflict(err):
					respondError(w, http.StatusConflict, "account_conflict",
						"This email is already associated with a different account")
				case store.IsTransient(err):
					logger.Warn("identity_resolution_unavailable",
						zap.String("external_uid", logpkg.SanitizeUserID(assertion.ExternalUID)),
						zap.Error(err),
					)
					respondError(w, http.StatusServiceUnavailable, "temporarily_unavailable",
						"Please retry in a moment")
				default:
					logger.Error("identity_resolution_failed",
						zap.String("external_uid", logpkg.SanitizeUserID(assertion.ExternalUID)),
						zap.Error(err),
					)
					respondError(w, http.StatusInternalServerError, "resolution_failed",
						"Failed to resolve identity")
				}
				return
			}

			ctx = request.WithAssertion(ctx, *assertion)
			ctx = request.WithRecord(ctx, rec)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminToken gates administrative routes behind a static bearer token. An
// empty configured token disables the surface entirely.
func AdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				respondError(w, http.StatusForbidden, "admin_disabled", "Administrative surface is not configured")
				return
			}
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got != token {
				respondError(w, http.StatusForbidden, "forbidden", "Invalid admin token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func respondError(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":   false,
		"error":     errorType,
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
