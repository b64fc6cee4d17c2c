package request

import (
	"context"
	"net/http"
	"strings"

	"github.com/rubenelhore/simonkey-identity/internal/models"
)

type contextKey string

const (
	recordContextKey    contextKey = "user_record"
	assertionContextKey contextKey = "identity_assertion"
)

// ClientIP extracts the client IP from the request, respecting X-Forwarded-For and X-Real-IP.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return r.RemoteAddr
}

// WithRecord returns a context with the resolved canonical record attached.
func WithRecord(ctx context.Context, rec *models.UserRecord) context.Context {
	return context.WithValue(ctx, recordContextKey, rec)
}

// RecordFromContext returns the resolved record, or nil if the request is
// unauthenticated.
func RecordFromContext(r *http.Request) *models.UserRecord {
	rec, _ := r.Context().Value(recordContextKey).(*models.UserRecord)
	return rec
}

// WithAssertion returns a context with the verified identity assertion attached.
func WithAssertion(ctx context.Context, a models.IdentityAssertion) context.Context {
	return context.WithValue(ctx, assertionContextKey, a)
}

// AssertionFromContext returns the verified assertion for the request.
func AssertionFromContext(r *http.Request) (models.IdentityAssertion, bool) {
	a, ok := r.Context().Value(assertionContextKey).(models.IdentityAssertion)
	return a, ok
}
