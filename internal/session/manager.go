package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rubenelhore/simonkey-identity/internal/identity"
	logpkg "github.com/rubenelhore/simonkey-identity/internal/logger"
	"github.com/rubenelhore/simonkey-identity/internal/models"
	"github.com/rubenelhore/simonkey-identity/internal/store"
	"go.uber.org/zap"
)

// Manager is the effective-id facade: it re-resolves on every authentication
// event, caches the outcome per external uid, and tears the session down on an
// account conflict so no caller ever operates under an ambiguous identity.
//
// The manager is constructed once by the application root and carries an
// explicit Start/Stop lifecycle instead of process-global state.
type Manager struct {
	resolver *identity.Resolver
	records  store.RecordStore
	sessions *RedisStore
	logger   *zap.Logger

	mu      sync.Mutex
	started bool
}

// NewManager creates the facade.
func NewManager(resolver *identity.Resolver, records store.RecordStore, sessions *RedisStore, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{resolver: resolver, records: records, sessions: sessions, logger: logger}
}

// Start verifies the session backend is reachable. Calling Start twice is an
// error; the manager has exactly one owner.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New("session manager already started")
	}
	if err := m.sessions.Ping(ctx); err != nil {
		return fmt.Errorf("session backend unreachable: %w", err)
	}
	m.started = true
	return nil
}

// Stop releases the session backend connection.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}
	m.started = false
	return m.sessions.Close()
}

// ResolveIdentity runs full resolution for a fresh authentication event and
// caches the effective id. On AccountConflict the cached session is cleared
// before the error propagates, signing the external identity back out.
func (m *Manager) ResolveIdentity(ctx context.Context, a models.IdentityAssertion) (*models.UserRecord, error) {
	rec, err := m.resolver.Resolve(ctx, a)
	if err != nil {
		if identity.IsConflict(err) {
			if clearErr := m.sessions.Clear(ctx, a.ExternalUID); clearErr != nil {
				m.logger.Warn("failed_to_clear_conflicted_session",
					zap.String("external_uid", logpkg.SanitizeUserID(a.ExternalUID)),
					zap.Error(clearErr),
				)
			}
		}
		return nil, err
	}

	entry := Entry{RecordID: rec.RecordID, Email: rec.Email, ResolvedAt: rec.UpdatedAt}
	if err := m.sessions.Save(ctx, a.ExternalUID, entry); err != nil {
		// Cache failures degrade to re-resolution on the next request.
		m.logger.Warn("failed_to_cache_effective_id",
			zap.String("external_uid", logpkg.SanitizeUserID(a.ExternalUID)),
			zap.Error(err),
		)
	}
	return rec, nil
}

// CurrentRecord returns the canonical record for an already-authenticated
// external uid, using the cached effective id when present and falling back to
// full resolution on a cache miss (the sign-in event).
func (m *Manager) CurrentRecord(ctx context.Context, a models.IdentityAssertion) (*models.UserRecord, error) {
	entry, err := m.sessions.Lookup(ctx, a.ExternalUID)
	if err == nil {
		rec, getErr := m.records.GetByID(ctx, entry.RecordID)
		if getErr == nil {
			return rec, nil
		}
		if !errors.Is(getErr, store.ErrNotFound) {
			return nil, getErr
		}
		// The cached record was deleted, likely by a reconciliation pass.
		// Drop the stale entry and re-resolve.
		_ = m.sessions.Clear(ctx, a.ExternalUID)
	} else if !errors.Is(err, ErrNoSession) {
		m.logger.Warn("session_lookup_failed",
			zap.String("external_uid", logpkg.SanitizeUserID(a.ExternalUID)),
			zap.Error(err),
		)
	}
	return m.ResolveIdentity(ctx, a)
}

// EffectiveUserID returns the cached effective id for the external uid. The
// cheap accessor: no resolution, no store access.
func (m *Manager) EffectiveUserID(ctx context.Context, externalUID string) (string, bool) {
	entry, err := m.sessions.Lookup(ctx, externalUID)
	if err != nil {
		return "", false
	}
	return entry.RecordID, true
}

// SignOut clears the cached session for the external uid.
func (m *Manager) SignOut(ctx context.Context, externalUID string) error {
	return m.sessions.Clear(ctx, externalUID)
}
