package verification

import (
	"context"
	"fmt"
	"time"

	logpkg "github.com/rubenelhore/simonkey-identity/internal/logger"
	"github.com/rubenelhore/simonkey-identity/internal/models"
	"github.com/rubenelhore/simonkey-identity/internal/store"
	"go.uber.org/zap"
)

// Sender dispatches a verification message to an address. Delivery is someone
// else's problem; this package only decides and counts.
type Sender interface {
	SendVerification(ctx context.Context, email, displayName string) error
}

// LogSender records the dispatch intent without sending anything. Production
// deployments delegate actual delivery to the identity provider; this keeps
// local and test environments honest about what would have gone out.
type LogSender struct {
	Logger *zap.Logger
}

// SendVerification logs the would-be dispatch.
func (s *LogSender) SendVerification(ctx context.Context, email, displayName string) error {
	if s.Logger != nil {
		s.Logger.Info("verification_email_dispatch",
			zap.String("email", logpkg.SanitizeEmail(email)),
		)
	}
	return nil
}

// Service applies the resend policy against the record store and hands allowed
// sends to the Sender.
type Service struct {
	store  store.RecordStore
	policy Policy
	sender Sender
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a verification service. A nil sender falls back to
// LogSender.
func NewService(s store.RecordStore, policy Policy, sender Sender, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = &LogSender{Logger: logger}
	}
	return &Service{store: s, policy: policy, sender: sender, logger: logger, now: time.Now}
}

// SetClock overrides the time source. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// RequestResend consults the policy and, when allowed, records the send before
// dispatching. Counting before dispatch means a transport failure still
// consumes quota, which keeps a flaky mail path from becoming a limiter
// bypass.
func (s *Service) RequestResend(ctx context.Context, rec *models.UserRecord) (Decision, error) {
	now := s.now()
	decision := s.policy.CanSend(rec.Verification, now)
	if !decision.Allowed {
		s.logger.Info("verification_resend_denied",
			zap.String("record_id", logpkg.SanitizeUserID(rec.RecordID)),
			zap.String("reason", decision.Reason),
		)
		return decision, nil
	}

	updated := s.policy.RecordSend(rec.Verification, now)
	if err := s.store.SetVerification(ctx, rec.RecordID, updated); err != nil {
		return decision, fmt.Errorf("record verification send: %w", err)
	}
	rec.Verification = updated

	displayName := ""
	if rec.DisplayName != nil {
		displayName = *rec.DisplayName
	}
	if err := s.sender.SendVerification(ctx, rec.Email, displayName); err != nil {
		return decision, fmt.Errorf("dispatch verification message: %w", err)
	}
	return decision, nil
}

// MarkVerified flips the record's verified flag. Idempotent: a record already
// verified is left untouched.
func (s *Service) MarkVerified(ctx context.Context, rec *models.UserRecord) error {
	if rec.Verification.IsVerified {
		return nil
	}
	updated := rec.Verification
	updated.IsVerified = true
	if err := s.store.SetVerification(ctx, rec.RecordID, updated); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	rec.Verification = updated
	s.logger.Info("email_marked_verified",
		zap.String("record_id", logpkg.SanitizeUserID(rec.RecordID)),
	)
	return nil
}
