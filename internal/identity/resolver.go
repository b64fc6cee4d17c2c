package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	logpkg "github.com/rubenelhore/simonkey-identity/internal/logger"
	"github.com/rubenelhore/simonkey-identity/internal/models"
	"github.com/rubenelhore/simonkey-identity/internal/store"
	"go.uber.org/zap"
)

// maxLinkAttempts bounds the re-evaluation loop when a conditional link loses
// a race. Two attempts suffice in practice (the re-fetch settles the outcome);
// the third absorbs a reconciliation pass deleting the candidate mid-flight.
const maxLinkAttempts = 3

// Resolver maps an identity assertion onto exactly one canonical user record,
// creating or linking as needed. It performs at most one store mutation per
// call and never mutates state on a failure path, so a caller may treat any
// error as "nothing happened".
type Resolver struct {
	store      store.RecordStore
	precedence PrecedenceOrder
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPrecedence overrides the account-class precedence order.
func WithPrecedence(order PrecedenceOrder) Option {
	return func(r *Resolver) {
		if len(order) > 0 {
			r.precedence = order
		}
	}
}

// WithClock overrides the creation-timestamp source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver creates a resolver over the given record store.
func NewResolver(s store.RecordStore, logger *zap.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		store:      s,
		precedence: DefaultPrecedence(),
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// Resolve returns the canonical record for the assertion. Evaluation order:
//
//  1. direct hit on the external uid
//  2. reverse-link hit (pre-provisioned record linked in a prior session)
//  3. email match: adopt the best candidate, linking it if unlinked,
//     conflicting if linked elsewhere
//  4. create a fresh record keyed by the external uid
//
// Calling Resolve twice with the same assertion yields the same record id and
// never creates a second record.
func (r *Resolver) Resolve(ctx context.Context, a models.IdentityAssertion) (*models.UserRecord, error) {
	if a.ExternalUID == "" {
		return nil, ErrMissingExternalUID
	}

	// Step 1: the uid is already a record key.
	rec, err := r.store.GetByID(ctx, a.ExternalUID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("direct lookup failed: %w", err)
	}

	// Step 2: a record under a different key already carries this link edge.
	linked, err := r.store.GetByLinkedUID(ctx, a.ExternalUID)
	if err != nil {
		return nil, fmt.Errorf("reverse-link lookup failed: %w", err)
	}
	if len(linked) > 0 {
		if len(linked) > 1 {
			// Duplicate link edges only happen when reconciliation is
			// overdue. Pick deterministically; the reconciler collapses the
			// rest.
			r.logger.Warn("multiple_records_share_link_edge",
				zap.String("external_uid", logpkg.SanitizeUserID(a.ExternalUID)),
				zap.Int("count", len(linked)),
			)
		}
		return SelectCanonical(linked, r.precedence), nil
	}

	// Step 3: adopt a record that holds this email.
	if a.HasEmail() {
		rec, err := r.adoptByEmail(ctx, a)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
	}

	// Step 4: first sign-in, no pre-provisioned record. Create atomically; a
	// concurrent identical sign-in may win the insert, in which case its
	// record is ours too.
	rec = r.newRecord(a)
	err = r.store.Create(ctx, rec)
	if errors.Is(err, store.ErrDuplicateKey) {
		existing, getErr := r.store.GetByID(ctx, a.ExternalUID)
		if getErr != nil {
			return nil, fmt.Errorf("re-fetch after lost create race failed: %w", getErr)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create record failed: %w", err)
	}

	r.logger.Info("created_user_record",
		zap.String("record_id", logpkg.SanitizeUserID(rec.RecordID)),
		zap.String("provider", a.ProviderID),
	)
	return rec, nil
}

// adoptByEmail runs step 3. It returns (nil, nil) when no record holds the
// email, handing control to the create step.
func (r *Resolver) adoptByEmail(ctx context.Context, a models.IdentityAssertion) (*models.UserRecord, error) {
	for attempt := 0; attempt < maxLinkAttempts; attempt++ {
		candidates, err := r.store.GetByEmail(ctx, a.Email)
		if err != nil {
			return nil, fmt.Errorf("email lookup failed: %w", err)
		}
		if len(candidates) == 0 {
			return nil, nil
		}

		c := SelectCanonical(candidates, r.precedence)
		switch {
		case !c.IsLinked():
			applied, err := r.store.LinkExternalUID(ctx, c.RecordID, a.ExternalUID)
			if err != nil {
				return nil, fmt.Errorf("link failed: %w", err)
			}
			if applied {
				uid := a.ExternalUID
				c.LinkedExternalUID = &uid
				r.logger.Info("linked_existing_record",
					zap.String("record_id", logpkg.SanitizeUserID(c.RecordID)),
					zap.String("account_class", string(c.AccountClass)),
				)
				return c, nil
			}
			// Lost the race: someone linked the candidate first, or a
			// reconciliation pass deleted it. Re-fetch and re-evaluate.
			current, err := r.store.GetByID(ctx, c.RecordID)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("re-fetch after lost link race failed: %w", err)
			}
			if current.LinkedTo(a.ExternalUID) {
				return current, nil
			}
			if current.IsLinked() {
				return nil, r.conflict(a, current)
			}
			// Guard failed yet the edge is still unset: the winning write has
			// not become visible. Loop and retry the conditional link.

		case c.LinkedTo(a.ExternalUID):
			// Already linked to this identity in a prior session. Idempotent.
			return c, nil

		default:
			return nil, r.conflict(a, c)
		}
	}
	return nil, fmt.Errorf("gave up adopting email %q after %d attempts: %w",
		a.Email, maxLinkAttempts, &store.TransientError{Op: "adopt_by_email", Err: errors.New("link race did not settle")})
}

func (r *Resolver) conflict(a models.IdentityAssertion, rec *models.UserRecord) error {
	r.logger.Warn("account_conflict",
		zap.String("record_id", logpkg.SanitizeUserID(rec.RecordID)),
		zap.String("email", logpkg.SanitizeEmail(a.Email)),
	)
	linkedUID := ""
	if rec.LinkedExternalUID != nil {
		linkedUID = *rec.LinkedExternalUID
	}
	return &ConflictError{
		Email:        a.Email,
		RecordID:     rec.RecordID,
		LinkedUID:    linkedUID,
		AttemptedUID: a.ExternalUID,
	}
}

func (r *Resolver) newRecord(a models.IdentityAssertion) *models.UserRecord {
	now := r.now()
	uid := a.ExternalUID
	rec := &models.UserRecord{
		RecordID:          a.ExternalUID,
		Email:             a.Email,
		AccountClass:      models.AccountClassStandard,
		LinkedExternalUID: &uid,
		Verification: models.EmailVerification{
			IsVerified: a.EmailVerified,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if a.DisplayName != "" {
		name := a.DisplayName
		rec.DisplayName = &name
	}
	return rec
}
