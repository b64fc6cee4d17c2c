package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rubenelhore/simonkey-identity/internal/models"
)

var (
	// ErrNotFound indicates the requested record does not exist. It is a
	// definite answer from the store, never a transport failure.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey indicates a create-if-absent lost to an existing record.
	ErrDuplicateKey = errors.New("record already exists")
)

// TransientError wraps a store failure that the caller may retry: timeouts,
// connection loss, backend unavailability. It must never be interpreted as
// "record absent".
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient store error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is (or wraps) a retryable store failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// RecordStore is the narrow adapter over the document store holding user
// records. All operations act on a single record; there is no cross-record
// transaction primitive. Callers get atomicity per operation plus idempotent
// retries, nothing more.
type RecordStore interface {
	// GetByID returns the record with the given id, or ErrNotFound.
	GetByID(ctx context.Context, recordID string) (*models.UserRecord, error)

	// GetByEmail returns all records with the given email, in no particular
	// order. Duplicates can transiently exist; callers must not assume
	// uniqueness.
	GetByEmail(ctx context.Context, email string) ([]*models.UserRecord, error)

	// GetByLinkedUID returns all records whose link edge points at the given
	// external uid.
	GetByLinkedUID(ctx context.Context, externalUID string) ([]*models.UserRecord, error)

	// Create atomically creates the record if its id is absent, returning
	// ErrDuplicateKey when it is not.
	Create(ctx context.Context, rec *models.UserRecord) error

	// LinkExternalUID atomically sets the link edge on the record, guarded on
	// the current edge being unset. Returns false (and no error) when the
	// guard failed: the record was linked concurrently or no longer exists.
	LinkExternalUID(ctx context.Context, recordID, externalUID string) (bool, error)

	// SetVerification replaces the verification sub-object of the record. No
	// other field is touched.
	SetVerification(ctx context.Context, recordID string, v models.EmailVerification) error

	// Delete removes the record. Deleting an absent record returns ErrNotFound.
	Delete(ctx context.Context, recordID string) error

	// ListDuplicateEmails returns every email currently held by more than one
	// record. Used by the scan-all reconciliation pass.
	ListDuplicateEmails(ctx context.Context) ([]string, error)

	// HealthCheck verifies the backing store is reachable.
	HealthCheck(ctx context.Context) error
}
