package identity

import (
	"errors"
	"fmt"
)

// ErrMissingExternalUID indicates the assertion carried no external uid.
// The IdP adapter should never produce such an assertion; this guards the
// boundary anyway.
var ErrMissingExternalUID = errors.New("identity assertion has no external uid")

// ConflictError is returned when an assertion's email matches a record that is
// already linked to a different external identity. It is terminal for the
// sign-in attempt and never auto-resolved: creating a second record here would
// fork state, and silently relinking would steal the account.
type ConflictError struct {
	Email        string
	RecordID     string
	LinkedUID    string
	AttemptedUID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("account conflict: email %q is already associated with a different account (record %s)",
		e.Email, e.RecordID)
}

// IsConflict reports whether err is (or wraps) an account conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
