package models

import (
	"time"
)

// AccountClass is the precedence class of a user record, not a permission
// level. When several records could match the same identity assertion, the
// record whose class ranks higher in the configured precedence order wins.
type AccountClass string

const (
	// AccountClassStandard is a self-registered account.
	AccountClassStandard AccountClass = "standard"
	// AccountClassPrivileged is an administratively pre-provisioned account
	// (for example a school roster import). It outranks standard accounts
	// during resolution and reconciliation.
	AccountClassPrivileged AccountClass = "privileged-precedence"
)

// EmailVerification tracks the verification state and resend accounting for a
// user record. The verification count resets at the start of each calendar day.
type EmailVerification struct {
	IsVerified             bool       `json:"is_verified"`
	VerificationCount      int        `json:"verification_count"`
	LastVerificationSentAt *time.Time `json:"last_verification_sent_at,omitempty"`
}

// UserRecord is the canonical persisted record for one person.
//
// RecordID equals the external uid for self-registered users, but
// pre-provisioned records carry an administratively chosen id. RecordID is
// immutable once created.
//
// LinkedExternalUID, once set, never changes to a different non-nil value
// without an explicit administrative action; the resolver rejects sign-ins
// that would require it.
type UserRecord struct {
	RecordID          string            `json:"record_id"`
	Email             string            `json:"email"`
	DisplayName       *string           `json:"display_name,omitempty"`
	AccountClass      AccountClass      `json:"account_class"`
	LinkedExternalUID *string           `json:"linked_external_uid,omitempty"`
	Verification      EmailVerification `json:"email_verification"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// IsLinked reports whether an external identity has been associated with this
// record.
func (r *UserRecord) IsLinked() bool {
	return r.LinkedExternalUID != nil && *r.LinkedExternalUID != ""
}

// LinkedTo reports whether this record is linked to the given external uid.
func (r *UserRecord) LinkedTo(externalUID string) bool {
	return r.LinkedExternalUID != nil && *r.LinkedExternalUID == externalUID
}

// Clone returns a deep copy of the record. Store implementations hand out
// clones so callers can never mutate stored state in place.
func (r *UserRecord) Clone() *UserRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.DisplayName != nil {
		name := *r.DisplayName
		out.DisplayName = &name
	}
	if r.LinkedExternalUID != nil {
		uid := *r.LinkedExternalUID
		out.LinkedExternalUID = &uid
	}
	if r.Verification.LastVerificationSentAt != nil {
		sent := *r.Verification.LastVerificationSentAt
		out.Verification.LastVerificationSentAt = &sent
	}
	return &out
}
