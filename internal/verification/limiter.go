// Package verification enforces the resend policy for email verification
// messages: a minimum interval between sends and a daily cap that resets at
// the next calendar day. It tracks the counting policy only; whether a
// transport-level delivery failure still counts is the caller's choice.
package verification

import (
	"fmt"
	"math"
	"time"

	"github.com/rubenelhore/simonkey-identity/internal/models"
)

const (
	// DefaultMinResendInterval is the minimum gap between two sends.
	DefaultMinResendInterval = 5 * time.Minute
	// DefaultMaxPerDay caps sends within one calendar day.
	DefaultMaxPerDay = 5
)

// Policy holds the resend limits.
type Policy struct {
	MinResendInterval time.Duration
	MaxPerDay         int
}

// DefaultPolicy returns the production limits.
func DefaultPolicy() Policy {
	return Policy{MinResendInterval: DefaultMinResendInterval, MaxPerDay: DefaultMaxPerDay}
}

// Decision is the outcome of a resend check. Reason is human-readable and
// safe to surface to the user.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	Reason     string        `json:"reason,omitempty"`
	RetryAfter time.Duration `json:"-"`
}

// CanSend decides whether a verification message may be sent at now, given the
// record's current verification state. The interval check runs first so the
// user always sees the tighter constraint.
func (p Policy) CanSend(v models.EmailVerification, now time.Time) Decision {
	if v.LastVerificationSentAt != nil {
		elapsed := now.Sub(*v.LastVerificationSentAt)
		if elapsed < p.MinResendInterval {
			remaining := p.MinResendInterval - elapsed
			minutes := int(math.Ceil(remaining.Minutes()))
			return Decision{
				Allowed:    false,
				Reason:     fmt.Sprintf("wait %d minute(s) before requesting another verification email", minutes),
				RetryAfter: remaining,
			}
		}
		if sameDay(*v.LastVerificationSentAt, now) && v.VerificationCount >= p.MaxPerDay {
			return Decision{
				Allowed: false,
				Reason:  "daily verification limit reached, try again tomorrow",
			}
		}
	}
	return Decision{Allowed: true}
}

// RecordSend returns the verification state after a send at now: the count
// restarts at 1 on a new calendar day and increments otherwise, and the
// last-sent timestamp always advances.
func (p Policy) RecordSend(v models.EmailVerification, now time.Time) models.EmailVerification {
	if v.LastVerificationSentAt == nil || !sameDay(*v.LastVerificationSentAt, now) {
		v.VerificationCount = 1
	} else {
		v.VerificationCount++
	}
	sent := now
	v.LastVerificationSentAt = &sent
	return v
}

// sameDay reports whether a and b fall on the same UTC calendar day.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
