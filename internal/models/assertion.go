package models

// IdentityAssertion is the normalized output of a successful external
// authentication. It carries facts only, no decisions; it is never persisted
// as-is.
type IdentityAssertion struct {
	ExternalUID   string `json:"external_uid"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	ProviderID    string `json:"provider_id"`
	DisplayName   string `json:"display_name,omitempty"`
}

// HasEmail reports whether the identity provider supplied an email address.
// Some providers (phone auth, anonymous) do not.
func (a IdentityAssertion) HasEmail() bool {
	return a.Email != ""
}
