package oidc

import (
	"context"
	"fmt"
	"net/url"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rubenelhore/simonkey-identity/internal/models"
)

// Verifier verifies provider ID tokens and normalizes their claims into an
// identity assertion.
type Verifier struct {
	keys   *KeyCache
	issuer string
}

// NewVerifier creates a token verifier bound to one issuer.
func NewVerifier(keys *KeyCache, issuer string) *Verifier {
	return &Verifier{keys: keys, issuer: issuer}
}

// Verify validates the token's signature, expiry, and issuer, then extracts
// the identity assertion. The assertion carries facts only; every resolution
// decision happens downstream.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*models.IdentityAssertion, error) {
	keys, err := v.keys.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	token, err := jwt.Parse([]byte(tokenString),
		jwt.WithKeySet(keys),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse/verify token: %w", err)
	}

	assertion := &models.IdentityAssertion{
		ExternalUID: token.Subject(),
	}
	if assertion.ExternalUID == "" {
		return nil, fmt.Errorf("token missing sub claim")
	}

	if email, ok := stringClaim(token, "email"); ok {
		assertion.Email = email
	}
	if verified, ok := token.Get("email_verified"); ok {
		if b, ok := verified.(bool); ok {
			assertion.EmailVerified = b
		}
	}
	if name, ok := stringClaim(token, "name"); ok {
		assertion.DisplayName = name
	}

	// Providers differ on where they report the sign-in method; fall back to
	// the issuer host when no explicit claim is present.
	if provider, ok := stringClaim(token, "provider"); ok {
		assertion.ProviderID = provider
	} else if u, err := url.Parse(v.issuer); err == nil && u.Host != "" {
		assertion.ProviderID = u.Host
	} else {
		assertion.ProviderID = v.issuer
	}

	return assertion, nil
}

func stringClaim(token jwt.Token, name string) (string, bool) {
	raw, ok := token.Get(name)
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
