// Package oidc adapts the external identity provider: token verification,
// code exchange, and login configuration. It is the only package that knows
// what a provider token looks like; everything downstream works with
// models.IdentityAssertion.
package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ProviderConfig is the static configuration for the identity provider.
type ProviderConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	JWKSURL      string
}

// Provider exposes provider configuration to handlers.
type Provider struct {
	config ProviderConfig
}

// NewProvider creates a provider from static configuration.
func NewProvider(config ProviderConfig) *Provider {
	return &Provider{config: config}
}

// Config returns the provider configuration.
func (p *Provider) Config() ProviderConfig {
	return p.config
}

// LoginConfig contains OIDC login configuration for the frontend.
type LoginConfig struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	ClientID              string `json:"client_id"`
	RedirectURI           string `json:"redirect_uri"`
	Scope                 string `json:"scope"`
}

// GetLoginConfig builds the frontend login configuration, preferring the
// issuer's discovery document and falling back to the conventional endpoint
// layout when discovery is unavailable.
func (p *Provider) GetLoginConfig(ctx context.Context) (*LoginConfig, error) {
	authEndpoint, tokenEndpoint := p.discoverEndpoints(ctx)

	if authEndpoint == "" {
		authEndpoint = joinIssuerPath(p.config.Issuer, "oauth2/authorize")
	}
	if tokenEndpoint == "" {
		tokenEndpoint = joinIssuerPath(p.config.Issuer, "oauth2/token")
	}

	return &LoginConfig{
		AuthorizationEndpoint: authEndpoint,
		TokenEndpoint:         tokenEndpoint,
		ClientID:              p.config.ClientID,
		RedirectURI:           p.config.RedirectURI,
		Scope:                 "openid email profile",
	}, nil
}

func (p *Provider) discoverEndpoints(ctx context.Context) (authEndpoint, tokenEndpoint string) {
	discoveryURL := joinIssuerPath(p.config.Issuer, ".well-known/openid-configuration")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return "", ""
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return "", ""
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var discovery struct {
		AuthorizationEndpoint string `json:"authorization_endpoint"`
		TokenEndpoint         string `json:"token_endpoint"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&discovery); err != nil {
		return "", ""
	}
	return discovery.AuthorizationEndpoint, discovery.TokenEndpoint
}

func joinIssuerPath(issuer, path string) string {
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(issuer, "/"), path)
}
