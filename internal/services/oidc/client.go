package oidc

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// Client wraps the OAuth2 authorization-code flow against the provider.
type Client struct {
	config *oauth2.Config
}

// NewClient creates an OAuth2 client from provider configuration. The token
// endpoint follows the conventional issuer layout; providers with discovery
// documents report the same endpoints there.
func NewClient(cfg ProviderConfig) *Client {
	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  joinIssuerPath(cfg.Issuer, "oauth2/authorize"),
			TokenURL: joinIssuerPath(cfg.Issuer, "oauth2/token"),
		},
	}
	return &Client{config: config}
}

// ExchangeCode exchanges an authorization code for tokens and returns the ID
// token for verification.
func (c *Client) ExchangeCode(ctx context.Context, code string) (idToken string, err error) {
	token, err := c.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("code exchange failed: %w", err)
	}
	raw, ok := token.Extra("id_token").(string)
	if !ok || raw == "" {
		return "", fmt.Errorf("token response missing id_token")
	}
	return raw, nil
}

// AuthCodeURL returns the authorization URL for the given state.
func (c *Client) AuthCodeURL(state string) string {
	return c.config.AuthCodeURL(state)
}
