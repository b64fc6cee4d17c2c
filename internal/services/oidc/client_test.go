package oidc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	cfg := ProviderConfig{
		Issuer:       "https://auth.example.com",
		ClientID:     "test-client-id",
		ClientSecret: "test-secret",
		RedirectURI:  "http://localhost:3000/callback",
	}

	client := NewClient(cfg)

	if client.config.ClientID != "test-client-id" {
		t.Errorf("ClientID = %q, want test-client-id", client.config.ClientID)
	}
	if client.config.ClientSecret != "test-secret" {
		t.Errorf("ClientSecret = %q, want test-secret", client.config.ClientSecret)
	}
	if client.config.RedirectURL != "http://localhost:3000/callback" {
		t.Errorf("RedirectURL = %q", client.config.RedirectURL)
	}
	if client.config.Endpoint.TokenURL != "https://auth.example.com/oauth2/token" {
		t.Errorf("TokenURL = %q, want conventional issuer layout", client.config.Endpoint.TokenURL)
	}
}

func TestClientAuthCodeURL(t *testing.T) {
	t.Parallel()

	client := NewClient(ProviderConfig{
		Issuer:      "https://auth.example.com",
		ClientID:    "test-client-id",
		RedirectURI: "http://localhost:3000/callback",
	})

	url := client.AuthCodeURL("test-state-123")

	if !strings.Contains(url, "state=test-state-123") {
		t.Errorf("AuthCodeURL missing state: %s", url)
	}
	if !strings.Contains(url, "client_id=test-client-id") {
		t.Errorf("AuthCodeURL missing client_id: %s", url)
	}
	if !strings.HasPrefix(url, "https://auth.example.com/oauth2/authorize") {
		t.Errorf("AuthCodeURL has wrong endpoint: %s", url)
	}
}

func TestClientExchangeCode(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/token" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-abc",
			"token_type":   "Bearer",
			"id_token":     "signed-id-token",
		})
	}))
	t.Cleanup(server.Close)

	client := NewClient(ProviderConfig{
		Issuer:      server.URL,
		ClientID:    "test-client-id",
		RedirectURI: "http://localhost:3000/callback",
	})

	idToken, err := client.ExchangeCode(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if idToken != "signed-id-token" {
		t.Errorf("id token = %q, want signed-id-token", idToken)
	}
}

func TestClientExchangeCodeMissingIDToken(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-abc",
			"token_type":   "Bearer",
		})
	}))
	t.Cleanup(server.Close)

	client := NewClient(ProviderConfig{
		Issuer:      server.URL,
		ClientID:    "test-client-id",
		RedirectURI: "http://localhost:3000/callback",
	})

	if _, err := client.ExchangeCode(context.Background(), "auth-code"); err == nil {
		t.Error("ExchangeCode() succeeded without id_token, want error")
	}
}
