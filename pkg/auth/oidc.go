package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCConfig holds the settings for an OIDC-backed auth instance.
type OIDCConfig struct {
	IssuerURL     string
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	UsernameClaim string
}

// OIDCAuthenticator authenticates accounts whose identity is asserted by an
// external OpenID Connect issuer. The presented secret is a raw ID token
// obtained by the caller (device flow, token exchange or a front-channel
// login handled outside this core); this authenticator only verifies it and
// matches the username claim.
type OIDCAuthenticator struct {
	config   OIDCConfig
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	oauth    oauth2.Config
}

// NewOIDCAuthenticator discovers the issuer and prepares an ID token
// verifier.
func NewOIDCAuthenticator(ctx context.Context, config OIDCConfig) (*OIDCAuthenticator, error) {
	if config.IssuerURL == "" {
		return nil, fmt.Errorf("OIDC issuer URL is required")
	}
	if config.UsernameClaim == "" {
		config.UsernameClaim = "preferred_username"
	}

	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: config.ClientID})

	return &OIDCAuthenticator{
		config:   config,
		provider: provider,
		verifier: verifier,
		oauth: oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile"},
		},
	}, nil
}

// AuthCodeURL returns the issuer's authorization URL for a front-channel
// login. state is the caller's anti-forgery token.
func (a *OIDCAuthenticator) AuthCodeURL(state string) string {
	return a.oauth.AuthCodeURL(state)
}

// Exchange redeems an authorization code at the issuer's token endpoint and
// returns the raw ID token, ready to present as the login secret.
func (a *OIDCAuthenticator) Exchange(ctx context.Context, code string) (string, error) {
	token, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	raw, ok := token.Extra("id_token").(string)
	if !ok || raw == "" {
		return "", fmt.Errorf("token response is missing an ID token")
	}
	return raw, nil
}

// AuthenticateUserAccount verifies the raw ID token and checks that its
// username claim matches the account being authenticated. A token for a
// different subject is a plain mismatch, not an error.
func (a *OIDCAuthenticator) AuthenticateUserAccount(ctx context.Context, creds Credentials, secret string) (bool, error) {
	if secret == "" {
		return false, ErrInstanceDeclined
	}

	idToken, err := a.verifier.Verify(ctx, secret)
	if err != nil {
		// Not a verifiable token from this issuer; let another instance try.
		return false, ErrInstanceDeclined
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return false, fmt.Errorf("failed to parse ID token claims: %w", err)
	}

	username, _ := claims[a.config.UsernameClaim].(string)
	if username == "" {
		return false, fmt.Errorf("ID token is missing the %q claim", a.config.UsernameClaim)
	}

	return username == creds.Username, nil
}

// PostLogin is a no-op; profile synchronization from the issuer is handled
// by the consuming application.
func (a *OIDCAuthenticator) PostLogin(ctx context.Context, userID int64) error {
	return nil
}
