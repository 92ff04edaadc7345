// Package bostonscientific implements the Boston Scientific LATITUDE-style
// vendor integration: an OAuth2 client-credentials auth provider and a device
// API client translating the vendor wire format into the canonical model.
package bostonscientific

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cardiac-monitor/internal/auth"
	"cardiac-monitor/internal/restclient"
)

// Manufacturer is the registry key for this integration.
const Manufacturer = "boston_scientific"

const tokenScope = "device_data patient_data alerts"

// AuthProvider obtains tokens from the vendor OAuth endpoint.
type AuthProvider struct {
	http  *restclient.Client
	clock auth.Clock
}

// ProviderOption customizes the provider.
type ProviderOption func(*AuthProvider)

// WithProviderClock assigns a clock.
func WithProviderClock(clock auth.Clock) ProviderOption {
	return func(p *AuthProvider) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// NewAuthProvider constructs a provider talking to the given REST client.
func NewAuthProvider(httpClient *restclient.Client, opts ...ProviderOption) (*AuthProvider, error) {
	if httpClient == nil {
		return nil, errors.New("bostonscientific: nil http client")
	}
	provider := &AuthProvider{http: httpClient, clock: utcClock{}}
	for _, opt := range opts {
		opt(provider)
	}
	return provider, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// Authenticate performs the client-credentials grant.
func (p *AuthProvider) Authenticate(ctx context.Context, creds auth.Credentials) (auth.Token, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return auth.Token{}, errors.New("bostonscientific: client id and secret required")
	}
	body := map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     creds.ClientID,
		"client_secret": creds.ClientSecret,
		"scope":         tokenScope,
	}
	var resp tokenResponse
	if err := p.http.Post(ctx, "/oauth/token", body, nil, &resp); err != nil {
		return auth.Token{}, fmt.Errorf("bostonscientific: authenticate: %w", err)
	}
	return p.buildToken(resp), nil
}

// Refresh exchanges the refresh token for a new access token, falling back to
// a full re-authentication when the token carries no refresh token.
func (p *AuthProvider) Refresh(ctx context.Context, token auth.Token, creds auth.Credentials) (auth.Token, error) {
	if token.RefreshToken == "" {
		return p.Authenticate(ctx, creds)
	}
	body := map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": token.RefreshToken,
		"client_id":     creds.ClientID,
		"client_secret": creds.ClientSecret,
	}
	var resp tokenResponse
	if err := p.http.Post(ctx, "/oauth/token", body, nil, &resp); err != nil {
		return auth.Token{}, fmt.Errorf("bostonscientific: refresh: %w", err)
	}
	refreshed := p.buildToken(resp)
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = token.RefreshToken
	}
	if refreshed.Scope == "" {
		refreshed.Scope = token.Scope
	}
	return refreshed, nil
}

// IsTokenValid applies the shared expiry buffer.
func (p *AuthProvider) IsTokenValid(token auth.Token) bool {
	return token.AccessToken != "" && !token.Expired(p.clock.Now())
}

func (p *AuthProvider) buildToken(resp tokenResponse) auth.Token {
	tokenType := resp.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	token := auth.Token{
		AccessToken:  resp.AccessToken,
		TokenType:    tokenType,
		RefreshToken: resp.RefreshToken,
		Scope:        resp.Scope,
	}
	switch {
	case resp.ExpiresIn > 0:
		token.ExpiresAt = p.clock.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	default:
		// Some vendor environments omit expires_in; the access token itself
		// is a JWT whose exp claim carries the expiry.
		if exp, ok := jwtExpiry(resp.AccessToken); ok {
			token.ExpiresAt = exp
		}
	}
	return token
}

func jwtExpiry(accessToken string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time.UTC(), true
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
