package bostonscientific

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cardiac-monitor/internal/auth"
	"cardiac-monitor/internal/restclient"
)

type frozenClock struct {
	now time.Time
}

func (c frozenClock) Now() time.Time { return c.now }

func newProviderForServer(t *testing.T, server *httptest.Server, clock auth.Clock) *AuthProvider {
	t.Helper()
	httpClient, err := restclient.NewClient(server.URL)
	if err != nil {
		t.Fatalf("new rest client: %v", err)
	}
	provider, err := NewAuthProvider(httpClient, WithProviderClock(clock))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return provider
}

func TestAuthenticateClientCredentials(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	grants := make(chan map[string]string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/token" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body := map[string]string{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		grants <- body
		_ = json.NewEncoder(w).Encode(tokenResponse{
			AccessToken:  "access-1",
			TokenType:    "Bearer",
			ExpiresIn:    3600,
			RefreshToken: "refresh-1",
			Scope:        tokenScope,
		})
	}))
	defer server.Close()

	provider := newProviderForServer(t, server, frozenClock{now: now})
	token, err := provider.Authenticate(context.Background(), auth.Credentials{
		Manufacturer: Manufacturer,
		ClientID:     "cid",
		ClientSecret: "csec",
	})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if token.AccessToken != "access-1" || token.RefreshToken != "refresh-1" {
		t.Fatalf("unexpected token: %+v", token)
	}
	if !token.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected expiry now+1h, got %s", token.ExpiresAt)
	}
	grant := <-grants
	if grant["grant_type"] != "client_credentials" || grant["client_id"] != "cid" {
		t.Fatalf("unexpected grant request: %v", grant)
	}
}

func TestRefreshUsesRefreshTokenGrant(t *testing.T) {
	grants := make(chan map[string]string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		grants <- body
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "access-2", ExpiresIn: 3600})
	}))
	defer server.Close()

	provider := newProviderForServer(t, server, frozenClock{now: time.Now().UTC()})
	token, err := provider.Refresh(context.Background(), auth.Token{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Scope:        tokenScope,
	}, auth.Credentials{ClientID: "cid", ClientSecret: "csec"})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	grant := <-grants
	if grant["grant_type"] != "refresh_token" || grant["refresh_token"] != "refresh-1" {
		t.Fatalf("unexpected grant request: %v", grant)
	}
	// Refresh token and scope carry over when the response omits them.
	if token.RefreshToken != "refresh-1" || token.Scope != tokenScope {
		t.Fatalf("expected refresh token and scope preserved, got %+v", token)
	}
	if token.TokenType != "Bearer" {
		t.Fatalf("expected default token type Bearer, got %s", token.TokenType)
	}
}

func TestRefreshWithoutRefreshTokenReauthenticates(t *testing.T) {
	grants := make(chan map[string]string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		grants <- body
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "access-3", ExpiresIn: 60})
	}))
	defer server.Close()

	provider := newProviderForServer(t, server, frozenClock{now: time.Now().UTC()})
	if _, err := provider.Refresh(context.Background(), auth.Token{AccessToken: "old"}, auth.Credentials{ClientID: "cid", ClientSecret: "csec"}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	grant := <-grants
	if grant["grant_type"] != "client_credentials" {
		t.Fatalf("expected fallback to client_credentials, got %v", grant)
	}
}

func TestExpiryFromJWTWhenExpiresInAbsent(t *testing.T) {
	exp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "integration",
		"exp": exp.Unix(),
	}).SignedString([]byte("vendor-secret"))
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: signed})
	}))
	defer server.Close()

	provider := newProviderForServer(t, server, frozenClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)})
	token, err := provider.Authenticate(context.Background(), auth.Credentials{ClientID: "cid", ClientSecret: "csec"})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !token.ExpiresAt.Equal(exp) {
		t.Fatalf("expected expiry %s from jwt exp claim, got %s", exp, token.ExpiresAt)
	}
}

func TestIsTokenValidBuffer(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	provider := &AuthProvider{clock: frozenClock{now: now}}

	valid := auth.Token{AccessToken: "a", ExpiresAt: now.Add(10 * time.Minute)}
	if !provider.IsTokenValid(valid) {
		t.Fatalf("expected token valid outside buffer")
	}
	nearExpiry := auth.Token{AccessToken: "a", ExpiresAt: now.Add(4 * time.Minute)}
	if provider.IsTokenValid(nearExpiry) {
		t.Fatalf("expected token invalid inside 5-minute buffer")
	}
	forever := auth.Token{AccessToken: "a"}
	if !provider.IsTokenValid(forever) {
		t.Fatalf("expected token without expiry valid")
	}
	if provider.IsTokenValid(auth.Token{}) {
		t.Fatalf("expected empty token invalid")
	}
}
