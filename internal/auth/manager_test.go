package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type stubSecretStore struct {
	mu    sync.Mutex
	creds map[string]Credentials
	err   error
}

func newStubSecretStore(creds ...Credentials) *stubSecretStore {
	store := &stubSecretStore{creds: make(map[string]Credentials)}
	for _, c := range creds {
		store.creds[c.Manufacturer] = c
	}
	return store
}

func (s *stubSecretStore) Get(_ context.Context, manufacturer string) (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.creds[manufacturer]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *stubSecretStore) Put(_ context.Context, manufacturer string, creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[manufacturer] = creds
	return nil
}

func (s *stubSecretStore) Delete(_ context.Context, manufacturer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, manufacturer)
	return nil
}

func (s *stubSecretStore) ListKeys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.creds))
	for k := range s.creds {
		keys = append(keys, k)
	}
	return keys, nil
}

type stubProvider struct {
	token        Token
	authErr      error
	refreshErr   error
	valid        bool
	authCalls    int
	refreshCalls int
}

func (p *stubProvider) Authenticate(_ context.Context, _ Credentials) (Token, error) {
	p.authCalls++
	if p.authErr != nil {
		return Token{}, p.authErr
	}
	return p.token, nil
}

func (p *stubProvider) Refresh(_ context.Context, _ Token, _ Credentials) (Token, error) {
	p.refreshCalls++
	if p.refreshErr != nil {
		return Token{}, p.refreshErr
	}
	return p.token, nil
}

func (p *stubProvider) IsTokenValid(_ Token) bool { return p.valid }

func TestGetValidTokenUsesCache(t *testing.T) {
	store := newStubSecretStore(Credentials{Manufacturer: "bsc", ClientID: "id", ClientSecret: "sec"})
	provider := &stubProvider{token: Token{AccessToken: "fresh", ExpiresAt: time.Now().UTC().Add(time.Hour)}}
	manager, err := NewManager(store, NewTokenCache(), nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := manager.RegisterProvider("bsc", provider); err != nil {
		t.Fatalf("register provider: %v", err)
	}

	for i := 0; i < 3; i++ {
		token, err := manager.GetValidToken(context.Background(), "bsc")
		if err != nil {
			t.Fatalf("get valid token: %v", err)
		}
		if token.AccessToken != "fresh" {
			t.Fatalf("expected fresh token, got %s", token.AccessToken)
		}
	}
	if provider.authCalls != 1 {
		t.Fatalf("expected exactly 1 authenticate call, got %d", provider.authCalls)
	}
}

func TestGetValidTokenCredentialsMissing(t *testing.T) {
	manager, err := NewManager(newStubSecretStore(), NewTokenCache(), nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := manager.RegisterProvider("bsc", &stubProvider{}); err != nil {
		t.Fatalf("register provider: %v", err)
	}
	_, err = manager.GetValidToken(context.Background(), "bsc")
	if !errors.Is(err, ErrCredentialsMissing) {
		t.Fatalf("expected ErrCredentialsMissing, got %v", err)
	}
}

func TestGetValidTokenProviderMissing(t *testing.T) {
	store := newStubSecretStore(Credentials{Manufacturer: "bsc", ClientID: "id", ClientSecret: "sec"})
	manager, err := NewManager(store, NewTokenCache(), nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	_, err = manager.GetValidToken(context.Background(), "bsc")
	if !errors.Is(err, ErrProviderMissing) {
		t.Fatalf("expected ErrProviderMissing, got %v", err)
	}
}

func TestGetValidTokenWrapsProviderFailure(t *testing.T) {
	store := newStubSecretStore(Credentials{Manufacturer: "bsc", ClientID: "id", ClientSecret: "sec"})
	provider := &stubProvider{authErr: errors.New("oauth endpoint down")}
	manager, err := NewManager(store, NewTokenCache(), nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := manager.RegisterProvider("bsc", provider); err != nil {
		t.Fatalf("register provider: %v", err)
	}
	_, err = manager.GetValidToken(context.Background(), "bsc")
	if err == nil || !strings.Contains(err.Error(), "authentication failed for bsc") {
		t.Fatalf("expected wrapped authentication failure, got %v", err)
	}
}

func TestRefreshIfNeededKeepsValidToken(t *testing.T) {
	store := newStubSecretStore(Credentials{Manufacturer: "bsc", ClientID: "id", ClientSecret: "sec"})
	provider := &stubProvider{valid: true}
	manager, err := NewManager(store, NewTokenCache(), nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := manager.RegisterProvider("bsc", provider); err != nil {
		t.Fatalf("register provider: %v", err)
	}

	current := Token{AccessToken: "current"}
	got, err := manager.RefreshIfNeeded(context.Background(), "bsc", current)
	if err != nil {
		t.Fatalf("refresh if needed: %v", err)
	}
	if got.AccessToken != "current" {
		t.Fatalf("expected token unchanged, got %s", got.AccessToken)
	}
	if provider.refreshCalls != 0 {
		t.Fatalf("expected no refresh call, got %d", provider.refreshCalls)
	}
}

func TestRefreshIfNeededEvictsOnFailure(t *testing.T) {
	store := newStubSecretStore(Credentials{Manufacturer: "bsc", ClientID: "id", ClientSecret: "sec"})
	provider := &stubProvider{refreshErr: errors.New("refresh rejected")}
	cache := NewTokenCache()
	cache.Store("bsc", Token{AccessToken: "stale"})
	manager, err := NewManager(store, cache, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := manager.RegisterProvider("bsc", provider); err != nil {
		t.Fatalf("register provider: %v", err)
	}

	if _, err := manager.RefreshIfNeeded(context.Background(), "bsc", Token{AccessToken: "stale"}); err == nil {
		t.Fatalf("expected refresh failure")
	}
	if _, ok := cache.Get("bsc"); ok {
		t.Fatalf("expected cached token evicted after refresh failure")
	}
}

func TestRevokeDeletesCredentialsAndToken(t *testing.T) {
	store := newStubSecretStore(Credentials{Manufacturer: "bsc", ClientID: "id", ClientSecret: "sec"})
	cache := NewTokenCache()
	cache.Store("bsc", Token{AccessToken: "live"})
	manager, err := NewManager(store, cache, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	if err := manager.Revoke(context.Background(), "bsc"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if creds, _ := store.Get(context.Background(), "bsc"); creds != nil {
		t.Fatalf("expected credentials deleted")
	}
	if _, ok := cache.Get("bsc"); ok {
		t.Fatalf("expected cached token evicted")
	}
}
