package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
)

// Configuration errors, fatal for the manufacturer in question and never
// retried by the manager.
var (
	ErrCredentialsMissing = errors.New("auth: credentials missing")
	ErrProviderMissing    = errors.New("auth: provider missing")
)

// Provider authenticates against one manufacturer's identity endpoint.
type Provider interface {
	Authenticate(ctx context.Context, creds Credentials) (Token, error)
	Refresh(ctx context.Context, token Token, creds Credentials) (Token, error)
	// IsTokenValid applies the same expiry buffer as the TokenCache so the
	// two stay consistent.
	IsTokenValid(token Token) bool
}

// SecretStore is the durable credential store boundary. Get returns nil with
// no error when the manufacturer has no stored credentials.
type SecretStore interface {
	Get(ctx context.Context, manufacturer string) (*Credentials, error)
	Put(ctx context.Context, manufacturer string, creds Credentials) error
	Delete(ctx context.Context, manufacturer string) error
	ListKeys(ctx context.Context) ([]string, error)
}

// Manager coordinates token acquisition across manufacturers. Providers are
// registered once at startup; the registry is read-only afterwards.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]Provider
	cache     *TokenCache
	secrets   SecretStore
	logger    *log.Logger
}

// NewManager constructs a Manager.
func NewManager(secrets SecretStore, cache *TokenCache, logger *log.Logger) (*Manager, error) {
	if secrets == nil {
		return nil, errors.New("auth: nil secret store")
	}
	if cache == nil {
		cache = NewTokenCache()
	}
	return &Manager{
		providers: make(map[string]Provider),
		cache:     cache,
		secrets:   secrets,
		logger:    logger,
	}, nil
}

// RegisterProvider installs the auth provider for a manufacturer.
func (m *Manager) RegisterProvider(manufacturer string, provider Provider) error {
	if manufacturer == "" {
		return errors.New("auth: empty manufacturer")
	}
	if provider == nil {
		return errors.New("auth: nil provider")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[manufacturer] = provider
	return nil
}

// StoreCredentials persists credentials for a manufacturer.
func (m *Manager) StoreCredentials(ctx context.Context, creds Credentials) error {
	if creds.Manufacturer == "" {
		return errors.New("auth: empty manufacturer")
	}
	return m.secrets.Put(ctx, creds.Manufacturer, creds)
}

// GetValidToken returns a live token for the manufacturer, authenticating
// through the registered provider when the cache has none. The manager does
// not retry authentication itself; transient-failure handling belongs to the
// HTTP layer inside the provider.
func (m *Manager) GetValidToken(ctx context.Context, manufacturer string) (Token, error) {
	if token, ok := m.cache.Get(manufacturer); ok {
		return token, nil
	}

	creds, err := m.secrets.Get(ctx, manufacturer)
	if err != nil {
		return Token{}, fmt.Errorf("auth: load credentials for %s: %w", manufacturer, err)
	}
	if creds == nil {
		return Token{}, fmt.Errorf("%w: %s", ErrCredentialsMissing, manufacturer)
	}

	provider, ok := m.provider(manufacturer)
	if !ok {
		return Token{}, fmt.Errorf("%w: %s", ErrProviderMissing, manufacturer)
	}

	token, err := provider.Authenticate(ctx, *creds)
	if err != nil {
		return Token{}, fmt.Errorf("authentication failed for %s: %w", manufacturer, err)
	}
	m.cache.Store(manufacturer, token)
	if m.logger != nil {
		m.logger.Printf("auth: authenticated manufacturer=%s", manufacturer)
	}
	return token, nil
}

// RefreshIfNeeded returns the token unchanged while the provider still
// considers it valid, otherwise refreshes through the provider. On refresh
// failure the cached token is evicted and the error returned.
func (m *Manager) RefreshIfNeeded(ctx context.Context, manufacturer string, token Token) (Token, error) {
	provider, ok := m.provider(manufacturer)
	if !ok {
		return Token{}, fmt.Errorf("%w: %s", ErrProviderMissing, manufacturer)
	}
	if provider.IsTokenValid(token) {
		return token, nil
	}

	creds, err := m.secrets.Get(ctx, manufacturer)
	if err != nil {
		return Token{}, fmt.Errorf("auth: load credentials for %s: %w", manufacturer, err)
	}
	if creds == nil {
		return Token{}, fmt.Errorf("%w: %s", ErrCredentialsMissing, manufacturer)
	}

	refreshed, err := provider.Refresh(ctx, token, *creds)
	if err != nil {
		m.cache.Remove(manufacturer)
		return Token{}, fmt.Errorf("auth: refresh failed for %s: %w", manufacturer, err)
	}
	m.cache.Store(manufacturer, refreshed)
	if m.logger != nil {
		m.logger.Printf("auth: token refreshed manufacturer=%s", manufacturer)
	}
	return refreshed, nil
}

// Revoke deletes stored credentials and evicts the cached token. Irreversible;
// used for manufacturer offboarding.
func (m *Manager) Revoke(ctx context.Context, manufacturer string) error {
	if err := m.secrets.Delete(ctx, manufacturer); err != nil {
		return fmt.Errorf("auth: delete credentials for %s: %w", manufacturer, err)
	}
	m.cache.Remove(manufacturer)
	if m.logger != nil {
		m.logger.Printf("auth: revoked manufacturer=%s", manufacturer)
	}
	return nil
}

// StoredManufacturers lists manufacturers with stored credentials.
func (m *Manager) StoredManufacturers(ctx context.Context) ([]string, error) {
	keys, err := m.secrets.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Manager) provider(manufacturer string) (Provider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	provider, ok := m.providers[manufacturer]
	return provider, ok
}
