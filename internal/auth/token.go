package auth

import (
	"sync"
	"time"
)

// ExpiryBuffer is the safety margin before a token's stated expiry during
// which it is already treated as expired.
const ExpiryBuffer = 5 * time.Minute

// Token is a vendor access token. A zero ExpiresAt means the token never
// expires. Tokens are owned by the TokenCache while cached and are never
// persisted.
type Token struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Scope        string    `json:"scope,omitempty"`
}

// Expired reports whether the token is inside the expiry buffer at the given
// instant.
func (t Token) Expired(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(ExpiryBuffer).Before(t.ExpiresAt)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// TokenCache is a process-local cache of valid tokens keyed by manufacturer.
// Expiry is evaluated lazily on Get.
type TokenCache struct {
	mu     sync.Mutex
	tokens map[string]Token
	clock  Clock
}

// TokenCacheOption customizes the cache.
type TokenCacheOption func(*TokenCache)

// WithClock assigns a clock.
func WithClock(clock Clock) TokenCacheOption {
	return func(c *TokenCache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewTokenCache constructs an empty cache.
func NewTokenCache(opts ...TokenCacheOption) *TokenCache {
	cache := &TokenCache{
		tokens: make(map[string]Token),
		clock:  systemClock{},
	}
	for _, opt := range opts {
		opt(cache)
	}
	return cache
}

// Store caches a token for a manufacturer, replacing any previous one.
func (c *TokenCache) Store(manufacturer string, token Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[manufacturer] = token
}

// Get returns the cached token for a manufacturer. A token inside the expiry
// buffer is evicted and reported as absent.
func (c *TokenCache) Get(manufacturer string) (Token, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	token, ok := c.tokens[manufacturer]
	if !ok {
		return Token{}, false
	}
	if token.Expired(c.clock.Now()) {
		delete(c.tokens, manufacturer)
		return Token{}, false
	}
	return token, true
}

// Remove evicts the cached token for a manufacturer.
func (c *TokenCache) Remove(manufacturer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, manufacturer)
}

// Clear evicts every cached token.
func (c *TokenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = make(map[string]Token)
}
