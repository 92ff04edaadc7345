package secrets

import (
	"context"
	"errors"
	"sync"

	"cardiac-monitor/internal/auth"
)

// MemoryStore is an in-memory credential store for tests and demo wiring.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]auth.Credentials
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]auth.Credentials)}
}

// Get loads credentials; nil with no error when absent.
func (s *MemoryStore) Get(ctx context.Context, manufacturer string) (*auth.Credentials, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	creds, ok := s.creds[manufacturer]
	if !ok {
		return nil, nil
	}
	return &creds, nil
}

// Put stores credentials for a manufacturer.
func (s *MemoryStore) Put(ctx context.Context, manufacturer string, creds auth.Credentials) error {
	_ = ctx
	if manufacturer == "" {
		return errors.New("secrets: empty manufacturer")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[manufacturer] = creds
	return nil
}

// Delete removes credentials for a manufacturer.
func (s *MemoryStore) Delete(ctx context.Context, manufacturer string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, manufacturer)
	return nil
}

// ListKeys returns every manufacturer with stored credentials.
func (s *MemoryStore) ListKeys(ctx context.Context) ([]string, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.creds))
	for k := range s.creds {
		keys = append(keys, k)
	}
	return keys, nil
}
