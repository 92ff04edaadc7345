// Package secrets provides the durable credential store backing the auth
// manager. The file store keeps all manufacturer credentials in one
// AES-256-GCM encrypted JSON document.
package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"cardiac-monitor/internal/auth"
)

// KeySize is the required encryption key length in bytes.
const KeySize = 32

// FileStore is an encrypted single-file credential store.
type FileStore struct {
	mu   sync.Mutex
	path string
	aead cipher.AEAD
}

// NewFileStore constructs a store writing to path, encrypting with a 32-byte
// key. The parent directory is created if missing.
func NewFileStore(path string, key []byte) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("secrets: empty path")
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("secrets: encryption key must be %d bytes", KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return &FileStore{path: path, aead: aead}, nil
}

// Get loads credentials for a manufacturer. Returns nil with no error when
// absent.
func (s *FileStore) Get(ctx context.Context, manufacturer string) (*auth.Credentials, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load()
	if err != nil {
		return nil, err
	}
	creds, ok := all[manufacturer]
	if !ok {
		return nil, nil
	}
	return &creds, nil
}

// Put stores credentials for a manufacturer, replacing any previous entry.
func (s *FileStore) Put(ctx context.Context, manufacturer string, creds auth.Credentials) error {
	_ = ctx
	if manufacturer == "" {
		return errors.New("secrets: empty manufacturer")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load()
	if err != nil {
		return err
	}
	all[manufacturer] = creds
	return s.save(all)
}

// Delete removes credentials for a manufacturer. Deleting an absent entry is
// not an error.
func (s *FileStore) Delete(ctx context.Context, manufacturer string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := all[manufacturer]; !ok {
		return nil
	}
	delete(all, manufacturer)
	if len(all) == 0 {
		err := os.Remove(s.path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	return s.save(all)
}

// ListKeys returns every manufacturer with stored credentials.
func (s *FileStore) ListKeys(ctx context.Context) ([]string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *FileStore) load() (map[string]auth.Credentials, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]auth.Credentials), nil
		}
		return nil, err
	}
	if len(data) < s.aead.NonceSize() {
		return nil, errors.New("secrets: ciphertext too short")
	}
	nonce := data[:s.aead.NonceSize()]
	plain, err := s.aead.Open(nil, nonce, data[s.aead.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("secrets: decrypt: %w", err)
	}
	all := make(map[string]auth.Credentials)
	if err := json.Unmarshal(plain, &all); err != nil {
		return nil, fmt.Errorf("secrets: decode: %w", err)
	}
	return all, nil
}

func (s *FileStore) save(all map[string]auth.Credentials) error {
	plain, err := json.Marshal(all)
	if err != nil {
		return err
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	sealed := s.aead.Seal(nonce, nonce, plain, nil)
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
