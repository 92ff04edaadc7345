package secrets

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"cardiac-monitor/internal/auth"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, KeySize)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	store, err := NewFileStore(path, testKey())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	ctx := context.Background()

	creds := auth.Credentials{
		Manufacturer: "boston_scientific",
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		APIKey:       "key-1",
		Environment:  auth.EnvironmentSandbox,
		AdditionalParams: map[string]string{
			"region": "us",
		},
	}
	if err := store.Put(ctx, creds.Manufacturer, creds); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, "boston_scientific")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatalf("expected credentials present")
	}
	if got.ClientSecret != "secret-1" || got.Environment != auth.EnvironmentSandbox {
		t.Fatalf("unexpected credentials: %+v", got)
	}
	if got.AdditionalParams["region"] != "us" {
		t.Fatalf("expected additional params preserved")
	}
}

func TestFileStoreCiphertextOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	store, err := NewFileStore(path, testKey())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if err := store.Put(context.Background(), "m", auth.Credentials{Manufacturer: "m", ClientSecret: "supersecret"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if bytes.Contains(raw, []byte("supersecret")) {
		t.Fatalf("expected secret to be encrypted at rest")
	}
}

func TestFileStoreGetAbsent(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "credentials.enc"), testKey())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	got, err := store.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("get absent: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for absent manufacturer")
	}
}

func TestFileStoreDeleteAndListKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	store, err := NewFileStore(path, testKey())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	ctx := context.Background()
	for _, m := range []string{"alpha", "beta"} {
		if err := store.Put(ctx, m, auth.Credentials{Manufacturer: m}); err != nil {
			t.Fatalf("put %s: %v", m, err)
		}
	}

	keys, err := store.ListKeys(ctx)
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "alpha" || keys[1] != "beta" {
		t.Fatalf("expected [alpha beta], got %v", keys)
	}

	if err := store.Delete(ctx, "alpha"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := store.Get(ctx, "alpha"); got != nil {
		t.Fatalf("expected alpha deleted")
	}

	// Deleting the last entry removes the file entirely.
	if err := store.Delete(ctx, "beta"); err != nil {
		t.Fatalf("delete last: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected store file removed when empty, stat err=%v", err)
	}
}

func TestFileStoreRejectsShortKey(t *testing.T) {
	if _, err := NewFileStore(filepath.Join(t.TempDir(), "c.enc"), []byte("short")); err == nil {
		t.Fatalf("expected error for short key")
	}
}
