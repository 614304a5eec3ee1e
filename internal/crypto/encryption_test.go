package crypto

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func testKey() string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", testKey())

	manager, err := NewEncryptionManager()
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	ciphertext, err := manager.Encrypt("secret")
	if err != nil {
		t.Fatalf("failed to encrypt: %v", err)
	}

	plaintext, err := manager.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("failed to decrypt: %v", err)
	}

	if plaintext != "secret" {
		t.Fatalf("expected plaintext to match, got %s", plaintext)
	}
}

func TestResolveSecret(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", testKey())

	manager, err := NewEncryptionManager()
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	encrypted, err := manager.EncryptSecret("hunter2")
	if err != nil {
		t.Fatalf("failed to encrypt secret: %v", err)
	}
	if !strings.HasPrefix(encrypted, SecretPrefix) {
		t.Fatalf("expected %q prefix, got %s", SecretPrefix, encrypted)
	}

	plain, err := ResolveSecret(encrypted)
	if err != nil || plain != "hunter2" {
		t.Fatalf("expected decrypted secret, got %q, %v", plain, err)
	}

	plain, err = ResolveSecret("not-encrypted")
	if err != nil || plain != "not-encrypted" {
		t.Fatalf("expected plain value to pass through, got %q, %v", plain, err)
	}
}

func TestResolveSecretWithoutKey(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "")
	if _, err := ResolveSecret(SecretPrefix + "AAAA"); !errors.Is(err, ErrNoKey) {
		t.Fatalf("expected ErrNoKey, got %v", err)
	}
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	if _, err := NewEncryptionManagerFromKey(key); err != nil {
		t.Fatalf("generated key rejected: %v", err)
	}
}
