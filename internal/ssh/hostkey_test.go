package ssh

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"

	"github.com/TheGojiOG/mc-server-wrapper/internal/crypto"
)

func TestNewHostKeyCallbackTrustOnFirstUse(t *testing.T) {
	tempDir := t.TempDir()
	knownHostsPath := filepath.Join(tempDir, "known_hosts")

	callback, err := NewHostKeyCallback(knownHostsPath, true)
	if err != nil {
		t.Fatalf("failed to create callback: %v", err)
	}

	key1 := generateTestPublicKey(t)
	addr := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 22}

	if err := callback("example.com:22", addr, key1); err != nil {
		t.Fatalf("expected first key to be accepted, got %v", err)
	}

	if _, err := os.Stat(knownHostsPath); err != nil {
		t.Fatalf("expected known_hosts file to be created: %v", err)
	}

	callback, err = NewHostKeyCallback(knownHostsPath, true)
	if err != nil {
		t.Fatalf("failed to recreate callback: %v", err)
	}

	if err := callback("example.com:22", addr, key1); err != nil {
		t.Fatalf("expected pinned key to be accepted again, got %v", err)
	}

	key2 := generateTestPublicKey(t)
	if err := callback("example.com:22", addr, key2); !errors.Is(err, ErrHostKeyChanged) {
		t.Fatalf("expected host key change to be rejected, got %v", err)
	}
}

func TestNewHostKeyCallbackRejectsUnknownWhenDisabled(t *testing.T) {
	tempDir := t.TempDir()
	knownHostsPath := filepath.Join(tempDir, "known_hosts")

	callback, err := NewHostKeyCallback(knownHostsPath, false)
	if err != nil {
		t.Fatalf("failed to create callback: %v", err)
	}

	key := generateTestPublicKey(t)
	addr := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 2222}

	if err := callback("example.com:2222", addr, key); !errors.Is(err, ErrUnknownHost) {
		t.Fatalf("expected unknown host key to be rejected, got %v", err)
	}
}

func TestHostPatterns(t *testing.T) {
	tests := []struct {
		hostname string
		remote   net.Addr
		want     []string
	}{
		{"backup.example.com:22", &net.TCPAddr{IP: net.ParseIP("10.0.0.5"), Port: 22}, []string{"backup.example.com", "10.0.0.5"}},
		{"backup.example.com:2222", &net.TCPAddr{IP: net.ParseIP("10.0.0.5"), Port: 2222}, []string{"[backup.example.com]:2222", "[10.0.0.5]:2222"}},
		{"10.0.0.5:22", &net.TCPAddr{IP: net.ParseIP("10.0.0.5"), Port: 22}, []string{"10.0.0.5"}},
	}
	for _, tt := range tests {
		got := hostPatterns(tt.hostname, tt.remote)
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Fatalf("hostPatterns(%q) = %v, want %v", tt.hostname, got, tt.want)
		}
	}
}

func generateTestPublicKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	pubKey, err := ssh.NewPublicKey(&privateKey.PublicKey)
	if err != nil {
		t.Fatalf("failed to create public key: %v", err)
	}

	return pubKey
}

func TestLoadSignerPlainAndEncrypted(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(privateKey, "")
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(block)

	dir := t.TempDir()
	plainPath := filepath.Join(dir, "id_rsa")
	if err := os.WriteFile(plainPath, pemBytes, 0600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}

	plain, err := LoadSigner(plainPath, "")
	if err != nil {
		t.Fatalf("failed to load plain key: %v", err)
	}

	keyBytes := make([]byte, 32)
	t.Setenv("ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(keyBytes))
	manager, err := crypto.NewEncryptionManager()
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	ciphertext, err := manager.Encrypt(string(pemBytes))
	if err != nil {
		t.Fatalf("failed to encrypt key: %v", err)
	}
	encPath := filepath.Join(dir, "id_rsa.enc")
	encoded := encryptedKeyHeader + base64.StdEncoding.EncodeToString(ciphertext)
	if err := os.WriteFile(encPath, []byte(encoded), 0600); err != nil {
		t.Fatalf("failed to write encrypted key: %v", err)
	}

	decrypted, err := LoadSigner(encPath, "")
	if err != nil {
		t.Fatalf("failed to load encrypted key: %v", err)
	}
	if ssh.FingerprintSHA256(plain.PublicKey()) != ssh.FingerprintSHA256(decrypted.PublicKey()) {
		t.Fatalf("expected both signers to share a public key")
	}
}
