package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// SecretPrefix marks an encrypted value inside the config file.
const SecretPrefix = "enc:"

// ErrNoKey is returned when an encrypted value is found but ENCRYPTION_KEY is unset.
var ErrNoKey = errors.New("ENCRYPTION_KEY is not set")

// EncryptionManager handles AES-256 encryption/decryption
type EncryptionManager struct {
	key []byte
}

// NewEncryptionManager creates a manager from the ENCRYPTION_KEY environment variable
func NewEncryptionManager() (*EncryptionManager, error) {
	keyStr := strings.TrimSpace(os.Getenv("ENCRYPTION_KEY"))
	if keyStr == "" {
		return nil, ErrNoKey
	}
	return NewEncryptionManagerFromKey(keyStr)
}

// NewEncryptionManagerFromKey creates a manager from a base64 key
func NewEncryptionManagerFromKey(keyStr string) (*EncryptionManager, error) {
	decoded, err := base64.StdEncoding.DecodeString(keyStr)
	if err != nil {
		return nil, fmt.Errorf("invalid ENCRYPTION_KEY format (must be base64): %w", err)
	}

	// Derive key using SHA-256 if not exactly 32 bytes
	key := decoded
	if len(decoded) != 32 {
		hash := sha256.Sum256(decoded)
		key = hash[:]
	}

	return &EncryptionManager{key: key}, nil
}

// GenerateKey returns a random base64 key suitable for ENCRYPTION_KEY
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Encrypt encrypts plaintext using AES-256-GCM
func (em *EncryptionManager) Encrypt(plaintext string) ([]byte, error) {
	aesGCM, err := em.gcm()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aesGCM.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt decrypts ciphertext using AES-256-GCM
func (em *EncryptionManager) Decrypt(ciphertext []byte) (string, error) {
	aesGCM, err := em.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := aesGCM.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

func (em *EncryptionManager) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(em.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}

// EncryptSecret encrypts a config value into its "enc:" form
func (em *EncryptionManager) EncryptSecret(plaintext string) (string, error) {
	ciphertext, err := em.Encrypt(plaintext)
	if err != nil {
		return "", err
	}
	return SecretPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// ResolveSecret returns value unchanged unless it carries the "enc:" prefix,
// in which case it is decrypted with the key from the environment.
func ResolveSecret(value string) (string, error) {
	if !strings.HasPrefix(value, SecretPrefix) {
		return value, nil
	}
	manager, err := NewEncryptionManager()
	if err != nil {
		return "", err
	}
	return manager.ResolveSecret(value)
}

// ResolveSecret decrypts an "enc:" value with this manager's key.
func (em *EncryptionManager) ResolveSecret(value string) (string, error) {
	if !strings.HasPrefix(value, SecretPrefix) {
		return value, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SecretPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode secret: %w", err)
	}
	return em.Decrypt(decoded)
}
