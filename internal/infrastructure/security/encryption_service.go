package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	domainErrors "github.com/assistant-platform/auth-service/internal/domain/errors"
)

// TokenEncryptionContext is the key-derivation context for credential blobs.
const TokenEncryptionContext = "token-encryption"

// EncryptionService encrypts and decrypts credential blobs with AES-256-GCM.
// Output format is base64(nonce || ciphertext || tag), the same layout the
// rest of the platform stores. Safe for concurrent use; the only state is the
// keyring.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	// Decrypt returns domainErrors.ErrDecryptionFailed for tampered
	// ciphertext or a rotated-away key. It never falls back to plaintext.
	Decrypt(ciphertextBase64 string) (string, error)
	// RotateKey installs a new current key, keeping the previous one for
	// lazy re-encryption of existing rows.
	RotateKey() error
}

type aesGCMEncryptionService struct {
	secrets *SecretManager

	mu       sync.RWMutex
	current  cipher.AEAD
	previous cipher.AEAD // nil until the first rotation
}

// NewAESGCMEncryptionService builds the service with the current
// token-encryption key from the secret manager.
func NewAESGCMEncryptionService(secrets *SecretManager) (EncryptionService, error) {
	key, err := secrets.DeriveKey(TokenEncryptionContext)
	if err != nil {
		return nil, fmt.Errorf("failed to derive token encryption key: %w", err)
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	return &aesGCMEncryptionService{secrets: secrets, current: aead}, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, errors.New("invalid key length: must be 32 bytes for AES-256")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher block: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return gcm, nil
}

func (s *aesGCMEncryptionService) Encrypt(plaintext string) (string, error) {
	s.mu.RLock()
	gcm := s.current
	s.mu.RUnlock()

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(append(nonce, ciphertext...)), nil
}

func (s *aesGCMEncryptionService) Decrypt(ciphertextBase64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertextBase64)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64", domainErrors.ErrDecryptionFailed)
	}

	s.mu.RLock()
	current, previous := s.current, s.previous
	s.mu.RUnlock()

	plaintext, err := open(current, raw)
	if err == nil {
		return plaintext, nil
	}
	if previous != nil {
		if plaintext, prevErr := open(previous, raw); prevErr == nil {
			return plaintext, nil
		}
	}
	return "", fmt.Errorf("%w: authentication failed", domainErrors.ErrDecryptionFailed)
}

func open(gcm cipher.AEAD, raw []byte) (string, error) {
	if len(raw) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short to contain nonce")
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (s *aesGCMEncryptionService) RotateKey() error {
	oldKey, newKey, err := s.secrets.Rotate(TokenEncryptionContext)
	if err != nil {
		return fmt.Errorf("failed to rotate token encryption key: %w", err)
	}
	oldAEAD, err := newAEAD(oldKey)
	if err != nil {
		return err
	}
	newAEAD, err := newAEAD(newKey)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.previous = oldAEAD
	s.current = newAEAD
	s.mu.Unlock()
	return nil
}

var _ EncryptionService = (*aesGCMEncryptionService)(nil)
