package security

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/assistant-platform/auth-service/internal/domain/errors"
)

func newTestEncryptionService(t *testing.T) EncryptionService {
	t.Helper()
	m, err := NewSecretManager(testRootSecret)
	require.NoError(t, err)
	svc, err := NewAESGCMEncryptionService(m)
	require.NoError(t, err)
	return svc
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	svc := newTestEncryptionService(t)

	for _, plaintext := range []string{
		"ya29.a0AfH6SMBx-oauth-access-token",
		"1//0gRefreshTokenWithSlashes",
		"",
		"unicode: пароль 密码",
	} {
		ciphertext, err := svc.Encrypt(plaintext)
		require.NoError(t, err)

		decrypted, err := svc.Decrypt(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestEncrypt_NonDeterministic(t *testing.T) {
	svc := newTestEncryptionService(t)

	c1, err := svc.Encrypt("same plaintext")
	require.NoError(t, err)
	c2, err := svc.Encrypt("same plaintext")
	require.NoError(t, err)
	assert.NotEqual(t, c1, c2, "random nonce must produce distinct ciphertexts")
}

func TestDecrypt_BitFlipDetected(t *testing.T) {
	svc := newTestEncryptionService(t)

	ciphertext, err := svc.Encrypt("oauth-refresh-token")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	require.NoError(t, err)

	// Flip a single bit in every byte position; no tampered ciphertext may
	// ever decrypt to garbage plaintext.
	for i := range raw {
		tampered := make([]byte, len(raw))
		copy(tampered, raw)
		tampered[i] ^= 0x01

		_, err := svc.Decrypt(base64.StdEncoding.EncodeToString(tampered))
		require.Error(t, err, "bit flip at byte %d must be detected", i)
		assert.True(t, errors.Is(err, domainErrors.ErrDecryptionFailed))
	}
}

func TestDecrypt_InvalidInput(t *testing.T) {
	svc := newTestEncryptionService(t)

	for _, input := range []string{"not base64 !!!", base64.StdEncoding.EncodeToString([]byte("short"))} {
		_, err := svc.Decrypt(input)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domainErrors.ErrDecryptionFailed))
	}
}

func TestRotateKey_OldCiphertextStillReadable(t *testing.T) {
	svc := newTestEncryptionService(t)

	before, err := svc.Encrypt("pre-rotation-token")
	require.NoError(t, err)

	require.NoError(t, svc.RotateKey())

	// Previous-key ciphertext decrypts during the lazy re-encryption window.
	decrypted, err := svc.Decrypt(before)
	require.NoError(t, err)
	assert.Equal(t, "pre-rotation-token", decrypted)

	// New ciphertext uses the rotated key and round-trips.
	after, err := svc.Encrypt("post-rotation-token")
	require.NoError(t, err)
	decrypted, err = svc.Decrypt(after)
	require.NoError(t, err)
	assert.Equal(t, "post-rotation-token", decrypted)
}

func TestRotateKey_TwiceInvalidatesOldest(t *testing.T) {
	svc := newTestEncryptionService(t)

	oldest, err := svc.Encrypt("generation-zero")
	require.NoError(t, err)

	require.NoError(t, svc.RotateKey())
	require.NoError(t, svc.RotateKey())

	_, err = svc.Decrypt(oldest)
	require.Error(t, err, "ciphertext two generations back must force re-consent")
	assert.True(t, errors.Is(err, domainErrors.ErrDecryptionFailed))
}
