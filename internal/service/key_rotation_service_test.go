package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/assistant-platform/auth-service/internal/domain/entity"
	"github.com/assistant-platform/auth-service/internal/infrastructure/security"
)

func TestKeyRotationService_RotateKeepsOldCiphertextReadable(t *testing.T) {
	secrets, err := security.NewSecretManager("rotation-test-root-secret-0123456789ab")
	require.NoError(t, err)
	encryption, err := security.NewAESGCMEncryptionService(secrets)
	require.NoError(t, err)
	audit := newRecordingAudit()
	svc := NewKeyRotationService(zap.NewNop(), encryption, audit)

	before, err := encryption.Encrypt("refresh-token-under-old-key")
	require.NoError(t, err)

	require.NoError(t, svc.Rotate(context.Background()))
	assert.True(t, audit.has(entity.AuditKeyRotated))

	// Rows written before the rotation must keep decrypting.
	plaintext, err := encryption.Decrypt(before)
	require.NoError(t, err)
	assert.Equal(t, "refresh-token-under-old-key", plaintext)

	// New writes use the new key and round-trip too.
	after, err := encryption.Encrypt("refresh-token-under-new-key")
	require.NoError(t, err)
	plaintext, err = encryption.Decrypt(after)
	require.NoError(t, err)
	assert.Equal(t, "refresh-token-under-new-key", plaintext)
}

type failingRotator struct {
	security.EncryptionService
}

func (failingRotator) RotateKey() error { return errors.New("keyring busy") }

func TestKeyRotationService_FailureIsAudited(t *testing.T) {
	audit := newRecordingAudit()
	svc := NewKeyRotationService(zap.NewNop(), failingRotator{}, audit)

	err := svc.Rotate(context.Background())
	require.Error(t, err)

	kinds := audit.kinds()
	require.Len(t, kinds, 1)
	assert.Equal(t, entity.AuditKeyRotated, kinds[0])
}
