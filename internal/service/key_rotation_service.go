package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/assistant-platform/auth-service/internal/domain/entity"
	"github.com/assistant-platform/auth-service/internal/infrastructure/security"
)

// KeyRotationService installs a fresh token-encryption key on operator
// request. The previous key stays loaded so existing rows keep decrypting
// until they are re-encrypted on their next write.
type KeyRotationService struct {
	logger     *zap.Logger
	encryption security.EncryptionService
	audit      AuditRecorder
}

func NewKeyRotationService(logger *zap.Logger, encryption security.EncryptionService, audit AuditRecorder) *KeyRotationService {
	return &KeyRotationService{
		logger:     logger.Named("key_rotation_service"),
		encryption: encryption,
		audit:      audit,
	}
}

// Rotate swaps in the next key version and records the rotation. The audit
// entry carries no key material, only the fact that it happened.
func (s *KeyRotationService) Rotate(ctx context.Context) error {
	if err := s.encryption.RotateKey(); err != nil {
		s.audit.RecordEvent(ctx, nil, entity.AuditKeyRotated, entity.AuditStatusFailure, "", "",
			map[string]any{"reason": err.Error()})
		return fmt.Errorf("failed to rotate encryption key: %w", err)
	}

	s.audit.RecordEvent(ctx, nil, entity.AuditKeyRotated, entity.AuditStatusSuccess, "", "", nil)
	s.logger.Warn("Token encryption key rotated; previous key retained for existing rows")
	return nil
}
