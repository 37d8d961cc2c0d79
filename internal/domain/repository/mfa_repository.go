package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/assistant-platform/auth-service/internal/domain/entity"
)

// MFASecretRepository persists encrypted TOTP secrets.
type MFASecretRepository interface {
	Create(ctx context.Context, secret *entity.MFASecret) error
	FindByAccountID(ctx context.Context, accountID uuid.UUID) (*entity.MFASecret, error)
	MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error
	// DeleteUnverifiedByAccountID clears a stale provisioning attempt so a
	// fresh one can replace it. Returns true when a row was removed.
	DeleteUnverifiedByAccountID(ctx context.Context, accountID uuid.UUID) (bool, error)
	DeleteByAccountID(ctx context.Context, accountID uuid.UUID) error
}

// MFABackupCodeRepository persists backup-code hashes.
type MFABackupCodeRepository interface {
	CreateBatch(ctx context.Context, codes []*entity.MFABackupCode) error
	// Consume marks the unused code matching codeHash as used in one atomic
	// statement. Returns false when no unused code matched, which covers
	// both "wrong code" and "already spent", including concurrent spends.
	Consume(ctx context.Context, accountID uuid.UUID, codeHash string, usedAt time.Time) (bool, error)
	CountUnused(ctx context.Context, accountID uuid.UUID) (int, error)
	DeleteByAccountID(ctx context.Context, accountID uuid.UUID) error
}
