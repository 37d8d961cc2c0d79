package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/assistant-platform/auth-service/internal/domain/entity"
)

// APITokenRepository persists bearer-token hashes.
type APITokenRepository interface {
	Create(ctx context.Context, token *entity.APIToken) error
	FindByHash(ctx context.Context, tokenHash string) (*entity.APIToken, error)
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) error
	RevokeAllByAccountID(ctx context.Context, accountID uuid.UUID, at time.Time) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
