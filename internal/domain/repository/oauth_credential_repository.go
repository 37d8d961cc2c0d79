package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/assistant-platform/auth-service/internal/domain/entity"
)

// OAuthCredentialRepository persists encrypted provider tokens.
type OAuthCredentialRepository interface {
	Create(ctx context.Context, cred *entity.OAuthCredential) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.OAuthCredential, error)
	FindByAccountAndProvider(ctx context.Context, accountID uuid.UUID, provider entity.OAuthProvider) (*entity.OAuthCredential, error)
	FindByProviderUserID(ctx context.Context, provider entity.OAuthProvider, providerUserID string) (*entity.OAuthCredential, error)
	// UpdateTokens replaces both ciphertexts and the expiry in a single
	// statement so a concurrent reader never observes a half-refreshed row.
	UpdateTokens(ctx context.Context, id uuid.UUID, accessEncrypted, refreshEncrypted string, expiresAt time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}
