package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/assistant-platform/auth-service/internal/domain/entity"
)

// AccountRepository persists accounts. Implementations return
// domainErrors.ErrNotFound when no row matches.
type AccountRepository interface {
	Create(ctx context.Context, account *entity.Account) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Account, error)
	FindByEmail(ctx context.Context, email string) (*entity.Account, error)
	Update(ctx context.Context, account *entity.Account) error
	// SetDisabled flags the account; accounts are never physically deleted.
	SetDisabled(ctx context.Context, id uuid.UUID, disabled bool) error
	SetMFAEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
}
