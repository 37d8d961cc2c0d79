package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/assistant-platform/auth-service/internal/domain/entity"
)

// AuditLogRepository appends to the immutable audit trail. There is no update
// or delete; retention is handled outside the service.
type AuditLogRepository interface {
	Create(ctx context.Context, entry *entity.AuditLog) error
	ListByAccountID(ctx context.Context, accountID uuid.UUID, limit int) ([]*entity.AuditLog, error)
	ListRecent(ctx context.Context, limit int) ([]*entity.AuditLog, error)
}
