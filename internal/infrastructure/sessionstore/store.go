package sessionstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/assistant-platform/auth-service/internal/domain/entity"
)

// Store holds the only mapping from opaque session identifiers to session
// records. The identifier embeds nothing; losing the store invalidates every
// session, by design.
//
// The Redis implementation is safe for multi-instance deployments; the
// in-memory one is single-instance only.
type Store interface {
	// Save writes the session with a TTL matching its expiry.
	Save(ctx context.Context, session *entity.Session) error
	// Get returns the session or domainErrors.ErrSessionInvalid when the
	// identifier is unknown.
	Get(ctx context.Context, id string) (*entity.Session, error)
	Delete(ctx context.Context, id string) error
	// DeleteByAccountID revokes every session belonging to the account.
	DeleteByAccountID(ctx context.Context, accountID uuid.UUID) error
	// Touch extends the session expiry (sliding window) without rewriting
	// the whole record semantics.
	Touch(ctx context.Context, id string, expiresAt time.Time, lastActivity time.Time) error
}
