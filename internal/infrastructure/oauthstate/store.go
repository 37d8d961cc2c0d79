package oauthstate

import (
	"context"
	"time"

	"github.com/assistant-platform/auth-service/internal/domain/entity"
)

// PendingAuthorization is the server-side half of an in-flight
// authorization-code flow: the CSRF state, the PKCE verifier and where to
// send the user afterwards. JSON tags are the store serialization format.
type PendingAuthorization struct {
	State         string               `json:"state"`
	Provider      entity.OAuthProvider `json:"provider"`
	CodeVerifier  string               `json:"code_verifier"`
	ReturnContext string               `json:"return_context,omitempty"`
	ClientIP      string               `json:"client_ip,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	ExpiresAt     time.Time            `json:"expires_at"`
}

// Store persists pending authorizations for the short window between the
// redirect out and the provider callback.
type Store interface {
	Save(ctx context.Context, pending *PendingAuthorization) error
	// Consume atomically fetches and deletes the record for state, making
	// every state token single-use. Returns domainErrors.ErrInvalidState
	// when the state is unknown or already consumed; expiry is checked by
	// the caller against ExpiresAt (the Redis TTL also enforces it).
	Consume(ctx context.Context, state string) (*PendingAuthorization, error)
}
