package entity

import (
	"time"

	"github.com/google/uuid"
)

// APIToken maps to the "api_tokens" table. The bearer token itself is never
// stored, only its SHA-256 hash; validation re-hashes the presented value and
// compares.
type APIToken struct {
	ID        uuid.UUID  `db:"id"`
	AccountID uuid.UUID  `db:"account_id"`
	TokenHash string     `db:"token_hash"`
	Name      string     `db:"name"`
	Scopes    []string   `db:"scopes"`
	ExpiresAt time.Time  `db:"expires_at"`
	Revoked   bool       `db:"revoked"`
	CreatedAt time.Time  `db:"created_at"`
	RevokedAt *time.Time `db:"revoked_at"`
}
