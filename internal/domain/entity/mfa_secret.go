package entity

import (
	"time"

	"github.com/google/uuid"
)

// MFASecret maps to the "mfa_secrets" table. The shared TOTP secret is stored
// encrypted; Enabled flips to true only after the first successful
// verification. Rotating the secret invalidates every backup code issued
// under the previous one.
type MFASecret struct {
	ID              uuid.UUID  `db:"id"`
	AccountID       uuid.UUID  `db:"account_id"`
	SecretEncrypted string     `db:"secret_encrypted"`
	Enabled         bool       `db:"enabled"`
	CreatedAt       time.Time  `db:"created_at"`
	VerifiedAt      *time.Time `db:"verified_at"`
}
