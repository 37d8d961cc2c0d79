package entity

import (
	"time"

	"github.com/google/uuid"
)

// MFABackupCode maps to the "mfa_backup_codes" table. Only the SHA-256 hash
// of a code is stored; the row is marked used atomically on consumption so a
// code can never validate twice.
type MFABackupCode struct {
	ID        uuid.UUID  `db:"id"`
	AccountID uuid.UUID  `db:"account_id"`
	CodeHash  string     `db:"code_hash"`
	UsedAt    *time.Time `db:"used_at"`
	CreatedAt time.Time  `db:"created_at"`
}
