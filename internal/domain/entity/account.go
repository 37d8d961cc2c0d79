package entity

import (
	"time"

	"github.com/google/uuid"
)

// AuthMethod is one way an account can authenticate.
type AuthMethod string

const (
	AuthMethodPassword AuthMethod = "password"
	AuthMethodOAuth    AuthMethod = "oauth"
	AuthMethodDemo     AuthMethod = "demo"
)

// Account maps to the "accounts" table. Accounts are created on first
// successful login or registration and are never physically deleted, only
// flagged disabled.
type Account struct {
	ID          uuid.UUID    `db:"id"`
	Email       string       `db:"email"`
	DisplayName *string      `db:"display_name"`
	AuthMethods []AuthMethod `db:"auth_methods"`
	MFAEnabled  bool         `db:"mfa_enabled"`
	Disabled    bool         `db:"disabled"`
	LockedUntil *time.Time   `db:"locked_until"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   *time.Time   `db:"updated_at"`
}

// HasMethod reports whether the account can authenticate with the given method.
func (a *Account) HasMethod(m AuthMethod) bool {
	for _, method := range a.AuthMethods {
		if method == m {
			return true
		}
	}
	return false
}
