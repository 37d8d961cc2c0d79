package entity

import (
	"time"

	"github.com/google/uuid"
)

// Session is the server-side record behind an opaque session identifier. It
// lives in the session store only; nothing about the account is recoverable
// from the identifier itself. JSON tags are the store serialization format.
type Session struct {
	ID           string    `json:"id"`
	AccountID    uuid.UUID `json:"account_id"`
	Scopes       []string  `json:"scopes"`
	MFAElevated  bool      `json:"mfa_elevated"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// CurrentIdentity is the context object handed to downstream features after
// successful validation. Downstream code never sees raw credentials.
type CurrentIdentity struct {
	AccountID   uuid.UUID
	Scopes      []string
	MFAElevated bool
	SessionID   string
}
