package entity

import (
	"time"

	"github.com/google/uuid"
)

// OAuthProvider identifies one of the configured identity providers. The set
// is closed at configuration time; there is no runtime string dispatch beyond
// this list.
type OAuthProvider string

const (
	ProviderGoogle  OAuthProvider = "google"
	ProviderSpotify OAuthProvider = "spotify"
)

// KnownProviders is the closed set of providers this service can be
// configured with.
var KnownProviders = []OAuthProvider{ProviderGoogle, ProviderSpotify}

// ValidProvider reports whether p belongs to the closed provider set.
func ValidProvider(p OAuthProvider) bool {
	for _, known := range KnownProviders {
		if p == known {
			return true
		}
	}
	return false
}

// OAuthCredential maps to the "oauth_credentials" table. Token columns hold
// AES-GCM ciphertext only; plaintext tokens are never persisted.
type OAuthCredential struct {
	ID                    uuid.UUID     `db:"id"`
	AccountID             uuid.UUID     `db:"account_id"`
	Provider              OAuthProvider `db:"provider"`
	ProviderUserID        string        `db:"provider_user_id"`
	AccessTokenEncrypted  string        `db:"access_token_encrypted"`
	RefreshTokenEncrypted string        `db:"refresh_token_encrypted"`
	TokenExpiresAt        time.Time     `db:"token_expires_at"`
	Scopes                []string      `db:"scopes"`
	CreatedAt             time.Time     `db:"created_at"`
	UpdatedAt             *time.Time    `db:"updated_at"`
}
