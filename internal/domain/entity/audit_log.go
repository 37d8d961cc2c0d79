package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditEventKind enumerates the security-relevant events this core records.
type AuditEventKind string

const (
	AuditOAuthInitiated      AuditEventKind = "oauth.initiated"
	AuditOAuthLogin          AuditEventKind = "oauth.login"
	AuditOAuthInvalidState   AuditEventKind = "oauth.invalid_state"
	AuditOAuthProviderError  AuditEventKind = "oauth.provider_error"
	AuditOAuthTokenRefreshed AuditEventKind = "oauth.token_refreshed"
	AuditCredentialCorrupt   AuditEventKind = "credential.decryption_failed"
	AuditMFAProvisioned      AuditEventKind = "mfa.provisioned"
	AuditMFAEnabled          AuditEventKind = "mfa.enabled"
	AuditMFADisabled         AuditEventKind = "mfa.disabled"
	AuditMFAVerified         AuditEventKind = "mfa.verified"
	AuditMFACodeRejected     AuditEventKind = "mfa.code_rejected"
	AuditBackupCodeConsumed  AuditEventKind = "mfa.backup_code_consumed"
	AuditBackupCodesIssued   AuditEventKind = "mfa.backup_codes_issued"
	AuditRateLimitLockout    AuditEventKind = "ratelimit.lockout"
	AuditRateLimitBypass     AuditEventKind = "ratelimit.crisis_bypass"
	AuditSessionIssued       AuditEventKind = "session.issued"
	AuditSessionRotated      AuditEventKind = "session.rotated"
	AuditSessionRevoked      AuditEventKind = "session.revoked"
	AuditTokenIssued         AuditEventKind = "api_token.issued"
	AuditTokenRevoked        AuditEventKind = "api_token.revoked"
	AuditKeyRotated          AuditEventKind = "secret.key_rotated"
)

// AuditStatus is the recorded outcome of an audited action.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailure AuditStatus = "failure"
)

// AuditLog maps to the append-only "audit_logs" table. Rows are immutable
// once written; retention is an external policy.
type AuditLog struct {
	ID        int64           `db:"id"`
	AccountID *uuid.UUID      `db:"account_id"`
	Kind      AuditEventKind  `db:"kind"`
	Status    AuditStatus     `db:"status"`
	IPAddress *string         `db:"ip_address"`
	UserAgent *string         `db:"user_agent"`
	Details   json.RawMessage `db:"details"`
	CreatedAt time.Time       `db:"created_at"`
}
