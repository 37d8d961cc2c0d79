package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/assistant-platform/auth-service/internal/domain/entity"
	domainErrors "github.com/assistant-platform/auth-service/internal/domain/errors"
	"github.com/assistant-platform/auth-service/internal/domain/repository"
)

// In-memory repository fakes shared by the service tests. They mirror the
// Postgres implementations' error contract (ErrNotFound, ErrAlreadyExists)
// and are safe for the concurrency tests.

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*entity.Account
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[uuid.UUID]*entity.Account)}
}

func (r *fakeAccountRepo) Create(_ context.Context, account *entity.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Email == account.Email && account.Email != "" {
			return domainErrors.ErrAlreadyExists
		}
	}
	clone := *account
	r.accounts[account.ID] = &clone
	return nil
}

func (r *fakeAccountRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	clone := *account
	return &clone, nil
}

func (r *fakeAccountRepo) FindByEmail(_ context.Context, email string) (*entity.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if account.Email == email {
			clone := *account
			return &clone, nil
		}
	}
	return nil, domainErrors.ErrNotFound
}

func (r *fakeAccountRepo) Update(_ context.Context, account *entity.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[account.ID]; !ok {
		return domainErrors.ErrNotFound
	}
	clone := *account
	r.accounts[account.ID] = &clone
	return nil
}

func (r *fakeAccountRepo) SetDisabled(_ context.Context, id uuid.UUID, disabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return domainErrors.ErrNotFound
	}
	account.Disabled = disabled
	return nil
}

func (r *fakeAccountRepo) SetMFAEnabled(_ context.Context, id uuid.UUID, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return domainErrors.ErrNotFound
	}
	account.MFAEnabled = enabled
	return nil
}

var _ repository.AccountRepository = (*fakeAccountRepo)(nil)

type fakeCredentialRepo struct {
	mu    sync.Mutex
	creds map[uuid.UUID]*entity.OAuthCredential
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{creds: make(map[uuid.UUID]*entity.OAuthCredential)}
}

func (r *fakeCredentialRepo) Create(_ context.Context, cred *entity.OAuthCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.creds {
		if existing.Provider == cred.Provider && existing.ProviderUserID == cred.ProviderUserID {
			return domainErrors.ErrAlreadyExists
		}
	}
	clone := *cred
	r.creds[cred.ID] = &clone
	return nil
}

func (r *fakeCredentialRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.OAuthCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.creds[id]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	clone := *cred
	return &clone, nil
}

func (r *fakeCredentialRepo) FindByAccountAndProvider(_ context.Context, accountID uuid.UUID, provider entity.OAuthProvider) (*entity.OAuthCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cred := range r.creds {
		if cred.AccountID == accountID && cred.Provider == provider {
			clone := *cred
			return &clone, nil
		}
	}
	return nil, domainErrors.ErrNotFound
}

func (r *fakeCredentialRepo) FindByProviderUserID(_ context.Context, provider entity.OAuthProvider, providerUserID string) (*entity.OAuthCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cred := range r.creds {
		if cred.Provider == provider && cred.ProviderUserID == providerUserID {
			clone := *cred
			return &clone, nil
		}
	}
	return nil, domainErrors.ErrNotFound
}

func (r *fakeCredentialRepo) UpdateTokens(_ context.Context, id uuid.UUID, accessEncrypted, refreshEncrypted string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.creds[id]
	if !ok {
		return domainErrors.ErrNotFound
	}
	cred.AccessTokenEncrypted = accessEncrypted
	cred.RefreshTokenEncrypted = refreshEncrypted
	cred.TokenExpiresAt = expiresAt
	return nil
}

func (r *fakeCredentialRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.creds[id]; !ok {
		return domainErrors.ErrNotFound
	}
	delete(r.creds, id)
	return nil
}

var _ repository.OAuthCredentialRepository = (*fakeCredentialRepo)(nil)

type fakeMFASecretRepo struct {
	mu      sync.Mutex
	secrets map[uuid.UUID]*entity.MFASecret // keyed by account id
}

func newFakeMFASecretRepo() *fakeMFASecretRepo {
	return &fakeMFASecretRepo{secrets: make(map[uuid.UUID]*entity.MFASecret)}
}

func (r *fakeMFASecretRepo) Create(_ context.Context, secret *entity.MFASecret) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.secrets[secret.AccountID]; ok {
		return domainErrors.ErrAlreadyExists
	}
	clone := *secret
	r.secrets[secret.AccountID] = &clone
	return nil
}

func (r *fakeMFASecretRepo) FindByAccountID(_ context.Context, accountID uuid.UUID) (*entity.MFASecret, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	secret, ok := r.secrets[accountID]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	clone := *secret
	return &clone, nil
}

func (r *fakeMFASecretRepo) MarkVerified(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, secret := range r.secrets {
		if secret.ID == id {
			secret.Enabled = true
			verifiedAt := at
			secret.VerifiedAt = &verifiedAt
			return nil
		}
	}
	return domainErrors.ErrNotFound
}

func (r *fakeMFASecretRepo) DeleteUnverifiedByAccountID(_ context.Context, accountID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	secret, ok := r.secrets[accountID]
	if !ok || secret.Enabled {
		return false, nil
	}
	delete(r.secrets, accountID)
	return true, nil
}

func (r *fakeMFASecretRepo) DeleteByAccountID(_ context.Context, accountID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.secrets, accountID)
	return nil
}

var _ repository.MFASecretRepository = (*fakeMFASecretRepo)(nil)

type fakeBackupCodeRepo struct {
	mu    sync.Mutex
	codes []*entity.MFABackupCode
}

func newFakeBackupCodeRepo() *fakeBackupCodeRepo { return &fakeBackupCodeRepo{} }

func (r *fakeBackupCodeRepo) CreateBatch(_ context.Context, codes []*entity.MFABackupCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, code := range codes {
		clone := *code
		r.codes = append(r.codes, &clone)
	}
	return nil
}

func (r *fakeBackupCodeRepo) Consume(_ context.Context, accountID uuid.UUID, codeHash string, usedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, code := range r.codes {
		if code.AccountID == accountID && code.CodeHash == codeHash && code.UsedAt == nil {
			at := usedAt
			code.UsedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeBackupCodeRepo) CountUnused(_ context.Context, accountID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, code := range r.codes {
		if code.AccountID == accountID && code.UsedAt == nil {
			count++
		}
	}
	return count, nil
}

func (r *fakeBackupCodeRepo) DeleteByAccountID(_ context.Context, accountID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.codes[:0]
	for _, code := range r.codes {
		if code.AccountID != accountID {
			kept = append(kept, code)
		}
	}
	r.codes = kept
	return nil
}

var _ repository.MFABackupCodeRepository = (*fakeBackupCodeRepo)(nil)

type fakeAPITokenRepo struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]*entity.APIToken
}

func newFakeAPITokenRepo() *fakeAPITokenRepo {
	return &fakeAPITokenRepo{tokens: make(map[uuid.UUID]*entity.APIToken)}
}

func (r *fakeAPITokenRepo) Create(_ context.Context, token *entity.APIToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *token
	r.tokens[token.ID] = &clone
	return nil
}

func (r *fakeAPITokenRepo) FindByHash(_ context.Context, tokenHash string) (*entity.APIToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, token := range r.tokens {
		if token.TokenHash == tokenHash {
			clone := *token
			return &clone, nil
		}
	}
	return nil, domainErrors.ErrNotFound
}

func (r *fakeAPITokenRepo) Revoke(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[id]
	if !ok || token.Revoked {
		return domainErrors.ErrNotFound
	}
	token.Revoked = true
	revokedAt := at
	token.RevokedAt = &revokedAt
	return nil
}

func (r *fakeAPITokenRepo) RevokeAllByAccountID(_ context.Context, accountID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, token := range r.tokens {
		if token.AccountID == accountID && !token.Revoked {
			token.Revoked = true
			revokedAt := at
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (r *fakeAPITokenRepo) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, token := range r.tokens {
		if token.ExpiresAt.Before(cutoff) {
			delete(r.tokens, id)
			removed++
		}
	}
	return removed, nil
}

var _ repository.APITokenRepository = (*fakeAPITokenRepo)(nil)

type fakeAuditLogRepo struct {
	mu      sync.Mutex
	entries []*entity.AuditLog
	failing bool
}

func newFakeAuditLogRepo() *fakeAuditLogRepo { return &fakeAuditLogRepo{} }

func (r *fakeAuditLogRepo) Create(_ context.Context, entry *entity.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return errors.New("audit store unavailable")
	}
	clone := *entry
	r.entries = append(r.entries, &clone)
	return nil
}

func (r *fakeAuditLogRepo) ListByAccountID(_ context.Context, accountID uuid.UUID, limit int) ([]*entity.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.AuditLog
	for _, entry := range r.entries {
		if entry.AccountID != nil && *entry.AccountID == accountID {
			out = append(out, entry)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeAuditLogRepo) ListRecent(_ context.Context, limit int) ([]*entity.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.entries
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return append([]*entity.AuditLog(nil), entries...), nil
}

func (r *fakeAuditLogRepo) setFailing(failing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing = failing
}

func (r *fakeAuditLogRepo) kinds() []entity.AuditEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entity.AuditEventKind, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry.Kind)
	}
	return out
}

var _ repository.AuditLogRepository = (*fakeAuditLogRepo)(nil)

// recordingAudit is a synchronous AuditRecorder for asserting on events
// without the buffering goroutine.
type recordingAudit struct {
	mu      sync.Mutex
	entries []*entity.AuditLog
}

func newRecordingAudit() *recordingAudit { return &recordingAudit{} }

func (a *recordingAudit) Record(_ context.Context, entry *entity.AuditLog) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

func (a *recordingAudit) RecordEvent(ctx context.Context, accountID *uuid.UUID, kind entity.AuditEventKind, status entity.AuditStatus, ip, userAgent string, _ map[string]any) {
	entry := &entity.AuditLog{AccountID: accountID, Kind: kind, Status: status, CreatedAt: time.Now().UTC()}
	if ip != "" {
		entry.IPAddress = &ip
	}
	if userAgent != "" {
		entry.UserAgent = &userAgent
	}
	a.Record(ctx, entry)
}

func (a *recordingAudit) Close() {}

func (a *recordingAudit) kinds() []entity.AuditEventKind {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]entity.AuditEventKind, 0, len(a.entries))
	for _, entry := range a.entries {
		out = append(out, entry.Kind)
	}
	return out
}

func (a *recordingAudit) has(kind entity.AuditEventKind) bool {
	for _, k := range a.kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

var _ AuditRecorder = (*recordingAudit)(nil)
