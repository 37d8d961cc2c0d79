package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assistant-platform/auth-service/internal/domain/entity"
	domainErrors "github.com/assistant-platform/auth-service/internal/domain/errors"
	"github.com/assistant-platform/auth-service/internal/domain/repository"
	"github.com/assistant-platform/auth-service/internal/events/kafka"
	"github.com/assistant-platform/auth-service/internal/infrastructure/security"
	"github.com/assistant-platform/auth-service/internal/utils/metrics"
)

// backupCodeLowWater is the remaining-codes count at which verification
// responses should nudge the user to regenerate.
const backupCodeLowWater = 3

// MFAService owns TOTP enrollment, verification and backup codes. The shared
// secret is stored encrypted; backup codes are stored as hashes and are
// strictly single-use.
type MFAService struct {
	logger      *zap.Logger
	secrets     repository.MFASecretRepository
	backupCodes repository.MFABackupCodeRepository
	accounts    repository.AccountRepository
	totp        security.TOTPService
	encryption  security.EncryptionService
	audit       AuditRecorder
	publisher   kafka.Publisher
	metrics     *metrics.Metrics

	backupCodeCount int
	now             func() time.Time
}

// ProvisioningResult is handed back once during enrollment; the secret and
// URI are never retrievable again.
type ProvisioningResult struct {
	SecretBase32    string
	ProvisioningURI string
}

// VerifyResult reports a successful code check plus whether the account is
// running low on backup codes.
type VerifyResult struct {
	UsedBackupCode  bool
	BackupCodesLeft int
	BackupCodesLow  bool
}

func NewMFAService(
	logger *zap.Logger,
	secrets repository.MFASecretRepository,
	backupCodes repository.MFABackupCodeRepository,
	accounts repository.AccountRepository,
	totp security.TOTPService,
	encryption security.EncryptionService,
	audit AuditRecorder,
	publisher kafka.Publisher,
	m *metrics.Metrics,
	backupCodeCount int,
) *MFAService {
	if backupCodeCount <= 0 {
		backupCodeCount = 10
	}
	return &MFAService{
		logger:          logger,
		secrets:         secrets,
		backupCodes:     backupCodes,
		accounts:        accounts,
		totp:            totp,
		encryption:      encryption,
		audit:           audit,
		publisher:       publisher,
		metrics:         m,
		backupCodeCount: backupCodeCount,
		now:             time.Now,
	}
}

// Provision generates a fresh TOTP secret for the account. Two-factor is not
// active until VerifyAndActivate proves the authenticator was enrolled. A
// stale unverified provisioning attempt is replaced.
func (s *MFAService) Provision(ctx context.Context, accountID uuid.UUID) (*ProvisioningResult, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.MFAEnabled {
		return nil, domainErrors.ErrMFAAlreadyEnabled
	}

	if _, err := s.secrets.DeleteUnverifiedByAccountID(ctx, accountID); err != nil {
		return nil, fmt.Errorf("failed to clear stale provisioning: %w", err)
	}

	secretBase32, uri, err := s.totp.GenerateSecret(account.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	secretEnc, err := s.encryption.Encrypt(secretBase32)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt TOTP secret: %w", err)
	}

	record := &entity.MFASecret{
		ID:              uuid.New(),
		AccountID:       accountID,
		SecretEncrypted: secretEnc,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.secrets.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store TOTP secret: %w", err)
	}

	s.audit.RecordEvent(ctx, &accountID, entity.AuditMFAProvisioned, entity.AuditStatusSuccess, "", "", nil)
	return &ProvisioningResult{SecretBase32: secretBase32, ProvisioningURI: uri}, nil
}

// VerifyAndActivate proves enrollment with a first valid code, flips the
// account to MFA-enabled and issues the initial batch of backup codes.
func (s *MFAService) VerifyAndActivate(ctx context.Context, accountID uuid.UUID, code string) ([]string, error) {
	record, err := s.secrets.FindByAccountID(ctx, accountID)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			return nil, domainErrors.ErrMFANotEnabled
		}
		return nil, err
	}
	if record.Enabled {
		return nil, domainErrors.ErrMFAAlreadyEnabled
	}

	if err := s.validateTOTP(ctx, accountID, record, code); err != nil {
		return nil, err
	}

	if err := s.secrets.MarkVerified(ctx, record.ID, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to mark secret verified: %w", err)
	}
	if err := s.accounts.SetMFAEnabled(ctx, accountID, true); err != nil {
		return nil, fmt.Errorf("failed to flag account mfa-enabled: %w", err)
	}

	codes, err := s.GenerateBackupCodes(ctx, accountID)
	if err != nil {
		return nil, err
	}

	s.audit.RecordEvent(ctx, &accountID, entity.AuditMFAEnabled, entity.AuditStatusSuccess, "", "", nil)
	if err := s.publisher.Publish(ctx, kafka.EventMFAEnabled, accountID.String(), map[string]any{
		"account_id": accountID.String(),
		"enabled_at": s.now().UTC(),
	}); err != nil {
		s.logger.Error("Failed to publish mfa enabled event", zap.Error(err), zap.String("account_id", accountID.String()))
	}
	return codes, nil
}

// Verify checks a TOTP code or, failing that, a backup code. Backup-code
// consumption is atomic; the same code can never pass twice.
func (s *MFAService) Verify(ctx context.Context, accountID uuid.UUID, code string) (*VerifyResult, error) {
	record, err := s.secrets.FindByAccountID(ctx, accountID)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			return nil, domainErrors.ErrMFANotEnabled
		}
		return nil, err
	}
	if !record.Enabled {
		return nil, domainErrors.ErrMFANotEnabled
	}

	totpErr := s.validateTOTP(ctx, accountID, record, code)
	if totpErr == nil {
		s.audit.RecordEvent(ctx, &accountID, entity.AuditMFAVerified, entity.AuditStatusSuccess, "", "", nil)
		return s.verifyResult(ctx, accountID, false)
	}
	if !errors.Is(totpErr, domainErrors.ErrInvalidCode) {
		return nil, totpErr
	}

	// Not a valid TOTP code; it may be a backup code.
	consumed, err := s.backupCodes.Consume(ctx, accountID, security.HashToken(code), s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to consume backup code: %w", err)
	}
	if !consumed {
		s.audit.RecordEvent(ctx, &accountID, entity.AuditMFACodeRejected, entity.AuditStatusFailure, "", "", nil)
		return nil, domainErrors.ErrInvalidCode
	}

	s.audit.RecordEvent(ctx, &accountID, entity.AuditBackupCodeConsumed, entity.AuditStatusSuccess, "", "", nil)
	return s.verifyResult(ctx, accountID, true)
}

func (s *MFAService) verifyResult(ctx context.Context, accountID uuid.UUID, usedBackup bool) (*VerifyResult, error) {
	remaining, err := s.backupCodes.CountUnused(ctx, accountID)
	if err != nil {
		// Verification already succeeded; a failed count only loses the
		// low-water warning.
		s.logger.Warn("Failed to count unused backup codes", zap.Error(err), zap.String("account_id", accountID.String()))
		remaining = -1
	}
	result := &VerifyResult{
		UsedBackupCode:  usedBackup,
		BackupCodesLeft: remaining,
		BackupCodesLow:  remaining >= 0 && remaining <= backupCodeLowWater,
	}
	if result.BackupCodesLow {
		s.logger.Info("Account running low on backup codes",
			zap.String("account_id", accountID.String()), zap.Int("remaining", remaining))
	}
	return result, nil
}

func (s *MFAService) validateTOTP(ctx context.Context, accountID uuid.UUID, record *entity.MFASecret, code string) error {
	secretBase32, err := s.encryption.Decrypt(record.SecretEncrypted)
	if err != nil {
		s.audit.RecordEvent(ctx, &accountID, entity.AuditCredentialCorrupt, entity.AuditStatusFailure, "", "",
			map[string]any{"secret_id": record.ID.String()})
		return err
	}
	valid, err := s.totp.ValidateCode(secretBase32, code)
	if err != nil {
		return fmt.Errorf("totp validation failed: %w", err)
	}
	if !valid {
		return domainErrors.ErrInvalidCode
	}
	return nil
}

// GenerateBackupCodes replaces the account's backup codes with a fresh batch
// and returns the plaintext codes exactly once.
func (s *MFAService) GenerateBackupCodes(ctx context.Context, accountID uuid.UUID) ([]string, error) {
	if err := s.backupCodes.DeleteByAccountID(ctx, accountID); err != nil {
		return nil, fmt.Errorf("failed to clear previous backup codes: %w", err)
	}

	codes := make([]string, 0, s.backupCodeCount)
	records := make([]*entity.MFABackupCode, 0, s.backupCodeCount)
	for i := 0; i < s.backupCodeCount; i++ {
		code, err := security.GenerateBackupCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		codes = append(codes, code)
		records = append(records, &entity.MFABackupCode{
			ID:        uuid.New(),
			AccountID: accountID,
			CodeHash:  security.HashToken(code),
			CreatedAt: s.now().UTC(),
		})
	}
	if err := s.backupCodes.CreateBatch(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to store backup codes: %w", err)
	}

	s.audit.RecordEvent(ctx, &accountID, entity.AuditBackupCodesIssued, entity.AuditStatusSuccess, "", "",
		map[string]any{"count": s.backupCodeCount})
	return codes, nil
}

// Disable turns off two-factor after a final valid code and removes the
// secret and all backup codes.
func (s *MFAService) Disable(ctx context.Context, accountID uuid.UUID, code string) error {
	if _, err := s.Verify(ctx, accountID, code); err != nil {
		return err
	}

	if err := s.secrets.DeleteByAccountID(ctx, accountID); err != nil {
		return fmt.Errorf("failed to delete TOTP secret: %w", err)
	}
	if err := s.backupCodes.DeleteByAccountID(ctx, accountID); err != nil {
		return fmt.Errorf("failed to delete backup codes: %w", err)
	}
	if err := s.accounts.SetMFAEnabled(ctx, accountID, false); err != nil {
		return fmt.Errorf("failed to flag account mfa-disabled: %w", err)
	}

	s.audit.RecordEvent(ctx, &accountID, entity.AuditMFADisabled, entity.AuditStatusSuccess, "", "", nil)
	if err := s.publisher.Publish(ctx, kafka.EventMFADisabled, accountID.String(), map[string]any{
		"account_id":  accountID.String(),
		"disabled_at": s.now().UTC(),
	}); err != nil {
		s.logger.Error("Failed to publish mfa disabled event", zap.Error(err), zap.String("account_id", accountID.String()))
	}
	return nil
}
