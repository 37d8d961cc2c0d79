package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/assistant-platform/auth-service/internal/domain/entity"
	domainErrors "github.com/assistant-platform/auth-service/internal/domain/errors"
	"github.com/assistant-platform/auth-service/internal/events/kafka"
	"github.com/assistant-platform/auth-service/internal/infrastructure/security"
)

const testRootSecretMFA = "mfa-test-root-secret-0123456789-abcdef"

type mfaTestEnv struct {
	service  *MFAService
	accounts *fakeAccountRepo
	secrets  *fakeMFASecretRepo
	backup   *fakeBackupCodeRepo
	audit    *recordingAudit

	accountID uuid.UUID
}

func newMFATestEnv(t *testing.T) *mfaTestEnv {
	t.Helper()

	env := &mfaTestEnv{
		accounts: newFakeAccountRepo(),
		secrets:  newFakeMFASecretRepo(),
		backup:   newFakeBackupCodeRepo(),
		audit:    newRecordingAudit(),
	}

	secretManager, err := security.NewSecretManager(testRootSecretMFA)
	require.NoError(t, err)
	encryption, err := security.NewAESGCMEncryptionService(secretManager)
	require.NoError(t, err)

	env.service = NewMFAService(
		zap.NewNop(),
		env.secrets,
		env.backup,
		env.accounts,
		security.NewTOTPService("Assistant"),
		encryption,
		env.audit,
		kafka.NopPublisher{},
		nil,
		10,
	)

	env.accountID = uuid.New()
	require.NoError(t, env.accounts.Create(context.Background(), &entity.Account{
		ID:          env.accountID,
		Email:       "person@example.com",
		AuthMethods: []entity.AuthMethod{entity.AuthMethodOAuth},
		CreatedAt:   time.Now().UTC(),
	}))
	return env
}

func codeFor(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

// enroll provisions and activates two-factor, returning the shared secret and
// the issued backup codes.
func enroll(t *testing.T, env *mfaTestEnv) (string, []string) {
	t.Helper()
	provisioned, err := env.service.Provision(context.Background(), env.accountID)
	require.NoError(t, err)
	codes, err := env.service.VerifyAndActivate(context.Background(), env.accountID, codeFor(t, provisioned.SecretBase32))
	require.NoError(t, err)
	return provisioned.SecretBase32, codes
}

func TestMFAService_ProvisionAndActivate(t *testing.T) {
	env := newMFATestEnv(t)

	provisioned, err := env.service.Provision(context.Background(), env.accountID)
	require.NoError(t, err)
	assert.NotEmpty(t, provisioned.SecretBase32)
	assert.Contains(t, provisioned.ProvisioningURI, "otpauth://totp/")

	// The stored secret must be ciphertext, not the base32 value.
	record, err := env.secrets.FindByAccountID(context.Background(), env.accountID)
	require.NoError(t, err)
	assert.NotEqual(t, provisioned.SecretBase32, record.SecretEncrypted)
	assert.False(t, record.Enabled, "not active until the first code is verified")

	codes, err := env.service.VerifyAndActivate(context.Background(), env.accountID, codeFor(t, provisioned.SecretBase32))
	require.NoError(t, err)
	assert.Len(t, codes, 10)

	account, err := env.accounts.FindByID(context.Background(), env.accountID)
	require.NoError(t, err)
	assert.True(t, account.MFAEnabled)
	assert.True(t, env.audit.has(entity.AuditMFAEnabled))
}

func TestMFAService_ActivateRejectsWrongCode(t *testing.T) {
	env := newMFATestEnv(t)
	_, err := env.service.Provision(context.Background(), env.accountID)
	require.NoError(t, err)

	_, err = env.service.VerifyAndActivate(context.Background(), env.accountID, "000000")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidCode)

	account, err := env.accounts.FindByID(context.Background(), env.accountID)
	require.NoError(t, err)
	assert.False(t, account.MFAEnabled)
}

func TestMFAService_ReprovisionReplacesUnverifiedSecret(t *testing.T) {
	env := newMFATestEnv(t)

	first, err := env.service.Provision(context.Background(), env.accountID)
	require.NoError(t, err)
	second, err := env.service.Provision(context.Background(), env.accountID)
	require.NoError(t, err)
	require.NotEqual(t, first.SecretBase32, second.SecretBase32)

	// Only the latest provisioned secret activates.
	_, err = env.service.VerifyAndActivate(context.Background(), env.accountID, codeFor(t, first.SecretBase32))
	assert.ErrorIs(t, err, domainErrors.ErrInvalidCode)
	_, err = env.service.VerifyAndActivate(context.Background(), env.accountID, codeFor(t, second.SecretBase32))
	assert.NoError(t, err)
}

func TestMFAService_ProvisionRejectedWhenAlreadyEnabled(t *testing.T) {
	env := newMFATestEnv(t)
	enroll(t, env)

	_, err := env.service.Provision(context.Background(), env.accountID)
	assert.ErrorIs(t, err, domainErrors.ErrMFAAlreadyEnabled)
}

func TestMFAService_VerifyTOTP(t *testing.T) {
	env := newMFATestEnv(t)
	secret, _ := enroll(t, env)

	result, err := env.service.Verify(context.Background(), env.accountID, codeFor(t, secret))
	require.NoError(t, err)
	assert.False(t, result.UsedBackupCode)
	assert.Equal(t, 10, result.BackupCodesLeft)

	_, err = env.service.Verify(context.Background(), env.accountID, "123456")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidCode)
	assert.True(t, env.audit.has(entity.AuditMFACodeRejected))
}

func TestMFAService_VerifyRequiresEnrollment(t *testing.T) {
	env := newMFATestEnv(t)
	_, err := env.service.Verify(context.Background(), env.accountID, "123456")
	assert.ErrorIs(t, err, domainErrors.ErrMFANotEnabled)
}

func TestMFAService_BackupCodeIsSingleUse(t *testing.T) {
	env := newMFATestEnv(t)
	_, codes := enroll(t, env)

	result, err := env.service.Verify(context.Background(), env.accountID, codes[0])
	require.NoError(t, err)
	assert.True(t, result.UsedBackupCode)
	assert.Equal(t, 9, result.BackupCodesLeft)
	assert.True(t, env.audit.has(entity.AuditBackupCodeConsumed))

	_, err = env.service.Verify(context.Background(), env.accountID, codes[0])
	assert.ErrorIs(t, err, domainErrors.ErrInvalidCode, "a spent backup code must never validate again")
}

func TestMFAService_BackupCodeConcurrentSpendConsumesOnce(t *testing.T) {
	env := newMFATestEnv(t)
	_, codes := enroll(t, env)

	const racers = 8
	results := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, results[idx] = env.service.Verify(context.Background(), env.accountID, codes[3])
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, domainErrors.ErrInvalidCode)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent spend may win")
}

func TestMFAService_LowBackupCodeWarning(t *testing.T) {
	env := newMFATestEnv(t)
	_, codes := enroll(t, env)

	var last *VerifyResult
	for i := 0; i < 7; i++ {
		result, err := env.service.Verify(context.Background(), env.accountID, codes[i])
		require.NoError(t, err)
		last = result
	}
	assert.Equal(t, 3, last.BackupCodesLeft)
	assert.True(t, last.BackupCodesLow)
}

func TestMFAService_RegenerateInvalidatesOldCodes(t *testing.T) {
	env := newMFATestEnv(t)
	_, oldCodes := enroll(t, env)

	fresh, err := env.service.GenerateBackupCodes(context.Background(), env.accountID)
	require.NoError(t, err)
	require.Len(t, fresh, 10)

	_, err = env.service.Verify(context.Background(), env.accountID, oldCodes[0])
	assert.ErrorIs(t, err, domainErrors.ErrInvalidCode)

	result, err := env.service.Verify(context.Background(), env.accountID, fresh[0])
	require.NoError(t, err)
	assert.True(t, result.UsedBackupCode)
}

func TestMFAService_Disable(t *testing.T) {
	env := newMFATestEnv(t)
	secret, _ := enroll(t, env)

	require.NoError(t, env.service.Disable(context.Background(), env.accountID, codeFor(t, secret)))

	account, err := env.accounts.FindByID(context.Background(), env.accountID)
	require.NoError(t, err)
	assert.False(t, account.MFAEnabled)
	assert.True(t, env.audit.has(entity.AuditMFADisabled))

	_, err = env.service.Verify(context.Background(), env.accountID, codeFor(t, secret))
	assert.ErrorIs(t, err, domainErrors.ErrMFANotEnabled)
}

func TestMFAService_DisableRequiresValidCode(t *testing.T) {
	env := newMFATestEnv(t)
	enroll(t, env)

	err := env.service.Disable(context.Background(), env.accountID, "000000")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidCode)

	account, err := env.accounts.FindByID(context.Background(), env.accountID)
	require.NoError(t, err)
	assert.True(t, account.MFAEnabled, "a failed disable must leave two-factor on")
}
