package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domainErrors "github.com/assistant-platform/auth-service/internal/domain/errors"
	"github.com/assistant-platform/auth-service/internal/infrastructure/security"
)

func newAPITokenService() (*APITokenService, *fakeAPITokenRepo, *recordingAudit) {
	repo := newFakeAPITokenRepo()
	audit := newRecordingAudit()
	return NewAPITokenService(zap.NewNop(), repo, audit), repo, audit
}

func TestAPITokenService_IssueStoresOnlyHash(t *testing.T) {
	svc, repo, _ := newAPITokenService()
	accountID := uuid.New()

	plaintext, token, err := svc.Issue(context.Background(), accountID, "ci", []string{"read"}, time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plaintext, "pak_"))

	stored, err := repo.FindByHash(context.Background(), security.HashToken(plaintext))
	require.NoError(t, err)
	assert.Equal(t, token.ID, stored.ID)
	assert.NotContains(t, stored.TokenHash, strings.TrimPrefix(plaintext, "pak_"),
		"the plaintext token must not be recoverable from storage")
}

func TestAPITokenService_Validate(t *testing.T) {
	svc, _, _ := newAPITokenService()
	accountID := uuid.New()

	plaintext, _, err := svc.Issue(context.Background(), accountID, "ci", []string{"read"}, time.Hour)
	require.NoError(t, err)

	identity, err := svc.Validate(context.Background(), plaintext)
	require.NoError(t, err)
	assert.Equal(t, accountID, identity.AccountID)
	assert.Equal(t, []string{"read"}, identity.Scopes)

	// Leading/trailing whitespace from copy-paste is tolerated.
	_, err = svc.Validate(context.Background(), "  "+plaintext+"\n")
	assert.NoError(t, err)
}

func TestAPITokenService_ValidateRejectsGarbage(t *testing.T) {
	svc, _, _ := newAPITokenService()

	_, err := svc.Validate(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, domainErrors.ErrTokenInvalid)

	_, err = svc.Validate(context.Background(), "pak_unknownunknownunknown")
	assert.ErrorIs(t, err, domainErrors.ErrTokenInvalid)
}

func TestAPITokenService_ExpiredTokenRejected(t *testing.T) {
	svc, _, _ := newAPITokenService()
	frozen := time.Now().UTC()
	svc.now = func() time.Time { return frozen }

	plaintext, _, err := svc.Issue(context.Background(), uuid.New(), "ci", nil, time.Minute)
	require.NoError(t, err)

	svc.now = func() time.Time { return frozen.Add(2 * time.Minute) }
	_, err = svc.Validate(context.Background(), plaintext)
	assert.ErrorIs(t, err, domainErrors.ErrTokenExpired)
}

func TestAPITokenService_Revoke(t *testing.T) {
	svc, _, _ := newAPITokenService()
	accountID := uuid.New()

	plaintext, token, err := svc.Issue(context.Background(), accountID, "ci", nil, time.Hour)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(context.Background(), accountID, token.ID))
	_, err = svc.Validate(context.Background(), plaintext)
	assert.ErrorIs(t, err, domainErrors.ErrTokenRevoked)
}

func TestAPITokenService_RevokeAll(t *testing.T) {
	svc, _, _ := newAPITokenService()
	accountID := uuid.New()

	first, _, err := svc.Issue(context.Background(), accountID, "a", nil, time.Hour)
	require.NoError(t, err)
	second, _, err := svc.Issue(context.Background(), accountID, "b", nil, time.Hour)
	require.NoError(t, err)
	other, _, err := svc.Issue(context.Background(), uuid.New(), "c", nil, time.Hour)
	require.NoError(t, err)

	require.NoError(t, svc.RevokeAll(context.Background(), accountID))

	_, err = svc.Validate(context.Background(), first)
	assert.ErrorIs(t, err, domainErrors.ErrTokenRevoked)
	_, err = svc.Validate(context.Background(), second)
	assert.ErrorIs(t, err, domainErrors.ErrTokenRevoked)
	_, err = svc.Validate(context.Background(), other)
	assert.NoError(t, err)
}

func TestAPITokenService_PurgeExpired(t *testing.T) {
	svc, _, _ := newAPITokenService()
	frozen := time.Now().UTC()
	svc.now = func() time.Time { return frozen }

	_, _, err := svc.Issue(context.Background(), uuid.New(), "short", nil, time.Minute)
	require.NoError(t, err)
	keep, _, err := svc.Issue(context.Background(), uuid.New(), "long", nil, time.Hour)
	require.NoError(t, err)

	removed, err := svc.PurgeExpired(context.Background(), frozen.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	svc.now = func() time.Time { return frozen.Add(30 * time.Minute) }
	_, err = svc.Validate(context.Background(), keep)
	assert.NoError(t, err)
}

func TestAPITokenService_IssueRejectsNonPositiveTTL(t *testing.T) {
	svc, _, _ := newAPITokenService()
	_, _, err := svc.Issue(context.Background(), uuid.New(), "ci", nil, 0)
	assert.Error(t, err)
}
