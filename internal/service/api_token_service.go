package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assistant-platform/auth-service/internal/domain/entity"
	domainErrors "github.com/assistant-platform/auth-service/internal/domain/errors"
	"github.com/assistant-platform/auth-service/internal/domain/repository"
	"github.com/assistant-platform/auth-service/internal/infrastructure/security"
)

// apiTokenPrefix makes leaked tokens greppable by secret scanners.
const apiTokenPrefix = "pak_"

const apiTokenBytes = 32

// APITokenService issues long-lived bearer tokens for programmatic access.
// Only the hash is stored; the plaintext token exists once, in the issue
// response.
type APITokenService struct {
	logger *zap.Logger
	tokens repository.APITokenRepository
	audit  AuditRecorder

	now func() time.Time
}

func NewAPITokenService(logger *zap.Logger, tokens repository.APITokenRepository, audit AuditRecorder) *APITokenService {
	return &APITokenService{logger: logger, tokens: tokens, audit: audit, now: time.Now}
}

// Issue creates a token and returns its plaintext exactly once.
func (s *APITokenService) Issue(ctx context.Context, accountID uuid.UUID, name string, scopes []string, ttl time.Duration) (plaintext string, token *entity.APIToken, err error) {
	if ttl <= 0 {
		return "", nil, fmt.Errorf("token ttl must be positive")
	}

	random, err := security.GenerateOpaqueToken(apiTokenBytes)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}
	plaintext = apiTokenPrefix + random

	token = &entity.APIToken{
		ID:        uuid.New(),
		AccountID: accountID,
		TokenHash: security.HashToken(plaintext),
		Name:      name,
		Scopes:    scopes,
		ExpiresAt: s.now().UTC().Add(ttl),
		CreatedAt: s.now().UTC(),
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return "", nil, fmt.Errorf("failed to store token: %w", err)
	}

	s.audit.RecordEvent(ctx, &accountID, entity.AuditTokenIssued, entity.AuditStatusSuccess, "", "",
		map[string]any{"token_id": token.ID.String(), "name": name})
	return plaintext, token, nil
}

// Validate resolves a presented bearer token to an identity. Lookup is by
// hash, so a database leak exposes no usable tokens.
func (s *APITokenService) Validate(ctx context.Context, presented string) (*entity.CurrentIdentity, error) {
	presented = strings.TrimSpace(presented)
	if !strings.HasPrefix(presented, apiTokenPrefix) {
		return nil, domainErrors.ErrTokenInvalid
	}

	token, err := s.tokens.FindByHash(ctx, security.HashToken(presented))
	if err != nil {
		if domainErrors.IsNotFound(err) {
			return nil, domainErrors.ErrTokenInvalid
		}
		return nil, err
	}
	if token.Revoked {
		return nil, domainErrors.ErrTokenRevoked
	}
	if s.now().UTC().After(token.ExpiresAt) {
		return nil, domainErrors.ErrTokenExpired
	}

	return &entity.CurrentIdentity{
		AccountID: token.AccountID,
		Scopes:    token.Scopes,
	}, nil
}

// Revoke invalidates one token immediately.
func (s *APITokenService) Revoke(ctx context.Context, accountID, tokenID uuid.UUID) error {
	if err := s.tokens.Revoke(ctx, tokenID, s.now().UTC()); err != nil {
		return err
	}
	s.audit.RecordEvent(ctx, &accountID, entity.AuditTokenRevoked, entity.AuditStatusSuccess, "", "",
		map[string]any{"token_id": tokenID.String()})
	return nil
}

// RevokeAll invalidates every token the account holds.
func (s *APITokenService) RevokeAll(ctx context.Context, accountID uuid.UUID) error {
	if err := s.tokens.RevokeAllByAccountID(ctx, accountID, s.now().UTC()); err != nil {
		return err
	}
	s.audit.RecordEvent(ctx, &accountID, entity.AuditTokenRevoked, entity.AuditStatusSuccess, "", "",
		map[string]any{"all": true})
	return nil
}

// PurgeExpired removes tokens expired before the cutoff. Called from the
// maintenance loop.
func (s *APITokenService) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.tokens.DeleteExpiredBefore(ctx, cutoff)
}
