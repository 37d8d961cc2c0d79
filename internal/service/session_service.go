package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assistant-platform/auth-service/internal/domain/entity"
	domainErrors "github.com/assistant-platform/auth-service/internal/domain/errors"
	"github.com/assistant-platform/auth-service/internal/infrastructure/security"
	"github.com/assistant-platform/auth-service/internal/infrastructure/sessionstore"
	"github.com/assistant-platform/auth-service/internal/utils/metrics"
)

const sessionIDBytes = 32

// SessionService issues and validates opaque session identifiers. The
// identifier carries nothing; everything lives server-side, so revocation is
// immediate.
type SessionService struct {
	logger  *zap.Logger
	store   sessionstore.Store
	audit   AuditRecorder
	metrics *metrics.Metrics

	ttl time.Duration
	now func() time.Time
}

func NewSessionService(logger *zap.Logger, store sessionstore.Store, audit AuditRecorder, m *metrics.Metrics, ttl time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionService{
		logger:  logger,
		store:   store,
		audit:   audit,
		metrics: m,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Issue creates a session for the account. mfaElevated records whether this
// login completed a second factor; it gates the sensitive operations.
func (s *SessionService) Issue(ctx context.Context, accountID uuid.UUID, scopes []string, mfaElevated bool, ip, userAgent string) (*entity.Session, error) {
	id, err := security.GenerateOpaqueToken(sessionIDBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	now := s.now().UTC()
	session := &entity.Session{
		ID:           id,
		AccountID:    accountID,
		Scopes:       scopes,
		MFAElevated:  mfaElevated,
		IPAddress:    ip,
		UserAgent:    userAgent,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.ttl),
	}
	if err := s.store.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	if s.metrics != nil {
		s.metrics.SessionsActive.Inc()
	}
	s.audit.RecordEvent(ctx, &accountID, entity.AuditSessionIssued, entity.AuditStatusSuccess, ip, userAgent,
		map[string]any{"mfa_elevated": mfaElevated})
	return session, nil
}

// Validate resolves a session identifier to the current identity, sliding the
// expiry forward on each use.
func (s *SessionService) Validate(ctx context.Context, sessionID string) (*entity.CurrentIdentity, error) {
	if sessionID == "" {
		return nil, domainErrors.ErrSessionInvalid
	}
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if session.Expired(now) {
		// Best effort; the store TTL removes it anyway.
		_ = s.store.Delete(ctx, sessionID)
		return nil, domainErrors.ErrSessionExpired
	}

	if err := s.store.Touch(ctx, sessionID, now.Add(s.ttl), now); err != nil {
		s.logger.Warn("Failed to slide session expiry", zap.Error(err))
	}

	return &entity.CurrentIdentity{
		AccountID:   session.AccountID,
		Scopes:      session.Scopes,
		MFAElevated: session.MFAElevated,
		SessionID:   session.ID,
	}, nil
}

// Rotate replaces the session identifier after a privilege change (such as
// completing a second factor), keeping the old one from remaining valid.
func (s *SessionService) Rotate(ctx context.Context, sessionID string, mfaElevated bool) (*entity.Session, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Expired(s.now().UTC()) {
		return nil, domainErrors.ErrSessionExpired
	}

	if err := s.store.Delete(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("failed to delete old session: %w", err)
	}
	if s.metrics != nil {
		s.metrics.SessionsActive.Dec()
	}

	fresh, err := s.Issue(ctx, session.AccountID, session.Scopes, mfaElevated, session.IPAddress, session.UserAgent)
	if err != nil {
		return nil, err
	}

	accountID := session.AccountID
	s.audit.RecordEvent(ctx, &accountID, entity.AuditSessionRotated, entity.AuditStatusSuccess, session.IPAddress, session.UserAgent,
		map[string]any{"mfa_elevated": mfaElevated})
	return fresh, nil
}

// Revoke ends a single session.
func (s *SessionService) Revoke(ctx context.Context, sessionID string) error {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if s.metrics != nil {
		s.metrics.SessionsActive.Dec()
	}
	accountID := session.AccountID
	s.audit.RecordEvent(ctx, &accountID, entity.AuditSessionRevoked, entity.AuditStatusSuccess, "", "", nil)
	return nil
}

// RevokeAll ends every session belonging to the account, e.g. on a suspected
// compromise or a password change elsewhere on the platform.
func (s *SessionService) RevokeAll(ctx context.Context, accountID uuid.UUID) error {
	if err := s.store.DeleteByAccountID(ctx, accountID); err != nil {
		return fmt.Errorf("failed to delete account sessions: %w", err)
	}
	s.audit.RecordEvent(ctx, &accountID, entity.AuditSessionRevoked, entity.AuditStatusSuccess, "", "",
		map[string]any{"all": true})
	return nil
}
