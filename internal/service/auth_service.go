package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assistant-platform/auth-service/internal/domain/entity"
	domainErrors "github.com/assistant-platform/auth-service/internal/domain/errors"
	"github.com/assistant-platform/auth-service/internal/events/kafka"
	"github.com/assistant-platform/auth-service/internal/infrastructure/ratelimit"
	"github.com/assistant-platform/auth-service/internal/utils/metrics"
)

// LoginResult is the outcome of a completed provider callback. When the
// account has two-factor enabled the session starts unelevated and
// MFARequired tells the caller to prompt for a code before the session grants
// full access.
type LoginResult struct {
	Session        *entity.Session
	Account        *entity.Account
	MFARequired    bool
	AccountCreated bool
}

// AuthService orchestrates the login flows: rate limiting wraps every
// attempt, the OAuth service performs the provider dance, and the MFA gate
// decides whether the issued session is elevated.
type AuthService struct {
	logger    *zap.Logger
	oauth     *OAuthService
	mfa       *MFAService
	sessions  *SessionService
	limiter   ratelimit.Limiter
	audit     AuditRecorder
	publisher kafka.Publisher
	metrics   *metrics.Metrics

	// crisisOverride comes from operator configuration and is never taken
	// from a request. When set, lockouts on the second-factor step are
	// bypassed and each bypass is audited.
	crisisOverride bool

	now func() time.Time
}

func NewAuthService(
	logger *zap.Logger,
	oauth *OAuthService,
	mfa *MFAService,
	sessions *SessionService,
	limiter ratelimit.Limiter,
	audit AuditRecorder,
	publisher kafka.Publisher,
	m *metrics.Metrics,
	crisisOverride bool,
) *AuthService {
	return &AuthService{
		logger:         logger,
		oauth:          oauth,
		mfa:            mfa,
		sessions:       sessions,
		limiter:        limiter,
		audit:          audit,
		publisher:      publisher,
		metrics:        m,
		crisisOverride: crisisOverride,
		now:            time.Now,
	}
}

// defaultSessionScopes is what an interactive login session can do.
var defaultSessionScopes = []string{"profile", "assistant"}

func ipIdentity(ip string) string         { return "ip:" + ip }
func accountIdentity(id uuid.UUID) string { return "account:" + id.String() }

// BeginOAuthLogin starts the provider redirect. Initiations are cheap and not
// themselves rate limited; only attempts that reach the callback are.
func (s *AuthService) BeginOAuthLogin(ctx context.Context, provider entity.OAuthProvider, returnContext, clientIP string) (string, error) {
	return s.oauth.BeginAuthorization(ctx, provider, returnContext, clientIP)
}

// CompleteOAuthLogin finishes the provider callback under the IP rate limit
// and issues a session. With two-factor enabled the session is unelevated
// until CompleteMFA upgrades it.
func (s *AuthService) CompleteOAuthLogin(ctx context.Context, provider entity.OAuthProvider, state, code, clientIP, userAgent string) (*LoginResult, error) {
	if err := s.gate(ctx, ipIdentity(clientIP), clientIP, userAgent, nil, false); err != nil {
		return nil, err
	}

	account, created, err := s.oauth.HandleCallback(ctx, provider, state, code, clientIP, userAgent)
	if err != nil {
		s.recordAttempt(ctx, "oauth", "failure", ipIdentity(clientIP))
		return nil, err
	}
	s.recordAttempt(ctx, "oauth", "success", ipIdentity(clientIP))

	mfaRequired := account.MFAEnabled
	session, err := s.sessions.Issue(ctx, account.ID, defaultSessionScopes, !mfaRequired, clientIP, userAgent)
	if err != nil {
		return nil, err
	}

	if created {
		if err := s.publisher.Publish(ctx, kafka.EventAccountCreated, account.ID.String(), map[string]any{
			"account_id": account.ID.String(),
			"email":      account.Email,
			"provider":   string(provider),
		}); err != nil {
			s.logger.Error("Failed to publish account created event", zap.Error(err))
		}
	}
	if !mfaRequired {
		s.publishLogin(ctx, account.ID, string(provider))
	}

	return &LoginResult{
		Session:        session,
		Account:        account,
		MFARequired:    mfaRequired,
		AccountCreated: created,
	}, nil
}

// CompleteMFA verifies the second factor for an unelevated session and
// rotates it to an elevated one. Attempts are limited per account; only the
// operator-configured crisis override lets a locked-out account through, and
// each bypassed check is audited.
func (s *AuthService) CompleteMFA(ctx context.Context, sessionID, code, clientIP, userAgent string) (*LoginResult, error) {
	identity, err := s.sessions.Validate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if identity.MFAElevated {
		// Nothing to elevate.
		session, err := s.sessions.Rotate(ctx, sessionID, true)
		if err != nil {
			return nil, err
		}
		return &LoginResult{Session: session}, nil
	}

	accountID := identity.AccountID
	if err := s.gate(ctx, accountIdentity(accountID), clientIP, userAgent, &accountID, s.crisisOverride); err != nil {
		return nil, err
	}

	result, err := s.mfa.Verify(ctx, accountID, code)
	if err != nil {
		s.recordAttempt(ctx, "mfa", "failure", accountIdentity(accountID))
		return nil, err
	}
	s.recordAttempt(ctx, "mfa", "success", accountIdentity(accountID))

	session, err := s.sessions.Rotate(ctx, sessionID, true)
	if err != nil {
		return nil, err
	}
	if result.BackupCodesLow {
		s.logger.Info("Login used a backup code with few remaining",
			zap.String("account_id", accountID.String()),
			zap.Int("remaining", result.BackupCodesLeft))
	}

	s.publishLogin(ctx, accountID, "mfa")
	return &LoginResult{Session: session}, nil
}

// Logout revokes the session.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Revoke(ctx, sessionID)
}

// gate consults the limiter before an attempt is allowed to do any work,
// without recording anything; the real outcome is recorded afterwards. A
// disallowed decision comes back as a RateLimitedError carrying the delay or
// lockout deadline.
func (s *AuthService) gate(ctx context.Context, limiterIdentity, clientIP, userAgent string, accountID *uuid.UUID, bypass bool) error {
	decision, err := s.limiter.Check(ctx, limiterIdentity, bypass)
	if err != nil {
		// Limiter backend failure must not lock everyone out.
		s.logger.Error("Rate limiter unavailable, allowing attempt", zap.Error(err))
		return nil
	}
	if s.metrics != nil {
		s.metrics.RateLimitDecision.WithLabelValues(string(decision.State)).Inc()
	}

	if decision.Bypassed {
		s.audit.RecordEvent(ctx, accountID, entity.AuditRateLimitBypass, entity.AuditStatusSuccess, clientIP, userAgent,
			map[string]any{"identity": limiterIdentity})
		return nil
	}
	if decision.Allowed() {
		return nil
	}

	if decision.State == ratelimit.StateDelayed {
		// A refused attempt still counts; hammering through the delay phase
		// escalates to the hard lockout.
		recorded, err := s.limiter.CheckAndRecord(ctx, limiterIdentity, ratelimit.OutcomeFailure)
		if err != nil {
			s.logger.Error("Failed to record refused attempt", zap.Error(err))
			return &domainErrors.RateLimitedError{Delay: decision.Delay}
		}
		decision = recorded
		if decision.State == ratelimit.StateDelayed {
			return &domainErrors.RateLimitedError{Delay: decision.Delay}
		}
	}

	s.audit.RecordEvent(ctx, accountID, entity.AuditRateLimitLockout, entity.AuditStatusFailure, clientIP, userAgent,
		map[string]any{"identity": limiterIdentity, "locked_until": decision.LockedUntil})
	if err := s.publisher.Publish(ctx, kafka.EventLockoutTriggered, limiterIdentity, map[string]any{
		"identity":     limiterIdentity,
		"locked_until": decision.LockedUntil,
	}); err != nil {
		s.logger.Error("Failed to publish lockout event", zap.Error(err))
	}
	return &domainErrors.RateLimitedError{LockedUntil: decision.LockedUntil}
}

func (s *AuthService) recordAttempt(ctx context.Context, flow, outcome, limiterIdentity string) {
	if s.metrics != nil {
		s.metrics.AuthAttempts.WithLabelValues(flow, outcome).Inc()
	}
	if outcome == "failure" {
		if _, err := s.limiter.CheckAndRecord(ctx, limiterIdentity, ratelimit.OutcomeFailure); err != nil {
			s.logger.Warn("Failed to record attempt failure", zap.Error(err))
		}
	} else {
		if err := s.limiter.Reset(ctx, limiterIdentity); err != nil {
			s.logger.Warn("Failed to reset limiter", zap.Error(err))
		}
	}
}

func (s *AuthService) publishLogin(ctx context.Context, accountID uuid.UUID, method string) {
	if err := s.publisher.Publish(ctx, kafka.EventAccountLoggedIn, accountID.String(), map[string]any{
		"account_id": accountID.String(),
		"method":     method,
		"at":         s.now().UTC(),
	}); err != nil {
		s.logger.Error("Failed to publish login event", zap.Error(err))
	}
}
