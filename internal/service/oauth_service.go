package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/assistant-platform/auth-service/internal/config"
	"github.com/assistant-platform/auth-service/internal/domain/entity"
	domainErrors "github.com/assistant-platform/auth-service/internal/domain/errors"
	"github.com/assistant-platform/auth-service/internal/domain/repository"
	"github.com/assistant-platform/auth-service/internal/infrastructure/oauthstate"
	"github.com/assistant-platform/auth-service/internal/infrastructure/security"
	"github.com/assistant-platform/auth-service/internal/utils/metrics"
)

const (
	// stateTTL bounds the window between redirecting out and the provider
	// calling back.
	stateTTL = 10 * time.Minute
	// exchangeTimeout applies to each individual token-endpoint call.
	exchangeTimeout = 10 * time.Second
	// exchangeAttempts is the total tries against a provider that is timing
	// out or returning 5xx. Definitive 4xx rejections are never retried.
	exchangeAttempts = 3
)

// providerRuntime is one configured provider: its oauth2 endpoint plus where
// to fetch the user's identity afterwards.
type providerRuntime struct {
	oauth2Config *oauth2.Config
	userInfoURL  string
	usePKCE      bool
}

// providerIdentity is the normalized identity every provider response is
// reduced to before it touches an account.
type providerIdentity struct {
	ProviderUserID string
	Email          string
	DisplayName    string
}

// OAuthService runs the authorization-code flow against the closed provider
// set and owns the encrypted credential records it produces.
type OAuthService struct {
	logger     *zap.Logger
	providers  map[entity.OAuthProvider]providerRuntime
	states     oauthstate.Store
	accounts   repository.AccountRepository
	creds      repository.OAuthCredentialRepository
	encryption security.EncryptionService
	audit      AuditRecorder
	metrics    *metrics.Metrics
	httpClient *http.Client

	// refreshGroup collapses concurrent refreshes of the same credential into
	// one provider round-trip.
	refreshGroup singleflight.Group

	now func() time.Time
}

func NewOAuthService(
	cfg *config.Config,
	logger *zap.Logger,
	states oauthstate.Store,
	accounts repository.AccountRepository,
	creds repository.OAuthCredentialRepository,
	encryption security.EncryptionService,
	audit AuditRecorder,
	m *metrics.Metrics,
) *OAuthService {
	providers := make(map[entity.OAuthProvider]providerRuntime, len(cfg.OAuthProviders))
	for name, providerCfg := range cfg.OAuthProviders {
		providers[entity.OAuthProvider(name)] = providerRuntime{
			oauth2Config: &oauth2.Config{
				ClientID:     providerCfg.ClientID,
				ClientSecret: providerCfg.ClientSecret,
				RedirectURL:  providerCfg.RedirectURL,
				Scopes:       providerCfg.Scopes,
				Endpoint: oauth2.Endpoint{
					AuthURL:  providerCfg.AuthURL,
					TokenURL: providerCfg.TokenURL,
				},
			},
			userInfoURL: providerCfg.UserInfoURL,
			usePKCE:     providerCfg.UsePKCE,
		}
	}

	return &OAuthService{
		logger:     logger,
		providers:  providers,
		states:     states,
		accounts:   accounts,
		creds:      creds,
		encryption: encryption,
		audit:      audit,
		metrics:    m,
		httpClient: &http.Client{Timeout: exchangeTimeout},
		now:        time.Now,
	}
}

// BeginAuthorization starts the flow: random single-use state, a PKCE
// verifier, and the provider redirect URL the caller should send the user to.
func (s *OAuthService) BeginAuthorization(ctx context.Context, provider entity.OAuthProvider, returnContext, clientIP string) (string, error) {
	runtime, ok := s.providers[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", domainErrors.ErrUnknownProvider, provider)
	}

	state, err := security.GenerateOpaqueToken(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	pending := &oauthstate.PendingAuthorization{
		State:         state,
		Provider:      provider,
		ReturnContext: returnContext,
		ClientIP:      clientIP,
		CreatedAt:     s.now().UTC(),
		ExpiresAt:     s.now().UTC().Add(stateTTL),
	}

	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	if runtime.usePKCE {
		verifier := oauth2.GenerateVerifier()
		pending.CodeVerifier = verifier
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}

	if err := s.states.Save(ctx, pending); err != nil {
		return "", fmt.Errorf("failed to save pending authorization: %w", err)
	}

	s.audit.RecordEvent(ctx, nil, entity.AuditOAuthInitiated, entity.AuditStatusSuccess, clientIP, "",
		map[string]any{"provider": string(provider)})

	return runtime.oauth2Config.AuthCodeURL(state, opts...), nil
}

// HandleCallback finishes the flow. The state is consumed before anything
// else; a replayed or forged state never reaches the token endpoint. Returns
// the account plus whether it was created by this login.
func (s *OAuthService) HandleCallback(ctx context.Context, provider entity.OAuthProvider, state, code, clientIP, userAgent string) (*entity.Account, bool, error) {
	runtime, ok := s.providers[provider]
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", domainErrors.ErrUnknownProvider, provider)
	}

	pending, err := s.states.Consume(ctx, state)
	if err != nil {
		s.audit.RecordEvent(ctx, nil, entity.AuditOAuthInvalidState, entity.AuditStatusFailure, clientIP, userAgent,
			map[string]any{"provider": string(provider)})
		return nil, false, err
	}
	if pending.Provider != provider || s.now().UTC().After(pending.ExpiresAt) {
		s.audit.RecordEvent(ctx, nil, entity.AuditOAuthInvalidState, entity.AuditStatusFailure, clientIP, userAgent,
			map[string]any{"provider": string(provider), "expected_provider": string(pending.Provider)})
		return nil, false, domainErrors.ErrInvalidState
	}

	token, err := s.exchange(ctx, runtime, code, pending.CodeVerifier)
	if err != nil {
		s.recordExchange(provider, "error")
		s.audit.RecordEvent(ctx, nil, entity.AuditOAuthProviderError, entity.AuditStatusFailure, clientIP, userAgent,
			map[string]any{"provider": string(provider), "error": err.Error()})
		return nil, false, err
	}
	s.recordExchange(provider, "success")

	identity, err := s.fetchIdentity(ctx, runtime, token)
	if err != nil {
		s.audit.RecordEvent(ctx, nil, entity.AuditOAuthProviderError, entity.AuditStatusFailure, clientIP, userAgent,
			map[string]any{"provider": string(provider), "stage": "userinfo", "error": err.Error()})
		return nil, false, err
	}

	account, created, err := s.linkIdentity(ctx, provider, identity, token, runtime.oauth2Config.Scopes)
	if err != nil {
		return nil, false, err
	}

	accountID := account.ID
	s.audit.RecordEvent(ctx, &accountID, entity.AuditOAuthLogin, entity.AuditStatusSuccess, clientIP, userAgent,
		map[string]any{"provider": string(provider), "account_created": created})
	return account, created, nil
}

// exchange trades the authorization code for tokens, retrying transient
// failures with exponential backoff.
func (s *OAuthService) exchange(ctx context.Context, runtime providerRuntime, code, verifier string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)

	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	backoff := 500 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= exchangeAttempts; attempt++ {
		token, err := runtime.oauth2Config.Exchange(ctx, code, opts...)
		if err == nil {
			return token, nil
		}

		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			retrieveErr.Response.StatusCode >= 400 && retrieveErr.Response.StatusCode < 500 {
			// The provider understood us and said no. Retrying cannot help.
			return nil, fmt.Errorf("%w: %s", domainErrors.ErrProviderRejected, retrieveErr.ErrorCode)
		}

		lastErr = err
		if attempt < exchangeAttempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", domainErrors.ErrProviderUnavailable, ctx.Err())
			}
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("%w: %v", domainErrors.ErrProviderUnavailable, lastErr)
}

func (s *OAuthService) fetchIdentity(ctx context.Context, runtime providerRuntime, token *oauth2.Token) (*providerIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, runtime.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build userinfo request: %w", err)
	}
	token.SetAuthHeader(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: userinfo request failed: %v", domainErrors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo returned status %d", domainErrors.ErrProviderRejected, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read userinfo response: %w", err)
	}

	// Providers disagree on field names; accept the common variants.
	var raw struct {
		Sub         string `json:"sub"`
		ID          string `json:"id"`
		Email       string `json:"email"`
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo response: %w", err)
	}

	identity := &providerIdentity{
		ProviderUserID: raw.Sub,
		Email:          raw.Email,
		DisplayName:    raw.Name,
	}
	if identity.ProviderUserID == "" {
		identity.ProviderUserID = raw.ID
	}
	if identity.DisplayName == "" {
		identity.DisplayName = raw.DisplayName
	}
	if identity.ProviderUserID == "" {
		return nil, fmt.Errorf("%w: userinfo response missing subject identifier", domainErrors.ErrProviderRejected)
	}
	return identity, nil
}

// linkIdentity finds or creates the account for a provider identity and
// persists the encrypted credential.
func (s *OAuthService) linkIdentity(ctx context.Context, provider entity.OAuthProvider, identity *providerIdentity, token *oauth2.Token, scopes []string) (*entity.Account, bool, error) {
	existing, err := s.creds.FindByProviderUserID(ctx, provider, identity.ProviderUserID)
	if err == nil {
		account, err := s.accounts.FindByID(ctx, existing.AccountID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load account for credential: %w", err)
		}
		if account.Disabled {
			return nil, false, domainErrors.ErrAccountDisabled
		}
		if err := s.storeTokens(ctx, existing.ID, token); err != nil {
			return nil, false, err
		}
		return account, false, nil
	}
	if !domainErrors.IsNotFound(err) {
		return nil, false, fmt.Errorf("failed to look up credential: %w", err)
	}

	account, created, err := s.findOrCreateAccount(ctx, identity)
	if err != nil {
		return nil, false, err
	}
	if account.Disabled {
		return nil, false, domainErrors.ErrAccountDisabled
	}

	accessEnc, refreshEnc, err := s.encryptTokens(token)
	if err != nil {
		return nil, false, err
	}
	cred := &entity.OAuthCredential{
		ID:                    uuid.New(),
		AccountID:             account.ID,
		Provider:              provider,
		ProviderUserID:        identity.ProviderUserID,
		AccessTokenEncrypted:  accessEnc,
		RefreshTokenEncrypted: refreshEnc,
		TokenExpiresAt:        token.Expiry,
		Scopes:                scopes,
		CreatedAt:             s.now().UTC(),
	}
	if err := s.creds.Create(ctx, cred); err != nil {
		return nil, false, fmt.Errorf("failed to store credential: %w", err)
	}
	return account, created, nil
}

func (s *OAuthService) findOrCreateAccount(ctx context.Context, identity *providerIdentity) (*entity.Account, bool, error) {
	if identity.Email != "" {
		account, err := s.accounts.FindByEmail(ctx, identity.Email)
		if err == nil {
			if !account.HasMethod(entity.AuthMethodOAuth) {
				account.AuthMethods = append(account.AuthMethods, entity.AuthMethodOAuth)
				if err := s.accounts.Update(ctx, account); err != nil {
					return nil, false, fmt.Errorf("failed to add oauth method to account: %w", err)
				}
			}
			return account, false, nil
		}
		if !domainErrors.IsNotFound(err) {
			return nil, false, fmt.Errorf("failed to look up account by email: %w", err)
		}
	}

	account := &entity.Account{
		ID:          uuid.New(),
		Email:       identity.Email,
		AuthMethods: []entity.AuthMethod{entity.AuthMethodOAuth},
		CreatedAt:   s.now().UTC(),
	}
	if identity.DisplayName != "" {
		name := identity.DisplayName
		account.DisplayName = &name
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, false, fmt.Errorf("failed to create account: %w", err)
	}
	return account, true, nil
}

func (s *OAuthService) encryptTokens(token *oauth2.Token) (accessEnc, refreshEnc string, err error) {
	accessEnc, err = s.encryption.Encrypt(token.AccessToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refreshEnc, err = s.encryption.Encrypt(token.RefreshToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	return accessEnc, refreshEnc, nil
}

func (s *OAuthService) storeTokens(ctx context.Context, credentialID uuid.UUID, token *oauth2.Token) error {
	accessEnc, refreshEnc, err := s.encryptTokens(token)
	if err != nil {
		return err
	}
	if err := s.creds.UpdateTokens(ctx, credentialID, accessEnc, refreshEnc, token.Expiry); err != nil {
		return fmt.Errorf("failed to update credential tokens: %w", err)
	}
	return nil
}

// AccessToken decrypts and returns a live access token for the credential,
// refreshing it first when expired. Concurrent callers for the same
// credential share one refresh.
func (s *OAuthService) AccessToken(ctx context.Context, credentialID uuid.UUID) (string, error) {
	cred, err := s.creds.FindByID(ctx, credentialID)
	if err != nil {
		return "", err
	}

	if s.now().UTC().Before(cred.TokenExpiresAt.Add(-30 * time.Second)) {
		access, err := s.encryption.Decrypt(cred.AccessTokenEncrypted)
		if err != nil {
			return "", s.corruptCredential(ctx, cred, err)
		}
		return access, nil
	}
	return s.Refresh(ctx, credentialID)
}

// Refresh exchanges the stored refresh token for fresh tokens and persists the
// re-encrypted result. All concurrent callers receive the same new token.
func (s *OAuthService) Refresh(ctx context.Context, credentialID uuid.UUID) (string, error) {
	result, err, _ := s.refreshGroup.Do(credentialID.String(), func() (any, error) {
		return s.refresh(ctx, credentialID)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (s *OAuthService) refresh(ctx context.Context, credentialID uuid.UUID) (string, error) {
	cred, err := s.creds.FindByID(ctx, credentialID)
	if err != nil {
		return "", err
	}
	runtime, ok := s.providers[cred.Provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", domainErrors.ErrUnknownProvider, cred.Provider)
	}

	refreshToken, err := s.encryption.Decrypt(cred.RefreshTokenEncrypted)
	if err != nil {
		return "", s.corruptCredential(ctx, cred, err)
	}

	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	token, err := runtime.oauth2Config.TokenSource(tokenCtx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		s.recordExchange(cred.Provider, "refresh_error")
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			retrieveErr.Response.StatusCode >= 400 && retrieveErr.Response.StatusCode < 500 {
			return "", fmt.Errorf("%w: refresh rejected", domainErrors.ErrProviderRejected)
		}
		return "", fmt.Errorf("%w: refresh failed: %v", domainErrors.ErrProviderUnavailable, err)
	}
	if token.RefreshToken == "" {
		// Some providers omit the refresh token on renewal; keep the old one.
		token.RefreshToken = refreshToken
	}

	if err := s.storeTokens(ctx, cred.ID, token); err != nil {
		return "", err
	}
	s.recordExchange(cred.Provider, "refresh_success")

	accountID := cred.AccountID
	s.audit.RecordEvent(ctx, &accountID, entity.AuditOAuthTokenRefreshed, entity.AuditStatusSuccess, "", "",
		map[string]any{"provider": string(cred.Provider), "credential_id": cred.ID.String()})
	return token.AccessToken, nil
}

// corruptCredential records a decryption failure against the credential's
// account. The stored blob is unusable; the account must re-link the provider.
func (s *OAuthService) corruptCredential(ctx context.Context, cred *entity.OAuthCredential, cause error) error {
	accountID := cred.AccountID
	s.logger.Error("Stored credential failed decryption",
		zap.String("credential_id", cred.ID.String()),
		zap.String("account_id", accountID.String()),
		zap.Error(cause))
	s.audit.RecordEvent(ctx, &accountID, entity.AuditCredentialCorrupt, entity.AuditStatusFailure, "", "",
		map[string]any{"credential_id": cred.ID.String(), "provider": string(cred.Provider)})
	return cause
}

// Unlink removes the credential for one provider from the account.
func (s *OAuthService) Unlink(ctx context.Context, accountID uuid.UUID, provider entity.OAuthProvider) error {
	cred, err := s.creds.FindByAccountAndProvider(ctx, accountID, provider)
	if err != nil {
		return err
	}
	return s.creds.Delete(ctx, cred.ID)
}

func (s *OAuthService) recordExchange(provider entity.OAuthProvider, result string) {
	if s.metrics != nil {
		s.metrics.ProviderExchanges.WithLabelValues(string(provider), result).Inc()
	}
}
