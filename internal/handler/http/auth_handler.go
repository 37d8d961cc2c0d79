package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/assistant-platform/auth-service/internal/config"
	"github.com/assistant-platform/auth-service/internal/domain/entity"
	"github.com/assistant-platform/auth-service/internal/handler/http/middleware"
	"github.com/assistant-platform/auth-service/internal/service"
)

// AuthHandler exposes the login flows: the provider redirect, its callback,
// the second-factor step and logout.
type AuthHandler struct {
	auth   *service.AuthService
	logger *zap.Logger
	cfg    *config.Config
}

func NewAuthHandler(auth *service.AuthService, logger *zap.Logger, cfg *config.Config) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger.Named("auth_handler"), cfg: cfg}
}

// Begin handles GET /api/v1/auth/oauth/:provider and redirects the user to
// the provider's consent page.
func (h *AuthHandler) Begin(c *gin.Context) {
	provider := entity.OAuthProvider(c.Param("provider"))
	returnContext := c.Query("return_to")

	authURL, err := h.auth.BeginOAuthLogin(c.Request.Context(), provider, returnContext, c.ClientIP())
	if err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, authURL)
}

// Callback handles GET /api/v1/auth/oauth/:provider/callback.
func (h *AuthHandler) Callback(c *gin.Context) {
	provider := entity.OAuthProvider(c.Param("provider"))
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		RespondWithError(c, http.StatusBadRequest, "state and code are required", "bad_request", h.logger)
		return
	}

	result, err := h.auth.CompleteOAuthLogin(c.Request.Context(), provider, state, code, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}

	h.setSessionCookie(c, result.Session)
	c.JSON(http.StatusOK, gin.H{
		"mfa_required":    result.MFARequired,
		"account_created": result.AccountCreated,
	})
}

type verifyMFARequest struct {
	Code string `json:"code" binding:"required"`
}

// VerifyMFA handles POST /api/v1/auth/mfa/verify, upgrading an unelevated
// session after a successful code check.
func (h *AuthHandler) VerifyMFA(c *gin.Context) {
	var req verifyMFARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, "code is required", "bad_request", h.logger)
		return
	}
	sessionID, err := c.Cookie(middleware.SessionCookieName)
	if err != nil || sessionID == "" {
		RespondWithError(c, http.StatusUnauthorized, "not authenticated", "unauthenticated", h.logger)
		return
	}

	result, err := h.auth.CompleteMFA(c.Request.Context(), sessionID, req.Code, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}

	h.setSessionCookie(c, result.Session)
	c.JSON(http.StatusOK, gin.H{"mfa_elevated": true})
}

// Logout handles POST /api/v1/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	sessionID, err := c.Cookie(middleware.SessionCookieName)
	if err == nil && sessionID != "" {
		if err := h.auth.Logout(c.Request.Context(), sessionID); err != nil {
			h.logger.Debug("logout of unknown session", zap.Error(err))
		}
	}
	h.clearSessionCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, session *entity.Session) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   h.cfg.Session.CookieDomain,
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cfg.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.cfg.Session.CookieDomain,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.cfg.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
