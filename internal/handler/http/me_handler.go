package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/assistant-platform/auth-service/internal/handler/http/middleware"
	"github.com/assistant-platform/auth-service/internal/service"
)

// MeHandler exposes the caller's own identity and session management.
type MeHandler struct {
	sessions *service.SessionService
	logger   *zap.Logger
}

func NewMeHandler(sessions *service.SessionService, logger *zap.Logger) *MeHandler {
	return &MeHandler{sessions: sessions, logger: logger.Named("me_handler")}
}

// Get handles GET /api/v1/me.
func (h *MeHandler) Get(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)
	c.JSON(http.StatusOK, gin.H{
		"account_id":   identity.AccountID,
		"scopes":       identity.Scopes,
		"mfa_elevated": identity.MFAElevated,
	})
}

// RevokeAllSessions handles DELETE /api/v1/me/sessions, ending every session
// for the account, including the current one.
func (h *MeHandler) RevokeAllSessions(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)

	if err := h.sessions.RevokeAll(c.Request.Context(), identity.AccountID); err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}
