package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assistant-platform/auth-service/internal/handler/http/middleware"
	"github.com/assistant-platform/auth-service/internal/service"
)

// TokenHandler manages programmatic API tokens.
type TokenHandler struct {
	tokens *service.APITokenService
	logger *zap.Logger
}

func NewTokenHandler(tokens *service.APITokenService, logger *zap.Logger) *TokenHandler {
	return &TokenHandler{tokens: tokens, logger: logger.Named("token_handler")}
}

type issueTokenRequest struct {
	Name     string   `json:"name" binding:"required"`
	Scopes   []string `json:"scopes"`
	TTLHours int      `json:"ttl_hours" binding:"required,min=1,max=8760"`
}

// Issue handles POST /api/v1/tokens. The plaintext token appears in this
// response and nowhere else, ever.
func (h *TokenHandler) Issue(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, "name and ttl_hours are required", "bad_request", h.logger)
		return
	}

	plaintext, token, err := h.tokens.Issue(c.Request.Context(), identity.AccountID, req.Name, req.Scopes,
		time.Duration(req.TTLHours)*time.Hour)
	if err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"token":      plaintext,
		"token_id":   token.ID,
		"expires_at": token.ExpiresAt,
	})
}

// Revoke handles DELETE /api/v1/tokens/:id.
func (h *TokenHandler) Revoke(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)
	tokenID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, "invalid token id", "bad_request", h.logger)
		return
	}

	if err := h.tokens.Revoke(c.Request.Context(), identity.AccountID, tokenID); err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

// RevokeAll handles DELETE /api/v1/tokens.
func (h *TokenHandler) RevokeAll(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)

	if err := h.tokens.RevokeAll(c.Request.Context(), identity.AccountID); err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}
