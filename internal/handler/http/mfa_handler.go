package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/assistant-platform/auth-service/internal/handler/http/middleware"
	"github.com/assistant-platform/auth-service/internal/service"
)

// MFAHandler exposes two-factor enrollment and management. All routes sit
// behind the authenticated group; enrollment changes additionally require an
// elevated session.
type MFAHandler struct {
	mfa    *service.MFAService
	logger *zap.Logger
}

func NewMFAHandler(mfa *service.MFAService, logger *zap.Logger) *MFAHandler {
	return &MFAHandler{mfa: mfa, logger: logger.Named("mfa_handler")}
}

// Provision handles POST /api/v1/mfa/provision. The secret and otpauth URI
// are returned exactly once.
func (h *MFAHandler) Provision(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)

	result, err := h.mfa.Provision(c.Request.Context(), identity.AccountID)
	if err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"secret":           result.SecretBase32,
		"provisioning_uri": result.ProvisioningURI,
	})
}

type codeRequest struct {
	Code string `json:"code" binding:"required"`
}

// Activate handles POST /api/v1/mfa/activate, proving enrollment with a
// first code and returning the one-time batch of backup codes.
func (h *MFAHandler) Activate(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, "code is required", "bad_request", h.logger)
		return
	}

	backupCodes, err := h.mfa.VerifyAndActivate(c.Request.Context(), identity.AccountID, req.Code)
	if err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"backup_codes": backupCodes})
}

// Disable handles POST /api/v1/mfa/disable. A final valid code (TOTP or
// backup) is required.
func (h *MFAHandler) Disable(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, "code is required", "bad_request", h.logger)
		return
	}

	if err := h.mfa.Disable(c.Request.Context(), identity.AccountID, req.Code); err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

// RegenerateBackupCodes handles POST /api/v1/mfa/backup-codes, replacing the
// remaining codes with a fresh batch.
func (h *MFAHandler) RegenerateBackupCodes(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)

	codes, err := h.mfa.GenerateBackupCodes(c.Request.Context(), identity.AccountID)
	if err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"backup_codes": codes})
}
