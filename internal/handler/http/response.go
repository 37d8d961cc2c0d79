package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	domainErrors "github.com/assistant-platform/auth-service/internal/domain/errors"
)

// ResponseError is the error envelope every failed request returns. Messages
// are generic; the specific failure kind lives in the audit log, not in the
// response an attacker can read.
type ResponseError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// RespondWithError sends an error envelope and logs it.
func RespondWithError(c *gin.Context, statusCode int, message string, errorCode string, logger *zap.Logger) {
	logger.Warn("API error response",
		zap.Int("status_code", statusCode),
		zap.String("error_code", errorCode),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
	)
	c.JSON(statusCode, ResponseError{Error: message, Code: errorCode})
}

// RespondWithDomainError maps a service-layer error onto a status, generic
// message and stable code. Rate-limit rejections additionally carry a
// Retry-After header.
func RespondWithDomainError(c *gin.Context, err error, logger *zap.Logger) {
	var rl *domainErrors.RateLimitedError
	if errors.As(err, &rl) {
		retryAfter := rl.Delay
		if !rl.LockedUntil.IsZero() {
			retryAfter = time.Until(rl.LockedUntil)
		}
		if retryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
		}
		RespondWithError(c, http.StatusTooManyRequests, "too many attempts", "rate_limited", logger)
		return
	}

	appErr := toAppError(err)
	RespondWithError(c, appErr.StatusCode, appErr.Message, appErr.Code, logger)
}

func toAppError(err error) *domainErrors.AppError {
	var appErr *domainErrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, domainErrors.ErrInvalidState):
		// Deliberately the same shape as any other rejected login.
		return domainErrors.NewAppError(err, "authentication failed", http.StatusForbidden, "invalid_state")
	case errors.Is(err, domainErrors.ErrUnknownProvider):
		return domainErrors.NewAppError(err, "unknown provider", http.StatusBadRequest, "unknown_provider")
	case errors.Is(err, domainErrors.ErrProviderRejected):
		return domainErrors.NewAppError(err, "authentication failed", http.StatusBadGateway, "provider_rejected")
	case errors.Is(err, domainErrors.ErrProviderUnavailable):
		return domainErrors.NewAppError(err, "provider unavailable, try again later", http.StatusBadGateway, "provider_unavailable")
	case errors.Is(err, domainErrors.ErrInvalidCode):
		return domainErrors.NewAppError(err, "invalid verification code", http.StatusUnauthorized, "invalid_code")
	case errors.Is(err, domainErrors.ErrMFAAlreadyEnabled):
		return domainErrors.NewAppError(err, "two-factor authentication already enabled", http.StatusConflict, "mfa_already_enabled")
	case errors.Is(err, domainErrors.ErrMFANotEnabled):
		return domainErrors.NewAppError(err, "two-factor authentication not enabled", http.StatusBadRequest, "mfa_not_enabled")
	case errors.Is(err, domainErrors.ErrSessionExpired),
		errors.Is(err, domainErrors.ErrSessionInvalid):
		return domainErrors.NewAppError(err, "not authenticated", http.StatusUnauthorized, "session_invalid")
	case errors.Is(err, domainErrors.ErrTokenInvalid),
		errors.Is(err, domainErrors.ErrTokenRevoked),
		errors.Is(err, domainErrors.ErrTokenExpired):
		return domainErrors.NewAppError(err, "not authenticated", http.StatusUnauthorized, "token_invalid")
	case errors.Is(err, domainErrors.ErrAccountDisabled):
		return domainErrors.NewAppError(err, "account disabled", http.StatusForbidden, "account_disabled")
	case errors.Is(err, domainErrors.ErrDecryptionFailed):
		// Never reveal that a stored credential failed to decrypt.
		return domainErrors.NewAppError(err, "authentication failed", http.StatusUnauthorized, "auth_failed")
	case domainErrors.IsNotFound(err):
		return domainErrors.NewAppError(err, "not found", http.StatusNotFound, "not_found")
	case errors.Is(err, domainErrors.ErrAlreadyExists):
		return domainErrors.NewAppError(err, "conflict", http.StatusConflict, "conflict")
	default:
		return domainErrors.NewAppError(err, "internal error", http.StatusInternalServerError, "internal")
	}
}
