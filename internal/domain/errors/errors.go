package errors

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the authentication core. Handlers map these to generic
// user-facing messages; the specific kind is preserved in the audit log.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")

	// OAuth flow errors.
	ErrInvalidState        = errors.New("oauth state mismatch or expired")
	ErrProviderRejected    = errors.New("oauth provider rejected the request")
	ErrProviderUnavailable = errors.New("oauth provider unavailable")
	ErrUnknownProvider     = errors.New("unknown oauth provider")

	// Credential storage errors.
	ErrDecryptionFailed = errors.New("credential decryption failed")

	// Two-factor errors.
	ErrInvalidCode       = errors.New("invalid verification code")
	ErrMFAAlreadyEnabled = errors.New("two-factor authentication already enabled")
	ErrMFANotEnabled     = errors.New("two-factor authentication not enabled")

	// Session errors.
	ErrSessionExpired = errors.New("session expired")
	ErrSessionInvalid = errors.New("session invalid")

	// API token errors.
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenRevoked = errors.New("token revoked")
	ErrTokenExpired = errors.New("token expired")

	// Account errors.
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountDisabled = errors.New("account disabled")
)

// RateLimitedError is returned when an identity exceeded its attempt budget.
// It carries the limiter decision so the request boundary can translate it
// into a Retry-After without leaking counter internals.
type RateLimitedError struct {
	Delay       time.Duration // non-zero when the soft threshold applies
	LockedUntil time.Time     // non-zero when the hard threshold applies
}

func (e *RateLimitedError) Error() string {
	if !e.LockedUntil.IsZero() {
		return fmt.Sprintf("rate limited: locked until %s", e.LockedUntil.UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("rate limited: delayed %s", e.Delay)
}

// IsRateLimited reports whether err is a rate-limit rejection.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}

// ConfigurationError is fatal and only produced at startup. It aborts the
// process; a missing secret is never replaced with a default.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// NewConfigurationError builds a fatal startup error for a config field.
func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

// AppError carries an HTTP status and stable API code alongside the wrapped
// domain error for the request boundary.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
	Code       string
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(err error, message string, statusCode int, code string) *AppError {
	return &AppError{Err: err, Message: message, StatusCode: statusCode, Code: code}
}

// IsNotFound reports whether err is any of the not-found kinds.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrAccountNotFound)
}

// IsSecurityEvent reports whether err must be captured in the audit log even
// on the failure path. These kinds are never silently swallowed.
func IsSecurityEvent(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrInvalidCode) ||
		errors.Is(err, ErrDecryptionFailed) ||
		IsRateLimited(err)
}
