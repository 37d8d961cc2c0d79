package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPService generates and validates RFC 6238 time-based one-time codes.
type TOTPService interface {
	// GenerateSecret returns the base32 secret and the otpauth:// URI for
	// enrollment in an authenticator app.
	GenerateSecret(accountName string) (secretBase32 string, provisioningURI string, err error)
	// ValidateCode accepts a code only within its generating time step or
	// the immediately adjacent ones (skew of exactly one step each side).
	ValidateCode(secretBase32, code string) (bool, error)
}

type pquernaTOTPService struct {
	issuer string
	now    func() time.Time
}

// NewTOTPService builds the service with the given issuer name, which ends up
// in the provisioning URI shown by authenticator apps.
func NewTOTPService(issuer string) TOTPService {
	return &pquernaTOTPService{issuer: issuer, now: time.Now}
}

func (s *pquernaTOTPService) GenerateSecret(accountName string) (string, string, error) {
	if strings.TrimSpace(accountName) == "" {
		return "", "", fmt.Errorf("account name cannot be empty")
	}
	if strings.Contains(accountName, ":") || strings.Contains(s.issuer, ":") {
		// Colons are the label separator in the otpauth URI.
		return "", "", fmt.Errorf("account name and issuer cannot contain a colon")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: accountName,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		SecretSize:  20,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate TOTP key: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

func (s *pquernaTOTPService) ValidateCode(secretBase32, code string) (bool, error) {
	if strings.TrimSpace(secretBase32) == "" {
		return false, fmt.Errorf("secret cannot be empty")
	}
	if strings.TrimSpace(code) == "" {
		return false, nil
	}

	valid, err := totp.ValidateCustom(code, secretBase32, s.now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		// A wrong-length input is a mismatch, not an internal failure; the
		// caller may still try it as a backup code.
		if errors.Is(err, otp.ErrValidateInputInvalidLength) {
			return false, nil
		}
		return false, fmt.Errorf("totp validation error: %w", err)
	}
	return valid, nil
}

var _ TOTPService = (*pquernaTOTPService)(nil)
