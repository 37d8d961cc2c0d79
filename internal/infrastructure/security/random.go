package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// GenerateOpaqueToken returns a URL-safe random token of byteLen entropy
// bytes. Used for session identifiers, OAuth state and API bearer tokens.
func GenerateOpaqueToken(byteLen int) (string, error) {
	buf := make([]byte, byteLen)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateBackupCode returns a human-typeable one-time code in the form
// xxxxx-xxxxx (hex groups, 10 bytes of entropy).
func GenerateBackupCode() (string, error) {
	buf := make([]byte, 10)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	code := hex.EncodeToString(buf)
	return code[:10] + "-" + code[10:], nil
}

// HashToken returns the hex SHA-256 digest of a token. Bearer tokens and
// backup codes are stored only in this form.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

// ConstantTimeEquals compares two strings without leaking the position of the
// first differing byte.
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
