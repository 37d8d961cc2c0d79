package security

import (
	"crypto/sha256"
	"fmt"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	domainErrors "github.com/assistant-platform/auth-service/internal/domain/errors"
)

const (
	// MinRootSecretLength is the minimum accepted root-secret length in bytes.
	MinRootSecretLength = 32
	// minRootSecretDistinctBytes rejects degenerate secrets such as a long
	// run of a single character.
	minRootSecretDistinctBytes = 10

	// KDF parameters. Derivation is deliberately slow and must not sit on a
	// latency-critical path more than once per context and version.
	kdfIterations = 120_000
	derivedKeyLen = 32
)

// SecretManager derives independent symmetric keys from a single
// operator-supplied root secret. Each context (token encryption, session
// signing, ...) gets its own key; rotation bumps a per-context version stamp
// so cached keys are recomputed rather than mutated in place.
type SecretManager struct {
	root []byte

	mu       sync.RWMutex
	versions map[string]int
	cache    map[string][]byte // keyed by salt string, i.e. (context, version)
}

// NewSecretManager validates the root secret and returns a manager. A missing
// or weak secret is a fatal configuration error; there is no default.
func NewSecretManager(rootSecret string) (*SecretManager, error) {
	if rootSecret == "" {
		return nil, domainErrors.NewConfigurationError("root_secret", "not set")
	}
	if len(rootSecret) < MinRootSecretLength {
		return nil, domainErrors.NewConfigurationError("root_secret",
			fmt.Sprintf("must be at least %d bytes, got %d", MinRootSecretLength, len(rootSecret)))
	}
	distinct := make(map[byte]struct{}, len(rootSecret))
	for i := 0; i < len(rootSecret); i++ {
		distinct[rootSecret[i]] = struct{}{}
	}
	if len(distinct) < minRootSecretDistinctBytes {
		return nil, domainErrors.NewConfigurationError("root_secret", "insufficient entropy")
	}

	return &SecretManager{
		root:     []byte(rootSecret),
		versions: make(map[string]int),
		cache:    make(map[string][]byte),
	}, nil
}

func saltFor(context string, version int) string {
	return fmt.Sprintf("authcore:v%d:%s", version, context)
}

// DeriveKey returns the current 32-byte key for the given context. Derived
// keys are cached per (context, version); the PBKDF2 run happens once per
// process per rotation.
func (m *SecretManager) DeriveKey(context string) ([]byte, error) {
	if context == "" {
		return nil, fmt.Errorf("key derivation context cannot be empty")
	}

	m.mu.RLock()
	version := m.versions[context]
	key, ok := m.cache[saltFor(context, version)]
	m.mu.RUnlock()
	if ok {
		return key, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Re-check under the write lock; another goroutine may have derived it.
	version = m.versions[context]
	salt := saltFor(context, version)
	if key, ok := m.cache[salt]; ok {
		return key, nil
	}
	key = m.derive(salt)
	m.cache[salt] = key
	return key, nil
}

// KeyVersion returns the current rotation stamp for a context.
func (m *SecretManager) KeyVersion(context string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versions[context]
}

// Rotate bumps the version stamp for a context and returns the previous and
// new keys so callers can re-encrypt data lazily.
func (m *SecretManager) Rotate(context string) (oldKey, newKey []byte, err error) {
	if context == "" {
		return nil, nil, fmt.Errorf("key derivation context cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	oldVersion := m.versions[context]
	oldSalt := saltFor(context, oldVersion)
	oldKey, ok := m.cache[oldSalt]
	if !ok {
		oldKey = m.derive(oldSalt)
		m.cache[oldSalt] = oldKey
	}

	newVersion := oldVersion + 1
	newSalt := saltFor(context, newVersion)
	newKey = m.derive(newSalt)

	m.versions[context] = newVersion
	m.cache[newSalt] = newKey
	return oldKey, newKey, nil
}

func (m *SecretManager) derive(salt string) []byte {
	return pbkdf2.Key(m.root, []byte(salt), kdfIterations, derivedKeyLen, sha256.New)
}
