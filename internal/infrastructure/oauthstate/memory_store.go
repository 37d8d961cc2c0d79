package oauthstate

import (
	"context"
	"sync"
	"time"

	domainErrors "github.com/assistant-platform/auth-service/internal/domain/errors"
)

// memoryStore keeps pending authorizations in process memory. Single-instance
// deployments only.
type memoryStore struct {
	mu      sync.Mutex
	pending map[string]*PendingAuthorization
	now     func() time.Time
}

// NewMemoryStore creates the in-process pending-authorization store.
func NewMemoryStore() Store {
	return &memoryStore{
		pending: make(map[string]*PendingAuthorization),
		now:     time.Now,
	}
}

func (s *memoryStore) Save(_ context.Context, pending *PendingAuthorization) error {
	copied := *pending
	s.mu.Lock()
	s.pending[pending.State] = &copied
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Consume(_ context.Context, state string) (*PendingAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.pending[state]
	if !ok {
		return nil, domainErrors.ErrInvalidState
	}
	delete(s.pending, state)
	if s.now().After(record.ExpiresAt) {
		return nil, domainErrors.ErrInvalidState
	}
	copied := *record
	return &copied, nil
}

var _ Store = (*memoryStore)(nil)
