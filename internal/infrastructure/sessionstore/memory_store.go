package sessionstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/assistant-platform/auth-service/internal/domain/entity"
	domainErrors "github.com/assistant-platform/auth-service/internal/domain/errors"
)

// memoryStore keeps sessions in process memory. Single-instance deployments
// only; expired records are dropped on read and by PurgeExpired.
type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*entity.Session
	now      func() time.Time
}

// NewMemoryStore creates the in-process session store.
func NewMemoryStore() Store {
	return &memoryStore{
		sessions: make(map[string]*entity.Session),
		now:      time.Now,
	}
}

func (s *memoryStore) Save(_ context.Context, session *entity.Session) error {
	copied := *session
	s.mu.Lock()
	s.sessions[session.ID] = &copied
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (*entity.Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domainErrors.ErrSessionInvalid
	}
	if session.Expired(s.now()) {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		// Expired is distinct from unknown so callers can report it as such.
		return nil, domainErrors.ErrSessionExpired
	}
	copied := *session
	return &copied, nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) DeleteByAccountID(_ context.Context, accountID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		if session.AccountID == accountID {
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *memoryStore) Touch(_ context.Context, id string, expiresAt, lastActivity time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return domainErrors.ErrSessionInvalid
	}
	session.ExpiresAt = expiresAt
	session.LastActivity = lastActivity
	return nil
}

// PurgeExpired removes expired sessions; called by the app cleanup loop.
func (s *memoryStore) PurgeExpired() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

var _ Store = (*memoryStore)(nil)
