package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/assistant-platform/auth-service/internal/domain/entity"
	domainErrors "github.com/assistant-platform/auth-service/internal/domain/errors"
)

const (
	sessionKeyPrefix = "session:"
	accountKeyPrefix = "session:account:"
)

type redisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed session store. Expiry is enforced by
// key TTLs; an account index set supports bulk revocation.
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func (s *redisStore) Save(ctx context.Context, session *entity.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("refusing to save already-expired session")
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+session.ID, payload, ttl)
	accountKey := accountKeyPrefix + session.AccountID.String()
	pipe.SAdd(ctx, accountKey, session.ID)
	pipe.Expire(ctx, accountKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, id string) (*entity.Session, error) {
	raw, err := s.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, domainErrors.ErrSessionInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var session entity.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("corrupt session record: %w", err)
	}
	// The TTL usually removes expired records first; this covers the gap
	// between the stored deadline and Redis lazily reaping the key.
	if session.Expired(time.Now().UTC()) {
		return nil, domainErrors.ErrSessionExpired
	}
	return &session, nil
}

func (s *redisStore) Delete(ctx context.Context, id string) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		if err == domainErrors.ErrSessionInvalid {
			return nil
		}
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKeyPrefix+id)
	pipe.SRem(ctx, accountKeyPrefix+session.AccountID.String(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *redisStore) DeleteByAccountID(ctx context.Context, accountID uuid.UUID) error {
	accountKey := accountKeyPrefix + accountID.String()
	ids, err := s.client.SMembers(ctx, accountKey).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to list account sessions: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKeyPrefix+id)
	}
	keys = append(keys, accountKey)
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete account sessions: %w", err)
	}
	return nil
}

func (s *redisStore) Touch(ctx context.Context, id string, expiresAt, lastActivity time.Time) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	session.ExpiresAt = expiresAt
	session.LastActivity = lastActivity
	return s.Save(ctx, session)
}

var _ Store = (*redisStore)(nil)
