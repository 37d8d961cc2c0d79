package oauthstate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainErrors "github.com/assistant-platform/auth-service/internal/domain/errors"
)

const stateKeyPrefix = "oauth:state:"

type redisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed pending-authorization store. The key
// TTL mirrors the record expiry, so expired states vanish on their own.
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func (s *redisStore) Save(ctx context.Context, pending *PendingAuthorization) error {
	payload, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to marshal pending authorization: %w", err)
	}
	ttl := time.Until(pending.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("refusing to save already-expired authorization state")
	}
	if err := s.client.Set(ctx, stateKeyPrefix+pending.State, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save authorization state: %w", err)
	}
	return nil
}

func (s *redisStore) Consume(ctx context.Context, state string) (*PendingAuthorization, error) {
	// GETDEL makes the state single-use even under concurrent callbacks.
	raw, err := s.client.GetDel(ctx, stateKeyPrefix+state).Bytes()
	if err == redis.Nil {
		return nil, domainErrors.ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume authorization state: %w", err)
	}
	var pending PendingAuthorization
	if err := json.Unmarshal(raw, &pending); err != nil {
		return nil, fmt.Errorf("corrupt authorization state record: %w", err)
	}
	return &pending, nil
}

var _ Store = (*redisStore)(nil)
