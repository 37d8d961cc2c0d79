package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	attemptsKeyPrefix = "rl:attempts:"
	lockKeyPrefix     = "rl:lock:"
	offenseKeyPrefix  = "rl:offense:"
)

// redisLimiter is the shared-state implementation. Counters live in Redis so
// every instance of the service observes the same sliding window.
type redisLimiter struct {
	client *redis.Client
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewRedisLimiter creates a Redis-backed sliding-window limiter.
func NewRedisLimiter(client *redis.Client, cfg Config, logger *zap.Logger) Limiter {
	return &redisLimiter{client: client, cfg: cfg, logger: logger, now: time.Now}
}

func (r *redisLimiter) Check(ctx context.Context, identity string, bypass bool) (Decision, error) {
	now := r.now()

	lockedUntil, err := r.lockedUntil(ctx, identity)
	if err != nil {
		return Decision{}, err
	}
	if lockedUntil.After(now) {
		if !bypass {
			return Decision{State: StateLocked, LockedUntil: lockedUntil}, nil
		}
		r.logger.Warn("rate limit lockout bypassed by crisis override",
			zap.String("identity", identity), zap.Time("locked_until", lockedUntil))
		return Decision{State: StateLocked, LockedUntil: lockedUntil, Bypassed: true}, nil
	}

	failures, err := r.client.ZCount(ctx, attemptsKeyPrefix+identity,
		strconv.FormatInt(now.Add(-r.cfg.Window).UnixNano(), 10), "+inf").Result()
	if err != nil {
		return Decision{}, fmt.Errorf("redis attempt count failed: %w", err)
	}
	if failures >= int64(r.cfg.SoftThreshold) {
		return Decision{State: StateDelayed, Delay: r.cfg.DelayFor(int(failures))}, nil
	}
	return Decision{State: StateAllowed}, nil
}

func (r *redisLimiter) CheckAndRecord(ctx context.Context, identity string, outcome Outcome) (Decision, error) {
	return r.CheckAndRecordWithBypass(ctx, identity, outcome, false)
}

func (r *redisLimiter) CheckAndRecordWithBypass(ctx context.Context, identity string, outcome Outcome, bypass bool) (Decision, error) {
	now := r.now()

	lockedUntil, err := r.lockedUntil(ctx, identity)
	if err != nil {
		return Decision{}, err
	}
	if lockedUntil.After(now) {
		if !bypass {
			return Decision{State: StateLocked, LockedUntil: lockedUntil}, nil
		}
		r.logger.Warn("rate limit lockout bypassed by crisis override",
			zap.String("identity", identity), zap.Time("locked_until", lockedUntil))
		return Decision{State: StateLocked, LockedUntil: lockedUntil, Bypassed: true}, nil
	}

	if outcome == OutcomeSuccess {
		if err := r.client.Del(ctx, attemptsKeyPrefix+identity).Err(); err != nil {
			r.logger.Error("failed to reset attempt window", zap.String("identity", identity), zap.Error(err))
		}
		return Decision{State: StateAllowed}, nil
	}

	failures, err := r.recordFailure(ctx, identity, now)
	if err != nil {
		return Decision{}, err
	}

	switch {
	case failures >= int64(r.cfg.HardThreshold):
		until, err := r.lock(ctx, identity, now)
		if err != nil {
			return Decision{}, err
		}
		if bypass {
			return Decision{State: StateLocked, LockedUntil: until, Bypassed: true}, nil
		}
		return Decision{State: StateLocked, LockedUntil: until}, nil
	case failures >= int64(r.cfg.SoftThreshold):
		return Decision{State: StateDelayed, Delay: r.cfg.DelayFor(int(failures))}, nil
	default:
		return Decision{State: StateAllowed}, nil
	}
}

// recordFailure appends the attempt to the identity's sorted set, trims
// entries older than the window and returns the in-window count. The pipeline
// keeps the trim, add and count in one round trip.
func (r *redisLimiter) recordFailure(ctx context.Context, identity string, now time.Time) (int64, error) {
	key := attemptsKeyPrefix + identity
	windowStart := now.Add(-r.cfg.Window)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, r.cfg.Window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis rate limit pipeline failed: %w", err)
	}
	return card.Val(), nil
}

func (r *redisLimiter) lock(ctx context.Context, identity string, now time.Time) (time.Time, error) {
	offense, err := r.client.Incr(ctx, offenseKeyPrefix+identity).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("redis offense increment failed: %w", err)
	}
	if err := r.client.Expire(ctx, offenseKeyPrefix+identity, r.cfg.EscalationWindow).Err(); err != nil {
		r.logger.Error("failed to set offense expiry", zap.String("identity", identity), zap.Error(err))
	}

	duration := r.cfg.LockoutFor(int(offense))
	until := now.Add(duration)
	if err := r.client.Set(ctx, lockKeyPrefix+identity, until.UnixNano(), duration).Err(); err != nil {
		return time.Time{}, fmt.Errorf("redis lockout set failed: %w", err)
	}
	// The window restarts after a lockout.
	if err := r.client.Del(ctx, attemptsKeyPrefix+identity).Err(); err != nil {
		r.logger.Error("failed to clear attempt window after lockout", zap.String("identity", identity), zap.Error(err))
	}
	return until, nil
}

func (r *redisLimiter) lockedUntil(ctx context.Context, identity string) (time.Time, error) {
	raw, err := r.client.Get(ctx, lockKeyPrefix+identity).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("redis lockout lookup failed: %w", err)
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt lockout value for %q: %w", identity, err)
	}
	return time.Unix(0, nanos), nil
}

func (r *redisLimiter) Reset(ctx context.Context, identity string) error {
	err := r.client.Del(ctx,
		attemptsKeyPrefix+identity,
		lockKeyPrefix+identity,
		offenseKeyPrefix+identity,
	).Err()
	if err != nil {
		return fmt.Errorf("redis rate limit reset failed: %w", err)
	}
	return nil
}

var _ Limiter = (*redisLimiter)(nil)
