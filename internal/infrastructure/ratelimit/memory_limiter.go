package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type memoryIdentityState struct {
	failures    []time.Time
	lockedUntil time.Time
	offenses    int
	lastOffense time.Time
}

// memoryLimiter keeps counters in process memory. Correct for a
// single-instance deployment only; a horizontally scaled service must use the
// Redis implementation so lockouts are visible to every instance.
type memoryLimiter struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu         sync.Mutex
	identities map[string]*memoryIdentityState
}

// NewMemoryLimiter creates the in-process limiter.
func NewMemoryLimiter(cfg Config, logger *zap.Logger) Limiter {
	return &memoryLimiter{
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		identities: make(map[string]*memoryIdentityState),
	}
}

func (m *memoryLimiter) Check(_ context.Context, identity string, bypass bool) (Decision, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.identities[identity]
	if !ok {
		return Decision{State: StateAllowed}, nil
	}

	if state.lockedUntil.After(now) {
		if !bypass {
			return Decision{State: StateLocked, LockedUntil: state.lockedUntil}, nil
		}
		m.logger.Warn("rate limit lockout bypassed by crisis override",
			zap.String("identity", identity), zap.Time("locked_until", state.lockedUntil))
		return Decision{State: StateLocked, LockedUntil: state.lockedUntil, Bypassed: true}, nil
	}

	windowStart := now.Add(-m.cfg.Window)
	failures := 0
	for _, ts := range state.failures {
		if ts.After(windowStart) {
			failures++
		}
	}
	if failures >= m.cfg.SoftThreshold {
		return Decision{State: StateDelayed, Delay: m.cfg.DelayFor(failures)}, nil
	}
	return Decision{State: StateAllowed}, nil
}

func (m *memoryLimiter) CheckAndRecord(ctx context.Context, identity string, outcome Outcome) (Decision, error) {
	return m.CheckAndRecordWithBypass(ctx, identity, outcome, false)
}

func (m *memoryLimiter) CheckAndRecordWithBypass(_ context.Context, identity string, outcome Outcome, bypass bool) (Decision, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.identities[identity]
	if !ok {
		state = &memoryIdentityState{}
		m.identities[identity] = state
	}

	if state.lockedUntil.After(now) {
		if !bypass {
			return Decision{State: StateLocked, LockedUntil: state.lockedUntil}, nil
		}
		m.logger.Warn("rate limit lockout bypassed by crisis override",
			zap.String("identity", identity), zap.Time("locked_until", state.lockedUntil))
		return Decision{State: StateLocked, LockedUntil: state.lockedUntil, Bypassed: true}, nil
	}

	if outcome == OutcomeSuccess {
		state.failures = nil
		return Decision{State: StateAllowed}, nil
	}

	// Trim failures that slid out of the window, then record this one.
	windowStart := now.Add(-m.cfg.Window)
	kept := state.failures[:0]
	for _, ts := range state.failures {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	state.failures = append(kept, now)
	failures := len(state.failures)

	switch {
	case failures >= m.cfg.HardThreshold:
		if now.Sub(state.lastOffense) > m.cfg.EscalationWindow {
			state.offenses = 0
		}
		state.offenses++
		state.lastOffense = now
		state.lockedUntil = now.Add(m.cfg.LockoutFor(state.offenses))
		state.failures = nil
		d := Decision{State: StateLocked, LockedUntil: state.lockedUntil}
		d.Bypassed = bypass
		return d, nil
	case failures >= m.cfg.SoftThreshold:
		return Decision{State: StateDelayed, Delay: m.cfg.DelayFor(failures)}, nil
	default:
		return Decision{State: StateAllowed}, nil
	}
}

func (m *memoryLimiter) Reset(_ context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.identities, identity)
	return nil
}

var _ Limiter = (*memoryLimiter)(nil)
