package ratelimit

import (
	"context"
	"time"
)

// Outcome of the authentication attempt being recorded.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// State of a limiter decision.
type State string

const (
	StateAllowed State = "allowed"
	StateDelayed State = "delayed"
	StateLocked  State = "locked"
)

// Decision is the limiter verdict for one attempt.
type Decision struct {
	State       State
	Delay       time.Duration // set when State == StateDelayed
	LockedUntil time.Time     // set when State == StateLocked
	// Bypassed marks a crisis-override decision that skipped an active
	// lockout. Callers must audit these distinctly.
	Bypassed bool
}

// Allowed reports whether the attempt may proceed immediately.
func (d Decision) Allowed() bool {
	return d.State == StateAllowed || d.Bypassed
}

// Limiter tracks authentication attempts per identity (an IP address or an
// account id, each tracked separately by the caller) over a sliding window.
//
// The Redis implementation shares state across instances; the in-memory one
// is correct only for a single-instance deployment.
type Limiter interface {
	// Check returns the decision an attempt would receive right now without
	// recording anything. Used to refuse work before it starts; the caller
	// still records the real outcome afterwards.
	Check(ctx context.Context, identity string, bypass bool) (Decision, error)

	// CheckAndRecord records the attempt outcome and returns the decision
	// for this attempt. A success resets the identity's failure window.
	CheckAndRecord(ctx context.Context, identity string, outcome Outcome) (Decision, error)

	// CheckAndRecordWithBypass behaves like CheckAndRecord but, when bypass
	// is set, lets the attempt through an active lockout. The returned
	// decision carries Bypassed=true so it can be audited distinctly.
	CheckAndRecordWithBypass(ctx context.Context, identity string, outcome Outcome, bypass bool) (Decision, error)

	// Reset clears all limiter state for an identity.
	Reset(ctx context.Context, identity string) error
}

// Config centralizes the threshold knobs. The values are tuning defaults;
// the single-step semantics (soft delay, escalating hard lockout) are fixed.
type Config struct {
	// Window is the sliding interval failures are counted over.
	Window time.Duration
	// SoftThreshold is the failure count at which attempts get delayed.
	SoftThreshold int
	// HardThreshold is the failure count at which the identity is locked.
	HardThreshold int
	// BaseDelay grows linearly with each failure past the soft threshold.
	BaseDelay time.Duration
	// BaseLockout doubles for each repeated offense inside EscalationWindow.
	BaseLockout      time.Duration
	EscalationWindow time.Duration
	MaxLockoutDouble int
}

// DefaultConfig matches the documented policy: 10-failure hard threshold over
// 15 minutes, 15-minute lockout doubling on repeat offenses within 24 hours.
func DefaultConfig() Config {
	return Config{
		Window:           15 * time.Minute,
		SoftThreshold:    5,
		HardThreshold:    10,
		BaseDelay:        2 * time.Second,
		BaseLockout:      15 * time.Minute,
		EscalationWindow: 24 * time.Hour,
		MaxLockoutDouble: 5,
	}
}

// LockoutFor returns the lockout duration for the nth offense (1-based)
// within the escalation window.
func (c Config) LockoutFor(offense int) time.Duration {
	if offense < 1 {
		offense = 1
	}
	double := offense - 1
	if double > c.MaxLockoutDouble {
		double = c.MaxLockoutDouble
	}
	return c.BaseLockout << uint(double)
}

// DelayFor returns the soft delay for the given failure count.
func (c Config) DelayFor(failures int) time.Duration {
	steps := failures - c.SoftThreshold + 1
	if steps < 1 {
		steps = 1
	}
	return time.Duration(steps) * c.BaseDelay
}
