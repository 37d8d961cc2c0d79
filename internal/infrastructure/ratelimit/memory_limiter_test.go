package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestLimiter(t *testing.T) (*memoryLimiter, *time.Time) {
	t.Helper()
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(DefaultConfig(), zaptest.NewLogger(t)).(*memoryLimiter)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestCheckAndRecord_AllowedBelowSoftThreshold(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < l.cfg.SoftThreshold-1; i++ {
		d, err := l.CheckAndRecord(ctx, "ip:10.0.0.1", OutcomeFailure)
		require.NoError(t, err)
		assert.Equal(t, StateAllowed, d.State, "failure %d should still be allowed", i+1)
	}
}

func TestCheckAndRecord_DelayGrowsPastSoftThreshold(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	var lastDelay time.Duration
	for i := 0; i < l.cfg.HardThreshold-1; i++ {
		d, err := l.CheckAndRecord(ctx, "acct:alice", OutcomeFailure)
		require.NoError(t, err)
		if i+1 >= l.cfg.SoftThreshold {
			require.Equal(t, StateDelayed, d.State)
			assert.Greater(t, d.Delay, lastDelay, "delay must escalate")
			lastDelay = d.Delay
		}
	}
}

func TestCheckAndRecord_HardThresholdLocks(t *testing.T) {
	l, now := newTestLimiter(t)
	ctx := context.Background()

	var d Decision
	var err error
	for i := 0; i < l.cfg.HardThreshold; i++ {
		d, err = l.CheckAndRecord(ctx, "acct:bob", OutcomeFailure)
		require.NoError(t, err)
	}
	require.Equal(t, StateLocked, d.State)
	assert.Equal(t, now.Add(l.cfg.BaseLockout), d.LockedUntil)

	// Attempt N+1 during the lockout is rejected regardless of outcome.
	d, err = l.CheckAndRecord(ctx, "acct:bob", OutcomeSuccess)
	require.NoError(t, err)
	assert.Equal(t, StateLocked, d.State)
}

func TestCheckAndRecord_LockoutExpiresAndSuccessRecovers(t *testing.T) {
	l, now := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < l.cfg.HardThreshold; i++ {
		_, err := l.CheckAndRecord(ctx, "acct:carol", OutcomeFailure)
		require.NoError(t, err)
	}

	*now = now.Add(l.cfg.BaseLockout + time.Second)

	d, err := l.CheckAndRecord(ctx, "acct:carol", OutcomeSuccess)
	require.NoError(t, err)
	assert.Equal(t, StateAllowed, d.State, "a correct credential succeeds after the lockout elapses")
}

func TestCheckAndRecord_LockoutDoublesOnRepeatOffense(t *testing.T) {
	l, now := newTestLimiter(t)
	ctx := context.Background()

	lockAll := func() Decision {
		var d Decision
		var err error
		for i := 0; i < l.cfg.HardThreshold; i++ {
			d, err = l.CheckAndRecord(ctx, "acct:dave", OutcomeFailure)
			require.NoError(t, err)
		}
		return d
	}

	first := lockAll()
	require.Equal(t, StateLocked, first.State)
	firstDuration := first.LockedUntil.Sub(*now)

	*now = first.LockedUntil.Add(time.Second)
	second := lockAll()
	require.Equal(t, StateLocked, second.State)
	secondDuration := second.LockedUntil.Sub(*now)

	assert.Equal(t, 2*firstDuration, secondDuration, "second offense within 24h doubles the lockout")
}

func TestCheckAndRecord_SuccessResetsWindow(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < l.cfg.SoftThreshold; i++ {
		_, err := l.CheckAndRecord(ctx, "acct:erin", OutcomeFailure)
		require.NoError(t, err)
	}
	d, err := l.CheckAndRecord(ctx, "acct:erin", OutcomeSuccess)
	require.NoError(t, err)
	require.Equal(t, StateAllowed, d.State)

	d, err = l.CheckAndRecord(ctx, "acct:erin", OutcomeFailure)
	require.NoError(t, err)
	assert.Equal(t, StateAllowed, d.State, "window starts fresh after a success")
}

func TestCheckAndRecord_WindowSlides(t *testing.T) {
	l, now := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < l.cfg.SoftThreshold; i++ {
		_, err := l.CheckAndRecord(ctx, "ip:10.0.0.9", OutcomeFailure)
		require.NoError(t, err)
	}

	*now = now.Add(l.cfg.Window + time.Minute)

	d, err := l.CheckAndRecord(ctx, "ip:10.0.0.9", OutcomeFailure)
	require.NoError(t, err)
	assert.Equal(t, StateAllowed, d.State, "old failures slid out of the window")
}

func TestCheckAndRecordWithBypass_LetsLockedAttemptThrough(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < l.cfg.HardThreshold; i++ {
		_, err := l.CheckAndRecord(ctx, "acct:frank", OutcomeFailure)
		require.NoError(t, err)
	}

	d, err := l.CheckAndRecordWithBypass(ctx, "acct:frank", OutcomeSuccess, true)
	require.NoError(t, err)
	assert.True(t, d.Bypassed)
	assert.True(t, d.Allowed(), "crisis override must let the attempt through")
}

func TestCheckAndRecord_IdentitiesAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < l.cfg.HardThreshold; i++ {
		_, err := l.CheckAndRecord(ctx, "ip:10.1.1.1", OutcomeFailure)
		require.NoError(t, err)
	}

	d, err := l.CheckAndRecord(ctx, "ip:10.2.2.2", OutcomeFailure)
	require.NoError(t, err)
	assert.Equal(t, StateAllowed, d.State)
}

func TestCheckAndRecord_ConcurrentFailures(t *testing.T) {
	l := NewMemoryLimiter(DefaultConfig(), zaptest.NewLogger(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.CheckAndRecord(ctx, "acct:grace", OutcomeFailure)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	d, err := l.CheckAndRecord(ctx, "acct:grace", OutcomeFailure)
	require.NoError(t, err)
	assert.Equal(t, StateLocked, d.State, "50 concurrent failures must end in a lockout")
}

func TestCheck_DoesNotRecord(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		d, err := l.Check(ctx, "ip:10.3.3.3", false)
		require.NoError(t, err)
		assert.Equal(t, StateAllowed, d.State, "checking must never count as an attempt")
	}
}

func TestCheck_ReflectsDelayAndLock(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < l.cfg.SoftThreshold; i++ {
		_, err := l.CheckAndRecord(ctx, "acct:ivan", OutcomeFailure)
		require.NoError(t, err)
	}
	d, err := l.Check(ctx, "acct:ivan", false)
	require.NoError(t, err)
	assert.Equal(t, StateDelayed, d.State)

	for i := l.cfg.SoftThreshold; i < l.cfg.HardThreshold; i++ {
		_, err := l.CheckAndRecord(ctx, "acct:ivan", OutcomeFailure)
		require.NoError(t, err)
	}
	d, err = l.Check(ctx, "acct:ivan", false)
	require.NoError(t, err)
	require.Equal(t, StateLocked, d.State)
	assert.False(t, d.Allowed())

	d, err = l.Check(ctx, "acct:ivan", true)
	require.NoError(t, err)
	assert.True(t, d.Bypassed)
	assert.True(t, d.Allowed())
}

func TestReset_ClearsLockout(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < l.cfg.HardThreshold; i++ {
		_, err := l.CheckAndRecord(ctx, "acct:heidi", OutcomeFailure)
		require.NoError(t, err)
	}
	require.NoError(t, l.Reset(ctx, "acct:heidi"))

	d, err := l.CheckAndRecord(ctx, "acct:heidi", OutcomeFailure)
	require.NoError(t, err)
	assert.Equal(t, StateAllowed, d.State)
}
