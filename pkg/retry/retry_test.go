package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("503 service unavailable")
	errFatal     = errors.New("401 unauthorized")
)

func isTransient(err error) bool { return errors.Is(err, errTransient) }

// recordingSleep captures requested waits without blocking.
func recordingSleep(waits *[]time.Duration) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		*waits = append(*waits, d)
		return nil
	}
}

func TestExecute_SucceedsFirstTry(t *testing.T) {
	var waits []time.Duration
	p := New("weather", DefaultConfig(), WithRetryable(isTransient), WithSleep(recordingSleep(&waits)))

	calls := 0
	err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, waits)
}

func TestExecute_RetriesTransientThenSucceeds(t *testing.T) {
	var waits []time.Duration
	p := New("weather", DefaultConfig(),
		WithRetryable(isTransient),
		WithSleep(recordingSleep(&waits)),
		WithRand(func() float64 { return 0 }),
	)

	calls := 0
	err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
}

func TestExecute_ExhaustsAttempts(t *testing.T) {
	var waits []time.Duration
	var notified []int
	cfg := Config{MaxRetries: 2, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second, JitterFraction: DefaultJitterFraction}
	p := New("places", cfg,
		WithRetryable(isTransient),
		WithSleep(recordingSleep(&waits)),
		WithOnRetry(func(attempt int, _ time.Duration, _ error) { notified = append(notified, attempt) }),
	)

	calls := 0
	err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, errTransient)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, calls, "maxRetries+1 attempts")
	assert.Len(t, waits, 2)
	assert.Equal(t, []int{0, 1}, notified)
}

func TestExecute_NonRetryableSurfacesImmediately(t *testing.T) {
	var waits []time.Duration
	p := New("hotels", DefaultConfig(), WithRetryable(isTransient), WithSleep(recordingSleep(&waits)))

	calls := 0
	err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		return errFatal
	})

	assert.Same(t, errFatal, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, waits)
}

func TestExecute_ZeroRetriesReturnsErrorUnwrapped(t *testing.T) {
	p := New("places", Config{MaxRetries: 0, BaseDelay: time.Millisecond}, WithRetryable(isTransient))

	err := p.Execute(context.Background(), func(context.Context) error { return errTransient })
	assert.Same(t, errTransient, err)
}

func TestExecute_CancelDuringWaitFailsImmediately(t *testing.T) {
	cfg := Config{MaxRetries: 3, BaseDelay: 5 * time.Second, MaxDelay: 10 * time.Second}
	p := New("weather", cfg, WithRetryable(isTransient))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	calls := 0
	start := time.Now()
	err := p.Execute(ctx, func(context.Context) error {
		calls++
		return errTransient
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second, "wait must not run to completion")
}

func TestBaseBackoff_MonotonicAndCapped(t *testing.T) {
	cfg := Config{MaxRetries: 10, BaseDelay: 250 * time.Millisecond, MaxDelay: 5 * time.Second}
	p := New("weather", cfg)

	prev := time.Duration(0)
	for n := 0; n <= 40; n++ {
		d := p.BaseBackoff(n)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", n)
		assert.LessOrEqual(t, d, cfg.MaxDelay, "attempt %d", n)
		prev = d
	}
	assert.Equal(t, 250*time.Millisecond, p.BaseBackoff(0))
	assert.Equal(t, 500*time.Millisecond, p.BaseBackoff(1))
	assert.Equal(t, 5*time.Second, p.BaseBackoff(100))
}

func TestDelay_JitterBounds(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, MaxDelay: time.Minute, JitterFraction: DefaultJitterFraction}

	low := New("weather", cfg, WithRand(func() float64 { return 0 }))
	high := New("weather", cfg, WithRand(func() float64 { return 0.999999 }))

	assert.Equal(t, 4*time.Second, low.Delay(2))
	assert.InDelta(t, float64(5200*time.Millisecond), float64(high.Delay(2)), float64(time.Millisecond))

	// Jitter never pushes the delay beyond the cap.
	capped := New("weather", Config{BaseDelay: time.Second, MaxDelay: 3 * time.Second, JitterFraction: 0.3},
		WithRand(func() float64 { return 0.9 }))
	assert.Equal(t, 3*time.Second, capped.Delay(2))
}

func TestDelay_RandomJitterWithinRange(t *testing.T) {
	p := New("weather", Config{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Hour, JitterFraction: 0.3})
	for i := 0; i < 200; i++ {
		d := p.Delay(3)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.Less(t, d, 1040*time.Millisecond)
	}
}
