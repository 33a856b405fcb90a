// Package ratelimit implements a lazily refilled token bucket used to keep
// outbound traffic to each provider under its published request rate.
//
// There is no background goroutine: tokens are recomputed from the elapsed
// time whenever the bucket is touched. A caller that finds too few tokens
// sleeps for exactly as long as the deficit needs to refill and then tries
// again, so waiters are not queued in arrival order.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

var (
	// ErrExceedsCapacity is returned when a caller asks for more tokens than
	// the bucket can ever hold.
	ErrExceedsCapacity = errors.New("ratelimit: requested tokens exceed bucket capacity")

	// ErrNoRefill is returned when the bucket is empty and never refills.
	ErrNoRefill = errors.New("ratelimit: bucket has no refill rate")

	// ErrInvalidTokens is returned for a negative token request.
	ErrInvalidTokens = errors.New("ratelimit: token count must not be negative")
)

// SleepFunc suspends the caller for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures a Bucket.
type Option func(*Bucket)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Bucket) { b.now = now }
}

// WithSleep overrides how Acquire waits for refill. Tests use it to advance a
// fake clock instead of blocking.
func WithSleep(sleep SleepFunc) Option {
	return func(b *Bucket) { b.sleep = sleep }
}

// Bucket is a token bucket safe for concurrent use.
// Invariant: 0 <= tokens <= maxTokens.
type Bucket struct {
	mu sync.Mutex

	tokens          float64
	maxTokens       float64
	refillRatePerMs float64
	lastRefillTime  time.Time

	now   func() time.Time
	sleep SleepFunc
}

// NewBucket returns a full bucket holding maxTokens that regains
// refillPerSecond tokens every second.
func NewBucket(maxTokens, refillPerSecond float64, opts ...Option) *Bucket {
	b := &Bucket{
		maxTokens:       maxTokens,
		tokens:          maxTokens,
		refillRatePerMs: refillPerSecond / 1000,
		now:             time.Now,
		sleep:           sleepContext,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.lastRefillTime = b.now()
	return b
}

// Acquire blocks until n tokens are available, deducts them and returns nil.
// It returns early with the context error if ctx is done while waiting.
func (b *Bucket) Acquire(ctx context.Context, n int) error {
	if n < 0 {
		return fmt.Errorf("%w: want %d", ErrInvalidTokens, n)
	}
	if n == 0 {
		return nil
	}
	need := float64(n)
	if need > b.maxTokens {
		return fmt.Errorf("%w: want %d, capacity %.0f", ErrExceedsCapacity, n, b.maxTokens)
	}

	for {
		wait, err := b.tryTake(need)
		if err != nil {
			return err
		}
		if wait == 0 {
			return nil
		}
		if err := b.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// TryAcquire takes n tokens if they are available right now.
func (b *Bucket) TryAcquire(n int) bool {
	if n <= 0 {
		return n == 0
	}
	wait, err := b.tryTake(float64(n))
	return err == nil && wait == 0
}

// Tokens returns the currently available tokens after refilling.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}

// Capacity returns the maximum number of tokens.
func (b *Bucket) Capacity() float64 {
	return b.maxTokens
}

// Refill brings the token count up to date with the clock.
func (b *Bucket) Refill() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
}

// tryTake deducts need tokens when possible. Otherwise it returns how long
// the caller should wait for the deficit to refill.
func (b *Bucket) tryTake(need float64) (time.Duration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.tokens >= need {
		b.tokens -= need
		return 0, nil
	}
	if b.refillRatePerMs <= 0 {
		return 0, ErrNoRefill
	}

	deficit := need - b.tokens
	ms := math.Ceil(deficit / b.refillRatePerMs)
	if ms < 1 {
		ms = 1
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// refillLocked must be called with b.mu held.
func (b *Bucket) refillLocked() {
	now := b.now()
	elapsed := float64(now.Sub(b.lastRefillTime)) / float64(time.Millisecond)
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(b.maxTokens, b.tokens+elapsed*b.refillRatePerMs)
	b.lastRefillTime = now
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
