// Package retry runs an operation with bounded retries and exponential
// backoff. Only errors the caller classifies as retryable are retried;
// everything else is returned on first occurrence.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// DefaultJitterFraction is the maximum share of the exponential delay added
// as random jitter.
const DefaultJitterFraction = 0.3

// Config holds the retry tuning for one service.
type Config struct {
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	JitterFraction float64
}

// DefaultConfig returns 3 retries starting at 1s and capped at 10s.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		BaseDelay:      time.Second,
		MaxDelay:       10 * time.Second,
		JitterFraction: DefaultJitterFraction,
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryFunc is notified before each backoff wait. attempt is 0-indexed and
// refers to the attempt that just failed.
type RetryFunc func(attempt int, delay time.Duration, err error)

// Option configures a Policy.
type Option func(*Policy)

// WithRetryable sets the error classifier. The default retries nothing.
func WithRetryable(fn func(error) bool) Option {
	return func(p *Policy) { p.retryable = fn }
}

// WithRand overrides the jitter source; fn must return values in [0, 1).
func WithRand(fn func() float64) Option {
	return func(p *Policy) { p.rand = fn }
}

// WithSleep overrides how backoff waits are performed.
func WithSleep(fn SleepFunc) Option {
	return func(p *Policy) { p.sleep = fn }
}

// WithOnRetry registers a callback invoked before every backoff wait.
func WithOnRetry(fn RetryFunc) Option {
	return func(p *Policy) { p.onRetry = fn }
}

// Policy is immutable after construction and safe for concurrent use.
type Policy struct {
	service   string
	cfg       Config
	retryable func(error) bool
	rand      func() float64
	sleep     SleepFunc
	onRetry   RetryFunc
}

// New creates a policy for service.
func New(service string, cfg Config, opts ...Option) *Policy {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	if cfg.MaxDelay > 0 && cfg.BaseDelay > cfg.MaxDelay {
		cfg.BaseDelay = cfg.MaxDelay
	}

	p := &Policy{
		service:   service,
		cfg:       cfg,
		retryable: func(error) bool { return false },
		rand:      rand.Float64,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective configuration.
func (p *Policy) Config() Config {
	return p.cfg
}

// Execute attempts op up to MaxRetries+1 times. A backoff wait interrupted
// by ctx fails the whole call immediately.
func (p *Policy) Execute(ctx context.Context, op func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !p.retryable(err) || ctx.Err() != nil {
			return err
		}
		if attempt == p.cfg.MaxRetries {
			break
		}

		delay := p.Delay(attempt)
		if p.onRetry != nil {
			p.onRetry(attempt, delay, err)
		}
		if werr := p.sleep(ctx, delay); werr != nil {
			return fmt.Errorf("%s: retry wait interrupted after attempt %d: %w (last error: %w)",
				p.service, attempt+1, werr, lastErr)
		}
	}

	if p.cfg.MaxRetries == 0 {
		return lastErr
	}
	return fmt.Errorf("after %d attempts: %w", p.cfg.MaxRetries+1, lastErr)
}

// BaseBackoff returns the non-jittered delay for attempt n (0-indexed):
// min(MaxDelay, BaseDelay * 2^n).
func (p *Policy) BaseBackoff(n int) time.Duration {
	return p.capped(p.exponential(n))
}

// Delay returns the delay before retrying after attempt n:
// min(MaxDelay, BaseDelay * 2^n + jitter), jitter < JitterFraction of the
// exponential term.
func (p *Policy) Delay(n int) time.Duration {
	exp := p.exponential(n)
	jitter := p.rand() * p.cfg.JitterFraction * exp
	return p.capped(exp + jitter)
}

func (p *Policy) exponential(n int) float64 {
	if n < 0 {
		n = 0
	}
	return float64(p.cfg.BaseDelay) * math.Pow(2, float64(n))
}

func (p *Policy) capped(d float64) time.Duration {
	if p.cfg.MaxDelay > 0 && d > float64(p.cfg.MaxDelay) {
		return p.cfg.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
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
