// Package circuitbreaker implements the per-service breaker that stops
// calling an upstream provider after repeated failures.
//
// The breaker follows the three-state model:
//
//	Closed ──(failures in monitoring period >= threshold)──► Open
//	Open ──(reset timeout elapsed, next call)──► HalfOpen
//	HalfOpen ──(trial succeeds)──► Closed
//	HalfOpen ──(trial fails)──► Open
//
// Invariant: failureTimestamps only holds failures younger than the
// monitoring period, so the failure count is always len(failureTimestamps).
// All methods are safe for concurrent use.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	StateClosed   State = iota // requests pass through
	StateOpen                  // requests are rejected without being attempted
	StateHalfOpen              // a single trial request is allowed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen matches every *OpenError via errors.Is.
var ErrOpen = errors.New("circuit breaker open")

// OpenError is returned when the breaker rejects a call without attempting it.
type OpenError struct {
	Service    string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	if e.RetryAfter <= 0 {
		return fmt.Sprintf("circuit breaker open for %s, retry shortly", e.Service)
	}
	return fmt.Sprintf("circuit breaker open for %s, retry in %s", e.Service, e.RetryAfter.Round(time.Second))
}

// Is lets errors.Is(err, ErrOpen) match.
func (e *OpenError) Is(target error) bool {
	return target == ErrOpen
}

// Config holds the tuning for one service.
type Config struct {
	FailureThreshold int
	MonitoringPeriod time.Duration
	ResetTimeout     time.Duration
}

// DefaultConfig returns the settings used when a service has none.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		MonitoringPeriod: time.Minute,
		ResetTimeout:     30 * time.Second,
	}
}

// StateChangeFunc is notified on every transition. It runs while the
// breaker lock is held and must not call back into the breaker.
type StateChangeFunc func(service string, from, to State)

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithStateChange registers a transition callback.
func WithStateChange(fn StateChangeFunc) Option {
	return func(b *Breaker) { b.onStateChange = fn }
}

// Snapshot is a point-in-time copy of the breaker state.
type Snapshot struct {
	Service         string
	State           State
	FailureCount    int
	LastFailureTime time.Time
	LastStateChange time.Time
	NextAttemptTime time.Time
}

// Breaker is a failure-count circuit breaker for a single service.
type Breaker struct {
	mu sync.Mutex

	service string
	cfg     Config

	state             State
	failureTimestamps []time.Time
	lastFailureTime   time.Time
	lastStateChange   time.Time
	nextAttemptTime   time.Time
	trialInFlight     bool

	now           func() time.Time
	onStateChange StateChangeFunc
}

// New creates a closed breaker for service.
func New(service string, cfg Config, opts ...Option) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.MonitoringPeriod <= 0 {
		cfg.MonitoringPeriod = def.MonitoringPeriod
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}

	b := &Breaker{
		service: service,
		cfg:     cfg,
		state:   StateClosed,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.lastStateChange = b.now()
	return b
}

// Service returns the service id the breaker guards.
func (b *Breaker) Service() string {
	return b.service
}

// Execute runs op if the breaker allows it and records the outcome.
// A failure observed after ctx is done is the caller giving up, not the
// provider failing, so it is not counted. If op panics the half-open
// trial slot is freed before the panic propagates.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	returned := false
	defer func() {
		if !returned {
			b.releaseTrial()
		}
	}()
	err := op(ctx)
	returned = true
	switch {
	case err == nil:
		b.recordSuccess()
	case ctx.Err() != nil:
		b.releaseTrial()
	default:
		b.recordFailure()
	}
	return err
}

// State returns the current state without triggering transitions.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the current state with the failure window pruned.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pruneLocked(b.now())
	return Snapshot{
		Service:         b.service,
		State:           b.state,
		FailureCount:    len(b.failureTimestamps),
		LastFailureTime: b.lastFailureTime,
		LastStateChange: b.lastStateChange,
		NextAttemptTime: b.nextAttemptTime,
	}
}

// Reset forces the breaker closed and clears its history.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureTimestamps = nil
	b.lastFailureTime = time.Time{}
	b.nextAttemptTime = time.Time{}
	b.trialInFlight = false
	b.transitionLocked(StateClosed, b.now())
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case StateOpen:
		if now.Before(b.nextAttemptTime) {
			return &OpenError{Service: b.service, RetryAfter: b.nextAttemptTime.Sub(now)}
		}
		b.transitionLocked(StateHalfOpen, now)
		b.trialInFlight = true
		return nil
	case StateHalfOpen:
		if b.trialInFlight {
			return &OpenError{Service: b.service}
		}
		b.trialInFlight = true
		return nil
	default:
		return nil
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureTimestamps = nil
	b.trialInFlight = false
	b.nextAttemptTime = time.Time{}
	b.transitionLocked(StateClosed, b.now())
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.lastFailureTime = now
	b.failureTimestamps = append(b.failureTimestamps, now)
	b.pruneLocked(now)

	switch b.state {
	case StateHalfOpen:
		b.trialInFlight = false
		b.openLocked(now)
	case StateClosed:
		if len(b.failureTimestamps) >= b.cfg.FailureThreshold {
			b.openLocked(now)
		}
	}
}

func (b *Breaker) releaseTrial() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.trialInFlight = false
	}
}

// openLocked must be called with b.mu held.
func (b *Breaker) openLocked(now time.Time) {
	b.nextAttemptTime = now.Add(b.cfg.ResetTimeout)
	b.transitionLocked(StateOpen, now)
}

// pruneLocked drops failures older than the monitoring period.
// Must be called with b.mu held.
func (b *Breaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.cfg.MonitoringPeriod)
	i := 0
	for i < len(b.failureTimestamps) && !b.failureTimestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.failureTimestamps = append(b.failureTimestamps[:0], b.failureTimestamps[i:]...)
	}
}

// transitionLocked must be called with b.mu held.
func (b *Breaker) transitionLocked(to State, now time.Time) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.lastStateChange = now
	if b.onStateChange != nil {
		b.onStateChange(b.service, from, to)
	}
}
