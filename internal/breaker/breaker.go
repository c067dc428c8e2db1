// Package breaker implements a three-state circuit breaker guarding the
// remote generation backend.
//
// The breaker counts consecutive failures while closed, opens for a cooldown
// once the threshold is reached, and probes recovery through a half-open
// state that admits a single trial before fully closing or re-opening.
package breaker

import (
	"sync"
	"time"
)

// State identifies the breaker's position in the state machine.
type State int

const (
	// StateClosed admits all requests; failures are counted.
	StateClosed State = iota
	// StateOpen rejects requests until the cooldown deadline passes.
	StateOpen
	// StateHalfOpen admits a single trial request after the cooldown.
	StateHalfOpen
)

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

// Config holds the breaker's tunable thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker from closed to open.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before probing recovery.
	Cooldown time.Duration
	// HalfOpenTimeout is how long the half-open trial window lasts before
	// the breaker re-opens without a recorded success.
	HalfOpenTimeout time.Duration
}

// DefaultConfig matches the shipped tuning: trip after 3 consecutive
// failures, stay open 8s, allow a 5s half-open trial window.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		Cooldown:         8 * time.Second,
		HalfOpenTimeout:  5 * time.Second,
	}
}

// Breaker tracks backend health. All state transitions are read-modify-write
// on the wall clock and happen under a single mutex, so concurrent callers
// observe one consistent state instead of racing to trip or reset it.
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	state    State
	until    time.Time // deadline for open/half-open states
	failures int

	now func() time.Time // overridable in tests
}

// New creates a closed breaker with the given config. Zero or negative
// config fields fall back to defaults.
func New(cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.HalfOpenTimeout <= 0 {
		cfg.HalfOpenTimeout = def.HalfOpenTimeout
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// CurrentState returns the breaker state, applying any deadline-driven
// transitions first: open → half-open once the cooldown elapses, and
// half-open → open again once the trial window expires without a success.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return b.state
}

// Deadline returns the expiry of the current open or half-open window.
// It is the zero time while the breaker is closed.
func (b *Breaker) Deadline() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	if b.state == StateClosed {
		return time.Time{}
	}
	return b.until
}

// advance applies time-based transitions. Caller must hold mu.
func (b *Breaker) advance() {
	t := b.now()
	switch b.state {
	case StateOpen:
		if !t.Before(b.until) {
			b.state = StateHalfOpen
			b.until = t.Add(b.cfg.HalfOpenTimeout)
		}
	case StateHalfOpen:
		if !t.Before(b.until) {
			b.state = StateOpen
			b.until = t.Add(b.cfg.Cooldown)
		}
	}
}

// RecordSuccess resets the failure counter and forces the breaker closed
// regardless of its current state.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = StateClosed
	b.until = time.Time{}
}

// RecordFailure counts a failure. While closed, reaching the threshold
// trips the breaker open. While half-open, a failure re-opens it with a
// fresh cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.until = b.now().Add(b.cfg.Cooldown)
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.until = b.now().Add(b.cfg.Cooldown)
	}
}

// Reset returns the breaker to its initial closed state.
func (b *Breaker) Reset() {
	b.RecordSuccess()
}
