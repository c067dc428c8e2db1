// Package retry computes backoff delays and retry decisions for failed
// backend requests.
package retry

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

// retryable is implemented by errors that carry their own retry directive.
// The classifier in the backend package assigns it once; nothing downstream
// re-interprets raw status codes.
type retryable interface {
	ShouldRetry() bool
}

// Policy holds the retry tuning for a client.
type Policy struct {
	// MaxRetries is the number of resubmissions after the initial attempt.
	MaxRetries int
	// BaseDelay is the delay before the first retry; each further retry
	// doubles it.
	BaseDelay time.Duration
	// JitterRange perturbs each delay by a uniformly random fraction in
	// [-JitterRange, +JitterRange] to avoid synchronized retry storms.
	JitterRange float64
	// MinDelay floors the jittered delay so it never reaches zero.
	MinDelay time.Duration
}

// DefaultPolicy matches the shipped tuning: 3 retries, 1s base delay,
// ±30% jitter, 100ms floor.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:  3,
		BaseDelay:   time.Second,
		JitterRange: 0.3,
		MinDelay:    100 * time.Millisecond,
	}
}

// ShouldRetry reports whether a failed attempt may be resubmitted: the
// error itself must allow it and the attempt budget must not be exhausted.
// attempt is 0-based.
func (p Policy) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.MaxRetries {
		return false
	}
	var r retryable
	if !errors.As(err, &r) {
		return false
	}
	return r.ShouldRetry()
}

// Delay returns the jittered exponential backoff for the given 0-based
// attempt: BaseDelay * 2^attempt, perturbed by ±JitterRange, floored at
// MinDelay. The jitter offset is drawn independently per call.
func (p Policy) Delay(attempt int) time.Duration {
	base := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	jitter := (rand.Float64()*2 - 1) * p.JitterRange * base
	d := time.Duration(base + jitter)
	if d < p.MinDelay {
		d = p.MinDelay
	}
	return d
}
