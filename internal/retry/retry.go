// Package retry implements the exponential backoff policy used by the
// transport reconnect loop.
package retry

import (
	"math"
	"time"
)

// Policy describes how a caller should back off between retry attempts.
// It carries no state and performs no I/O; DelayForAttempt and ShouldRetry
// are pure functions of the attempt number.
type Policy struct {
	// MaxAttempts is the number of retries allowed after a failed attempt:
	// ShouldRetry(k) holds only for k < *MaxAttempts, so a loop numbering
	// its attempts from 0 makes at most *MaxAttempts+1 attempts.
	// Nil means retry forever.
	MaxAttempts *uint32
	// InitialDelay is the delay before the first retry (attempt 0).
	InitialDelay time.Duration
	// Backoff is the multiplier applied per additional attempt.
	Backoff float64
	// MaxDelay caps the computed delay.
	MaxDelay time.Duration
}

// DefaultPolicy matches original_source/x2ssh/src/retry.rs's Default impl:
// unbounded attempts, 1s initial delay, 2x backoff, capped at 30s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  nil,
		InitialDelay: 1000 * time.Millisecond,
		Backoff:      2.0,
		MaxDelay:     30000 * time.Millisecond,
	}
}

// DelayForAttempt returns the delay to wait before retrying after the given
// attempt number (0-indexed), saturating at MaxDelay.
func (p Policy) DelayForAttempt(attempt uint32) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Backoff, float64(attempt))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if delay < 0 {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRetry reports whether another attempt is allowed after the given
// attempt number has failed.
func (p Policy) ShouldRetry(attempt uint32) bool {
	if p.MaxAttempts == nil {
		return true
	}
	return attempt < *p.MaxAttempts
}

// MaxAttemptsOf returns a pointer helper for building a bounded Policy.
func MaxAttemptsOf(n uint32) *uint32 {
	return &n
}
