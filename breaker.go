package orgsession

import (
	"sync/atomic"
	"time"
)

type breakerState int32

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// breaker is the cache circuit breaker. Consecutive backend failures beyond
// the threshold open it; while open, Allow rejects and Validate bypasses the
// cache entirely. After the cooldown a single caller wins the half-open probe;
// its outcome decides between closed and another open interval.
//
// All transitions are CAS-based; no locks are held across cache calls.
type breaker struct {
	threshold int32
	cooldown  time.Duration

	state    atomic.Int32
	failures atomic.Int32
	openedAt atomic.Int64 // unix nanos of the last open transition
}

func newBreaker(cfg BreakerConfig) *breaker {
	return &breaker{
		threshold: int32(cfg.FailureThreshold),
		cooldown:  cfg.Cooldown,
	}
}

// Allow reports whether a cache call may proceed. At most one caller is
// admitted while half-open.
func (b *breaker) Allow(now time.Time) bool {
	switch breakerState(b.state.Load()) {
	case breakerClosed:
		return true
	case breakerOpen:
		if now.UnixNano()-b.openedAt.Load() < int64(b.cooldown) {
			return false
		}
		// Cooldown elapsed: the CAS winner becomes the probe.
		return b.state.CompareAndSwap(int32(breakerOpen), int32(breakerHalfOpen))
	default: // half-open, probe already in flight
		return false
	}
}

// Success records a successful cache call and closes the breaker.
func (b *breaker) Success() bool {
	b.failures.Store(0)
	prev := breakerState(b.state.Swap(int32(breakerClosed)))
	return prev == breakerHalfOpen
}

// Failure records a failed cache call. Returns true when this failure
// transitioned the breaker to open.
func (b *breaker) Failure(now time.Time) bool {
	state := breakerState(b.state.Load())
	if state == breakerHalfOpen {
		b.openedAt.Store(now.UnixNano())
		return b.state.CompareAndSwap(int32(breakerHalfOpen), int32(breakerOpen))
	}

	if b.failures.Add(1) < b.threshold {
		return false
	}
	if b.state.CompareAndSwap(int32(breakerClosed), int32(breakerOpen)) {
		b.openedAt.Store(now.UnixNano())
		return true
	}
	return false
}

// State returns the current breaker state.
func (b *breaker) State() breakerState {
	return breakerState(b.state.Load())
}
