// Package ratelimit implements per-tenant sliding-window admission control.
package ratelimit

import (
	"sync"
	"time"

	"github.com/signalpost/signalpost/clock"
)

// Decision is the result of an admission check.
type Decision struct {
	// OK reports whether the send was admitted.
	OK bool

	// RetryAfter is how long until the window has room again. Zero when OK.
	RetryAfter time.Duration
}

// Limiter admits at most limit sends per tenant within any rolling window.
// The window is a pruned list of send timestamps, garbage-collected on
// every access. Deterministic for a given clock and call sequence.
type Limiter struct {
	limit  int
	window time.Duration
	clock  clock.Clock

	mu      sync.Mutex
	windows map[string][]time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the limiter's time source.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// New creates a limiter admitting limit sends per window per tenant.
// A limit <= 0 disables limiting (every Admit succeeds).
func New(limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		limit:   limit,
		window:  window,
		clock:   clock.System{},
		windows: make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit records a send for the tenant if the rolling window has room.
// On rejection, RetryAfter is the remaining lifetime of the oldest
// timestamp still inside the window.
func (l *Limiter) Admit(tenantID string) Decision {
	if l.limit <= 0 {
		return Decision{OK: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	recent := l.prune(tenantID, now)

	if len(recent) >= l.limit {
		retryAfter := l.window - now.Sub(recent[0])
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Decision{OK: false, RetryAfter: retryAfter}
	}

	l.windows[tenantID] = append(recent, now)
	return Decision{OK: true}
}

// Reset clears the rate limit state for a tenant.
func (l *Limiter) Reset(tenantID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, tenantID)
}

// prune drops timestamps older than the window. Caller holds l.mu.
func (l *Limiter) prune(tenantID string, now time.Time) []time.Time {
	recent := l.windows[tenantID]
	cutoff := now.Add(-l.window)

	i := 0
	for i < len(recent) && !recent[i].After(cutoff) {
		i++
	}
	if i > 0 {
		recent = recent[i:]
		if len(recent) == 0 {
			delete(l.windows, tenantID)
		} else {
			l.windows[tenantID] = recent
		}
	}
	return recent
}
