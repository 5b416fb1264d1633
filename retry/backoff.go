package retry

import (
	"math/rand"
	"time"
)

// Backoff computes exponential retry delays:
//
//	delay(attempt) = min(Base * 2^(attempt-1), Cap)
//
// optionally spread by a jitter fraction. Delay is non-decreasing in
// attempt and never exceeds Cap (before jitter).
type Backoff struct {
	// Base is the delay after the first failed attempt.
	Base time.Duration

	// Cap bounds the delay growth.
	Cap time.Duration

	// Jitter, in [0, 1), spreads each delay uniformly within
	// ±Jitter of its nominal value. Zero disables jitter.
	Jitter float64
}

// Delay returns the wait before retry number attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Cap {
			d = b.Cap
			break
		}
	}
	if b.Cap > 0 && d > b.Cap {
		d = b.Cap
	}

	if b.Jitter > 0 {
		spread := 1 + b.Jitter*(2*rand.Float64()-1) //nolint:gosec // jitter needs no crypto randomness
		d = time.Duration(float64(d) * spread)
	}
	return d
}
