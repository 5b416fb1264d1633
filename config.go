package signalpost

import "time"

// Config holds the configuration for an Engine instance.
type Config struct {
	// MaxRetryAttempts is the number of delivery attempts against a
	// tenant's primary endpoint before the backup (if any) gets its
	// single failover attempt.
	MaxRetryAttempts int

	// RequestTimeout is the HTTP timeout per delivery attempt.
	RequestTimeout time.Duration

	// RateLimit is the maximum sends admitted per tenant within any
	// rolling RateWindow. Zero disables limiting.
	RateLimit int

	// RateWindow is the rolling admission window.
	RateWindow time.Duration

	// BackoffBase is the retry delay after the first failed attempt.
	BackoffBase time.Duration

	// BackoffCap bounds retry delay growth.
	BackoffCap time.Duration

	// BackoffJitter, in [0, 1), spreads retry delays. Zero disables jitter.
	BackoffJitter float64

	// CacheTTL is the TTL for cached tenant configurations.
	CacheTTL time.Duration

	// BatchInterval is the default flush interval for tenants that enable
	// batching without setting their own.
	BatchInterval time.Duration

	// MaxBatchSize is the default cap on envelopes merged per flush.
	MaxBatchSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetryAttempts: 3,
		RequestTimeout:   10 * time.Second,
		RateLimit:        30,
		RateWindow:       time.Minute,
		BackoffBase:      5 * time.Second,
		BackoffCap:       5 * time.Minute,
		BackoffJitter:    0,
		CacheTTL:         5 * time.Minute,
		BatchInterval:    5 * time.Second,
		MaxBatchSize:     10,
	}
}
