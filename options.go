package signalpost

import (
	"log/slog"
	"time"

	"github.com/signalpost/signalpost/clock"
	"github.com/signalpost/signalpost/envelope"
	"github.com/signalpost/signalpost/observability"
	"github.com/signalpost/signalpost/store"
)

// Option configures an Engine instance.
type Option func(*Engine) error

// WithStore sets the persistence backend for the Engine instance.
func WithStore(s store.Store) Option {
	return func(e *Engine) error {
		e.store = s
		return nil
	}
}

// WithLogger sets the structured logger for the Engine instance.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithClock overrides the engine's time source. Intended for tests.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) error {
		e.clock = c
		return nil
	}
}

// WithMetrics attaches metric instruments to the engine.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) error {
		e.metrics = m
		return nil
	}
}

// WithTracer attaches an OpenTelemetry tracer to delivery attempts.
func WithTracer(t *observability.Tracer) Option {
	return func(e *Engine) error {
		e.tracer = t
		return nil
	}
}

// WithOutcomeFunc registers a callback invoked once per envelope on its
// terminal state (delivered or dropped). Without it the engine remains
// fire-and-forget, observable via logs and metrics.
func WithOutcomeFunc(fn envelope.OutcomeFunc) Option {
	return func(e *Engine) error {
		e.outcome = fn
		return nil
	}
}

// WithMaxRetryAttempts sets the attempts against the primary endpoint
// before failover.
func WithMaxRetryAttempts(n int) Option {
	return func(e *Engine) error {
		e.config.MaxRetryAttempts = n
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per delivery attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		e.config.RequestTimeout = d
		return nil
	}
}

// WithRateLimit admits at most limit sends per tenant within any rolling
// window.
func WithRateLimit(limit int, window time.Duration) Option {
	return func(e *Engine) error {
		e.config.RateLimit = limit
		e.config.RateWindow = window
		return nil
	}
}

// WithBackoff sets the retry backoff policy.
func WithBackoff(base, cap time.Duration, jitter float64) Option {
	return func(e *Engine) error {
		e.config.BackoffBase = base
		e.config.BackoffCap = cap
		e.config.BackoffJitter = jitter
		return nil
	}
}

// WithCacheTTL sets the TTL for cached tenant configurations.
func WithCacheTTL(d time.Duration) Option {
	return func(e *Engine) error {
		e.config.CacheTTL = d
		return nil
	}
}

// WithBatchDefaults sets the flush interval and merge cap used by tenants
// that enable batching without their own settings.
func WithBatchDefaults(interval time.Duration, maxSize int) Option {
	return func(e *Engine) error {
		e.config.BatchInterval = interval
		e.config.MaxBatchSize = maxSize
		return nil
	}
}
