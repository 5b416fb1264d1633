// Package batch buffers low-urgency notifications per tenant and
// periodically flushes them as one combined delivery.
package batch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/signalpost/signalpost/envelope"
	"github.com/signalpost/signalpost/id"
	"github.com/signalpost/signalpost/internal/entity"
	"github.com/signalpost/signalpost/observability"
	"github.com/signalpost/signalpost/registry"
)

// BatchEventType is the event type carried by combined envelopes.
const BatchEventType = "notification.batch"

// SendFunc hands an envelope to the direct delivery path
// (rate limiter, deliverer, retry/failover contract).
type SendFunc func(env *envelope.Envelope, primary registry.Endpoint, backup *registry.Endpoint)

// Config configures the aggregator.
type Config struct {
	// DefaultInterval is used when a tenant's BatchInterval is zero.
	DefaultInterval time.Duration

	// DefaultMaxSize is used when a tenant's MaxBatchSize is zero.
	DefaultMaxSize int

	// Send delivers bypassed and combined envelopes.
	Send SendFunc

	// Metrics is optional.
	Metrics *observability.Metrics
}

// Aggregator buffers envelopes per tenant. Each tenant has at most one
// outstanding flush timer; endpoints and batching parameters are captured
// when the buffer is created so buffered work drains even if the tenant's
// configuration changes or disappears.
type Aggregator struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	buffers map[string]*buffer
	closed  bool
}

type buffer struct {
	envs     []*envelope.Envelope
	timer    *time.Timer
	primary  registry.Endpoint
	backup   *registry.Endpoint
	interval time.Duration
	maxSize  int
}

// NewAggregator creates an aggregator.
func NewAggregator(cfg Config, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		cfg:     cfg,
		logger:  logger,
		buffers: make(map[string]*buffer),
	}
}

// Add routes an envelope. Urgent envelopes and tenants without batching
// go straight to the direct path; everything else is buffered and a flush
// timer is armed if none is outstanding for the tenant.
func (a *Aggregator) Add(env *envelope.Envelope, cfg *registry.TenantConfig) {
	if !cfg.Settings.BatchingEnabled || env.Priority == envelope.PriorityUrgent {
		a.cfg.Send(env, cfg.Primary, cfg.Backup)
		return
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		a.cfg.Send(env, cfg.Primary, cfg.Backup)
		return
	}

	buf, ok := a.buffers[env.TenantID]
	if !ok {
		buf = &buffer{
			primary:  cfg.Primary,
			backup:   cfg.Backup,
			interval: cfg.Settings.BatchInterval,
			maxSize:  cfg.Settings.MaxBatchSize,
		}
		if buf.interval <= 0 {
			buf.interval = a.cfg.DefaultInterval
		}
		if buf.maxSize <= 0 {
			buf.maxSize = a.cfg.DefaultMaxSize
		}
		a.buffers[env.TenantID] = buf
	}

	buf.envs = append(buf.envs, env)
	if buf.timer == nil {
		tenantID := env.TenantID
		buf.timer = time.AfterFunc(buf.interval, func() {
			a.flush(tenantID)
		})
	}
	a.mu.Unlock()
}

// flush swaps out up to maxSize of the tenant's oldest buffered envelopes
// and sends them combined. Overflow stays buffered with a fresh timer.
// An empty buffer is a no-op.
func (a *Aggregator) flush(tenantID string) {
	a.mu.Lock()
	buf, ok := a.buffers[tenantID]
	if !ok {
		a.mu.Unlock()
		return
	}
	buf.timer = nil

	take := buf.envs
	if len(take) > buf.maxSize {
		take = take[:buf.maxSize]
		buf.envs = buf.envs[buf.maxSize:]
		if !a.closed {
			buf.timer = time.AfterFunc(buf.interval, func() {
				a.flush(tenantID)
			})
		}
	} else {
		delete(a.buffers, tenantID)
	}
	primary, backup := buf.primary, buf.backup
	a.mu.Unlock()

	if len(take) == 0 {
		return
	}

	combined := a.combineEnvelopes(tenantID, take)
	if a.cfg.Metrics != nil {
		a.cfg.Metrics.BatchFlushesTotal.Inc()
	}
	a.logger.Debug("batch flushed",
		"tenant", tenantID, "items", len(take), "envelope_id", combined.ID)

	a.cfg.Send(combined, primary, backup)
}

// FlushAll synchronously flushes every pending buffer and stops new
// buffering. Used on engine shutdown.
func (a *Aggregator) FlushAll() {
	a.mu.Lock()
	a.closed = true
	tenants := make([]string, 0, len(a.buffers))
	for tenantID, buf := range a.buffers {
		if buf.timer != nil {
			buf.timer.Stop()
			buf.timer = nil
		}
		tenants = append(tenants, tenantID)
	}
	a.mu.Unlock()

	for _, tenantID := range tenants {
		// Buffers larger than maxSize need repeated draining.
		for a.pending(tenantID) {
			a.flush(tenantID)
		}
	}
}

func (a *Aggregator) pending(tenantID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.buffers[tenantID]
	return ok && len(buf.envs) > 0
}

// Pending returns the number of buffered envelopes for a tenant.
func (a *Aggregator) Pending(tenantID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.buffers[tenantID]
	if !ok {
		return 0
	}
	return len(buf.envs)
}

func (a *Aggregator) combineEnvelopes(tenantID string, envs []*envelope.Envelope) *envelope.Envelope {
	return &envelope.Envelope{
		Entity:    entity.New(),
		ID:        id.NewBatchID(),
		TenantID:  tenantID,
		EventType: BatchEventType,
		Payload:   Combine(envs),
		Priority:  envelope.PriorityNormal,
	}
}
