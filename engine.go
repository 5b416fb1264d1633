package signalpost

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/signalpost/signalpost/batch"
	"github.com/signalpost/signalpost/clock"
	"github.com/signalpost/signalpost/delivery"
	"github.com/signalpost/signalpost/dlq"
	"github.com/signalpost/signalpost/envelope"
	"github.com/signalpost/signalpost/id"
	"github.com/signalpost/signalpost/internal/entity"
	"github.com/signalpost/signalpost/observability"
	"github.com/signalpost/signalpost/ratelimit"
	"github.com/signalpost/signalpost/registry"
	"github.com/signalpost/signalpost/retry"
	"github.com/signalpost/signalpost/store"
)

// Engine is the root notification delivery engine.
type Engine struct {
	config    Config
	store     store.Store
	registry  *registry.Service
	validator *registry.Validator
	limiter   *ratelimit.Limiter
	sender    *delivery.Sender
	queue     *retry.Queue
	batcher   *batch.Aggregator
	dlqSvc    *dlq.Service
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	outcome   envelope.OutcomeFunc
	logger    *slog.Logger
	clock     clock.Clock

	mu      sync.Mutex // guards baseCtx and cancel
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new Engine with the given options.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		config:  DefaultConfig(),
		logger:  slog.Default(),
		clock:   clock.System{},
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.store == nil {
		return nil, ErrNoStore
	}
	e.wireServices()
	return e, nil
}

// wireServices initializes the internal services after options have been applied.
func (e *Engine) wireServices() {
	e.registry = registry.NewService(e.store, registry.Config{
		CacheTTL: e.config.CacheTTL,
		Clock:    e.clock,
	}, e.logger)

	e.validator = registry.NewValidator()

	e.dlqSvc = dlq.NewService(e.store, e.logger)

	e.limiter = ratelimit.New(e.config.RateLimit, e.config.RateWindow,
		ratelimit.WithClock(e.clock))

	e.sender = delivery.NewSender(e.config.RequestTimeout)

	e.queue = retry.NewQueue(retry.Config{
		Limiter: e.limiter,
		Sender:  e.sender,
		Backoff: retry.Backoff{
			Base:   e.config.BackoffBase,
			Cap:    e.config.BackoffCap,
			Jitter: e.config.BackoffJitter,
		},
		MaxAttempts: e.config.MaxRetryAttempts,
		Terminal:    e.onTerminal,
		Clock:       e.clock,
		Metrics:     e.metrics,
		Tracer:      e.tracer,
	}, e.logger)

	e.batcher = batch.NewAggregator(batch.Config{
		DefaultInterval: e.config.BatchInterval,
		DefaultMaxSize:  e.config.MaxBatchSize,
		Send:            e.dispatch,
		Metrics:         e.metrics,
	}, e.logger)
}

// Start launches the retry drain loop. Notify may be called before
// Start; deliveries issued until then run under a background context.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	e.baseCtx, e.cancel = context.WithCancel(ctx)
	ctx = e.baseCtx
	e.mu.Unlock()
	e.queue.Start(ctx)
}

// Stop gracefully shuts the engine down: pending batch buffers are
// flushed, in-flight direct deliveries finish, and the retry drain loop
// stops. Retry entries scheduled for the future are discarded; undelivered
// notifications do not survive the process.
func (e *Engine) Stop(_ context.Context) {
	e.batcher.FlushAll()
	e.wg.Wait()
	e.queue.Stop()
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// runCtx is the engine's run context, or context.Background before Start.
func (e *Engine) runCtx() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baseCtx
}

// Registry returns the tenant configuration service.
func (e *Engine) Registry() *registry.Service {
	return e.registry
}

// DLQ returns the dead letter queue service.
func (e *Engine) DLQ() *dlq.Service {
	return e.dlqSvc
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store {
	return e.store
}

// ReplayDLQ re-injects a dead envelope through the direct delivery path
// under the tenant's current configuration.
func (e *Engine) ReplayDLQ(ctx context.Context, dlqID id.ID) error {
	entry, err := e.dlqSvc.Get(ctx, dlqID)
	if err != nil {
		return err
	}

	cfg, err := e.registry.Get(ctx, entry.TenantID)
	if err != nil {
		return err
	}

	priority, err := envelope.ParsePriority(entry.Priority)
	if err != nil {
		priority = envelope.PriorityNormal
	}

	env := &envelope.Envelope{
		Entity:    entity.New(),
		ID:        id.NewEnvelopeID(),
		TenantID:  entry.TenantID,
		EventType: entry.EventType,
		Payload:   entry.Payload,
		Priority:  priority,
	}

	if err := e.dlqSvc.MarkReplayed(ctx, dlqID); err != nil {
		return err
	}

	e.dispatch(env, cfg.Primary, cfg.Backup)
	return nil
}

// dispatch launches one direct-path delivery: rate limiter, then deliverer,
// then the retry queue on retryable failure. Never blocks the caller.
func (e *Engine) dispatch(env *envelope.Envelope, primary registry.Endpoint, backup *registry.Endpoint) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.deliverDirect(env, primary, backup)
	}()
}

func (e *Engine) deliverDirect(env *envelope.Envelope, primary registry.Endpoint, backup *registry.Endpoint) {
	ctx := e.runCtx()

	if d := e.limiter.Admit(env.TenantID); !d.OK {
		// Delayed, not failed: queued without consuming an attempt.
		if e.metrics != nil {
			e.metrics.RateLimitRejectionsTotal.Inc()
		}
		e.queue.Enqueue(&retry.Entry{
			Env:          env,
			Primary:      primary,
			Backup:       backup,
			Attempt:      0,
			ScheduledFor: e.clock.Now().Add(d.RetryAfter),
		})
		e.logger.DebugContext(ctx, "send deferred by rate limit",
			"envelope_id", env.ID, "tenant", env.TenantID, "retry_after", d.RetryAfter)
		return
	}

	res := e.send(ctx, primary, env)
	if e.metrics != nil {
		e.metrics.RecordDelivery(resultStatus(res), float64(res.LatencyMs)/1000.0)
	}

	switch {
	case res.Classification == delivery.Success:
		e.finish(ctx, env, envelope.StatusDelivered, res, 1, primary.URL)

	case !res.Classification.Retryable():
		e.finish(ctx, env, envelope.StatusDropped, res, 1, primary.URL)

	case e.config.MaxRetryAttempts <= 1 && backup == nil:
		e.finish(ctx, env, envelope.StatusDropped, res, 1, primary.URL)

	default:
		delay := res.RetryAfter
		if delay <= 0 {
			delay = retry.Backoff{
				Base:   e.config.BackoffBase,
				Cap:    e.config.BackoffCap,
				Jitter: e.config.BackoffJitter,
			}.Delay(1)
		}
		e.queue.Enqueue(&retry.Entry{
			Env:          env,
			Primary:      primary,
			Backup:       backup,
			Attempt:      1,
			ScheduledFor: e.clock.Now().Add(delay),
			LastError:    res.Error,
		})
	}
}

func (e *Engine) send(ctx context.Context, target registry.Endpoint, env *envelope.Envelope) delivery.Result {
	if e.tracer != nil {
		var end observability.EndAttemptFunc
		ctx, end = e.tracer.StartAttempt(ctx, env.ID.String(), env.EventType, target.URL, 1)
		res := e.sender.Send(ctx, target, env)
		end(res.StatusCode, res.LatencyMs, res.Error)
		return res
	}
	return e.sender.Send(ctx, target, env)
}

// onTerminal handles retry-queue envelopes reaching a terminal state.
func (e *Engine) onTerminal(ctx context.Context, entry *retry.Entry, status envelope.Status, res delivery.Result) {
	url := entry.Primary.URL
	if entry.Backup != nil && entry.Attempt > e.config.MaxRetryAttempts {
		url = entry.Backup.URL
	}
	e.finish(ctx, entry.Env, status, res, entry.Attempt, url)
}

// finish settles an envelope: logging, DLQ retention on drop, and the
// optional outcome callback. Called exactly once per envelope.
func (e *Engine) finish(ctx context.Context, env *envelope.Envelope, status envelope.Status, res delivery.Result, attempts int, url string) {
	switch status {
	case envelope.StatusDelivered:
		e.logger.DebugContext(ctx, "delivered",
			"envelope_id", env.ID, "tenant", env.TenantID, "event_type", env.EventType,
			"attempts", attempts, "status", res.StatusCode, "latency_ms", res.LatencyMs)

	case envelope.StatusDropped:
		e.logger.WarnContext(ctx, "delivery failed permanently",
			"envelope_id", env.ID, "tenant", env.TenantID, "event_type", env.EventType,
			"attempts", attempts, "status", res.StatusCode, "error", res.Error)
		if _, err := e.dlqSvc.PushFailed(ctx, env, url, res.Error, res.StatusCode, attempts); err != nil {
			e.logger.ErrorContext(ctx, "push to DLQ failed",
				"envelope_id", env.ID, "error", err)
		} else if e.metrics != nil {
			e.metrics.DLQSize.Inc()
		}
	}

	if e.outcome != nil {
		e.outcome(envelope.Outcome{
			Envelope:    env,
			Status:      status,
			Attempts:    attempts,
			Endpoint:    url,
			StatusCode:  res.StatusCode,
			Error:       res.Error,
			CompletedAt: time.Now().UTC(),
		})
	}
}

func resultStatus(res delivery.Result) string {
	if res.Classification == delivery.Success {
		return "delivered"
	}
	if res.Classification.Retryable() {
		return "retried"
	}
	return "failed"
}
