// Package retry holds failed-but-retryable deliveries, orders them by
// (priority, due time), and drains them against the tenant's endpoints
// with exponential backoff and one-shot backup failover.
package retry

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalpost/signalpost/clock"
	"github.com/signalpost/signalpost/delivery"
	"github.com/signalpost/signalpost/envelope"
	"github.com/signalpost/signalpost/observability"
	"github.com/signalpost/signalpost/ratelimit"
	"github.com/signalpost/signalpost/registry"
)

// Entry is one retryable delivery waiting in the queue. Endpoints are
// captured at admission so work already in flight drains to completion
// even if the tenant's configuration is deleted.
type Entry struct {
	// Env is the envelope being delivered.
	Env *envelope.Envelope

	// Primary is the main endpoint, retried up to the attempt limit.
	Primary registry.Endpoint

	// Backup, when set, receives exactly one attempt after the primary's
	// attempts are exhausted.
	Backup *registry.Endpoint

	// Attempt is the number of delivery attempts already made.
	Attempt int

	// ScheduledFor is when this entry becomes due.
	ScheduledFor time.Time

	// LastError is the error message from the most recent failed attempt.
	LastError string

	index int // heap bookkeeping
}

// TerminalFunc receives every entry that reaches a terminal state.
type TerminalFunc func(ctx context.Context, e *Entry, status envelope.Status, res delivery.Result)

// Config wires the queue's collaborators.
type Config struct {
	// Limiter is consulted before every attempt. A rejection reschedules
	// the entry without consuming an attempt.
	Limiter *ratelimit.Limiter

	// Sender performs the HTTP attempts.
	Sender *delivery.Sender

	// Backoff computes the delay between attempts.
	Backoff Backoff

	// MaxAttempts is the number of attempts against the primary endpoint
	// before failover is considered.
	MaxAttempts int

	// Terminal is invoked once per envelope on its terminal state.
	Terminal TerminalFunc

	// Clock overrides the time source. Nil uses the system clock.
	Clock clock.Clock

	// Metrics and Tracer are optional.
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Queue is the retry queue: a binary min-heap keyed by
// (priority rank, scheduledFor) drained by a single goroutine.
type Queue struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	entries entryHeap
	done    map[string]time.Time // terminal envelope IDs -> eviction deadline

	wake     chan struct{}
	draining atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewQueue creates a retry queue.
func NewQueue(cfg Config, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	return &Queue{
		cfg:    cfg,
		logger: logger,
		done:   make(map[string]time.Time),
		wake:   make(chan struct{}, 1),
	}
}

// Enqueue admits an entry and wakes the drain loop.
func (q *Queue) Enqueue(e *Entry) {
	q.mu.Lock()
	heap.Push(&q.entries, e)
	depth := len(q.entries)
	q.mu.Unlock()

	if q.cfg.Metrics != nil {
		q.cfg.Metrics.RetryQueueDepth.Set(float64(depth))
	}

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Start launches the drain loop. A second Start while draining is a no-op
// (single-flight).
func (q *Queue) Start(ctx context.Context) {
	if !q.draining.CompareAndSwap(false, true) {
		return
	}

	ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer q.draining.Store(false)
		q.drain(ctx)
	}()
}

// Stop cancels the drain loop and waits for the in-flight entry to finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

// drain repeatedly processes due entries, then sleeps until the next
// deadline or new work. Not-yet-due entries are skipped, never blocking
// another tenant's due work behind them.
func (q *Queue) drain(ctx context.Context) {
	for {
		due, next := q.takeDue()

		for _, e := range due {
			select {
			case <-ctx.Done():
				return
			default:
			}
			q.process(ctx, e)
		}

		if len(due) > 0 {
			// New entries may have become due while processing.
			continue
		}

		var timerC <-chan time.Time
		var timer *time.Timer
		if !next.IsZero() {
			wait := next.Sub(q.cfg.Clock.Now())
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-q.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// takeDue pops all due entries in (priority, scheduledFor) order and
// returns the earliest deadline among the entries left behind.
func (q *Queue) takeDue() ([]*Entry, time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.cfg.Clock.Now()
	var due, deferred []*Entry
	var next time.Time

	for len(q.entries) > 0 {
		e := heap.Pop(&q.entries).(*Entry)
		if e.ScheduledFor.After(now) {
			deferred = append(deferred, e)
			if next.IsZero() || e.ScheduledFor.Before(next) {
				next = e.ScheduledFor
			}
			continue
		}
		due = append(due, e)
	}
	for _, e := range deferred {
		heap.Push(&q.entries, e)
	}

	if q.cfg.Metrics != nil {
		q.cfg.Metrics.RetryQueueDepth.Set(float64(len(q.entries)))
	}
	return due, next
}

// process runs one delivery attempt for a due entry and decides its fate.
func (q *Queue) process(ctx context.Context, e *Entry) {
	if q.isDone(e.Env.ID.String()) {
		// Terminal state already reached; a racing re-enqueue is dropped.
		return
	}

	if d := q.cfg.Limiter.Admit(e.Env.TenantID); !d.OK {
		// Rescheduled without consuming an attempt.
		if q.cfg.Metrics != nil {
			q.cfg.Metrics.RateLimitRejectionsTotal.Inc()
		}
		e.ScheduledFor = q.cfg.Clock.Now().Add(d.RetryAfter)
		q.Enqueue(e)
		q.logger.DebugContext(ctx, "retry deferred by rate limit",
			"envelope_id", e.Env.ID, "tenant", e.Env.TenantID, "retry_after", d.RetryAfter)
		return
	}

	// Once the primary's attempts are exhausted, this attempt targets the
	// backup endpoint and is the envelope's last regardless of outcome.
	failover := e.Attempt >= q.cfg.MaxAttempts
	target := e.Primary
	if failover {
		if e.Backup == nil {
			q.finish(ctx, e, envelope.StatusDropped, delivery.Result{Error: e.LastError})
			return
		}
		target = *e.Backup
	}

	res := q.send(ctx, target, e)
	e.Attempt++

	if q.cfg.Metrics != nil {
		q.cfg.Metrics.RecordDelivery(deliveryStatus(res), float64(res.LatencyMs)/1000.0)
	}

	switch {
	case res.Classification == delivery.Success:
		q.finish(ctx, e, envelope.StatusDelivered, res)

	case !res.Classification.Retryable():
		q.finish(ctx, e, envelope.StatusDropped, res)

	case failover:
		// The single backup attempt failed.
		q.finish(ctx, e, envelope.StatusDropped, res)

	case e.Attempt >= q.cfg.MaxAttempts && e.Backup == nil:
		q.finish(ctx, e, envelope.StatusDropped, res)

	default:
		e.LastError = res.Error
		delay := res.RetryAfter
		if delay <= 0 {
			delay = q.cfg.Backoff.Delay(e.Attempt)
		}
		e.ScheduledFor = q.cfg.Clock.Now().Add(delay)
		q.Enqueue(e)
		q.logger.DebugContext(ctx, "retry scheduled",
			"envelope_id", e.Env.ID, "tenant", e.Env.TenantID,
			"attempt", e.Attempt, "next_at", e.ScheduledFor)
	}
}

// send performs one attempt, wrapped in a tracing span when configured.
func (q *Queue) send(ctx context.Context, target registry.Endpoint, e *Entry) delivery.Result {
	if q.cfg.Tracer != nil {
		var end observability.EndAttemptFunc
		ctx, end = q.cfg.Tracer.StartAttempt(ctx, e.Env.ID.String(), e.Env.EventType, target.URL, e.Attempt+1)
		res := q.cfg.Sender.Send(ctx, target, e.Env)
		end(res.StatusCode, res.LatencyMs, res.Error)
		return res
	}
	return q.cfg.Sender.Send(ctx, target, e.Env)
}

func (q *Queue) finish(ctx context.Context, e *Entry, status envelope.Status, res delivery.Result) {
	now := q.cfg.Clock.Now()

	q.mu.Lock()
	q.done[e.Env.ID.String()] = now.Add(q.doneRetention())
	for id, deadline := range q.done {
		if !deadline.After(now) {
			delete(q.done, id)
		}
	}
	q.mu.Unlock()

	if q.cfg.Terminal != nil {
		q.cfg.Terminal(ctx, e, status, res)
	}
}

// doneRetention is how long a terminal envelope's ID is remembered to
// suppress racing re-enqueues. One backoff-cap interval covers the
// longest window in which a stale reschedule can still arrive.
func (q *Queue) doneRetention() time.Duration {
	if q.cfg.Backoff.Cap > 0 {
		return q.cfg.Backoff.Cap
	}
	return time.Minute
}

func (q *Queue) isDone(envID string) bool {
	now := q.cfg.Clock.Now()

	q.mu.Lock()
	defer q.mu.Unlock()
	deadline, ok := q.done[envID]
	if ok && !deadline.After(now) {
		delete(q.done, envID)
		return false
	}
	return ok
}

func deliveryStatus(res delivery.Result) string {
	if res.Classification == delivery.Success {
		return "delivered"
	}
	if res.Classification.Retryable() {
		return "retried"
	}
	return "failed"
}

// entryHeap orders entries by (priority rank ascending, scheduledFor ascending).
type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	ri, rj := h[i].Env.Priority.Rank(), h[j].Env.Priority.Rank()
	if ri != rj {
		return ri < rj
	}
	return h[i].ScheduledFor.Before(h[j].ScheduledFor)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
