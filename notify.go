package signalpost

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/signalpost/signalpost/envelope"
	"github.com/signalpost/signalpost/id"
	"github.com/signalpost/signalpost/internal/entity"
)

// Reason explains a synchronous Notify rejection.
type Reason string

// Rejection reasons. None of these indicate an engine fault.
const (
	// ReasonNone accompanies accepted notifications.
	ReasonNone Reason = ""

	// ReasonConfigMissing means the tenant has no endpoint configured.
	ReasonConfigMissing Reason = "config_missing"

	// ReasonEventDisabled means the tenant opted out of this event type.
	ReasonEventDisabled Reason = "event_disabled"

	// ReasonInvalidPayload means the payload failed the tenant's JSON
	// Schema for this event type.
	ReasonInvalidPayload Reason = "invalid_payload"
)

// Accept is the synchronous result of a Notify call.
type Accept struct {
	// Accepted reports whether the notification entered the pipeline.
	Accepted bool

	// Reason explains a rejection. Empty when accepted.
	Reason Reason

	// EnvelopeID identifies the accepted envelope, for correlating
	// outcome callbacks. Zero when rejected.
	EnvelopeID id.ID
}

// NotifyOption configures a single Notify call.
type NotifyOption func(*notifyOptions)

type notifyOptions struct {
	priority *envelope.Priority
}

// WithPriority overrides the tenant's default priority for this
// notification.
func WithPriority(p envelope.Priority) NotifyOption {
	return func(o *notifyOptions) { o.priority = &p }
}

// Notify submits a notification for delivery to the tenant's endpoints.
//
// It returns once the envelope has been accepted into the pipeline and
// never blocks on the terminal delivery outcome. Delivery-time failures
// are resolved asynchronously (retry queue, failover, DLQ) and observable
// via logs, metrics, and the optional outcome callback; Notify itself
// only reports synchronous rejections.
func (e *Engine) Notify(ctx context.Context, tenantID, eventType string, payload json.RawMessage, opts ...NotifyOption) Accept {
	var o notifyOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := e.registry.Get(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, ErrTenantNotFound) {
			e.logger.ErrorContext(ctx, "tenant config lookup failed",
				"tenant", tenantID, "error", err)
		}
		return e.reject(ReasonConfigMissing)
	}

	if !cfg.Settings.EventEnabled(eventType) {
		return e.reject(ReasonEventDisabled)
	}

	if schema, ok := cfg.Settings.PayloadSchemas[eventType]; ok {
		if err := e.validator.Validate(schema, payload); err != nil {
			e.logger.DebugContext(ctx, "payload rejected by schema",
				"tenant", tenantID, "event_type", eventType, "error", err)
			return e.reject(ReasonInvalidPayload)
		}
	}

	priority := cfg.Settings.DefaultPriority
	if o.priority != nil {
		priority = *o.priority
	}

	env := &envelope.Envelope{
		Entity:    entity.New(),
		ID:        id.NewEnvelopeID(),
		TenantID:  tenantID,
		EventType: eventType,
		Payload:   payload,
		Priority:  priority,
	}

	if e.metrics != nil {
		e.metrics.RecordNotify("accepted")
	}

	// The aggregator routes: batched for batching tenants, direct path
	// for urgent envelopes and everyone else.
	e.batcher.Add(env, cfg)

	return Accept{Accepted: true, EnvelopeID: env.ID}
}

func (e *Engine) reject(reason Reason) Accept {
	if e.metrics != nil {
		e.metrics.RecordNotify(string(reason))
	}
	return Accept{Accepted: false, Reason: reason}
}
