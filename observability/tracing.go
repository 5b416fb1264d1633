package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/signalpost/signalpost"

// Tracer provides OpenTelemetry spans around delivery attempts.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer using the global otel provider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// EndAttemptFunc closes a delivery attempt span with its result.
type EndAttemptFunc func(statusCode, latencyMs int, errMsg string)

// StartAttempt starts a span for one delivery attempt.
func (t *Tracer) StartAttempt(ctx context.Context, envelopeID, eventType, url string, attempt int) (context.Context, EndAttemptFunc) {
	ctx, span := t.tracer.Start(ctx, "signalpost.delivery",
		trace.WithAttributes(
			attribute.String("signalpost.envelope_id", envelopeID),
			attribute.String("signalpost.event_type", eventType),
			attribute.String("url.full", url),
			attribute.Int("signalpost.attempt", attempt),
		),
	)

	return ctx, func(statusCode, latencyMs int, errMsg string) {
		span.SetAttributes(
			attribute.Int("http.response.status_code", statusCode),
			attribute.Int("signalpost.latency_ms", latencyMs),
		)
		if errMsg != "" {
			span.SetAttributes(attribute.String("signalpost.error", errMsg))
		}
		span.End()
	}
}
