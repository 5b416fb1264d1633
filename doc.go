// Package signalpost provides an embeddable webhook notification delivery
// engine for multi-tenant applications.
//
// Signalpost is a library, not a service. An application submits
// notifications for a tenant with Notify; the engine decides when and how
// they reach the tenant's configured HTTP endpoints: sliding-window rate
// limiting, debounced batching of low-urgency notifications, exponential
// backoff retries, one-shot backup failover, and a dead letter queue for
// what could not be delivered.
//
// Key features:
//   - Per-tenant endpoint configuration behind a read-through TTL cache
//   - Priority tiers, with urgent notifications bypassing batching
//   - Five-way delivery outcome classification driving retry vs. drop
//   - HMAC-SHA256 signatures on every delivery
//   - Optional JSON Schema validation of payloads per event type
//   - Pluggable stores (memory, Redis, SQLite), Prometheus metrics,
//     OpenTelemetry spans
//
// Quick start:
//
//	eng, err := signalpost.New(
//	    signalpost.WithStore(memory.New()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	eng.Start(ctx)
//	defer eng.Stop(ctx)
//
//	eng.Registry().Set(ctx, &registry.TenantConfig{
//	    TenantID: "guild_123",
//	    Primary:  registry.Endpoint{URL: "https://example.com/hook"},
//	})
//
//	eng.Notify(ctx, "guild_123", "member.banned",
//	    json.RawMessage(`{"member_id":"m_42"}`))
package signalpost
