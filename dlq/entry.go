// Package dlq retains permanently failed envelopes for inspection and replay.
package dlq

import (
	"encoding/json"
	"time"

	"github.com/signalpost/signalpost/id"
	"github.com/signalpost/signalpost/internal/entity"
)

// Entry is one permanently failed envelope in the dead letter queue.
type Entry struct {
	entity.Entity

	// ID is the unique TypeID for this DLQ entry.
	ID id.ID `json:"id"`

	// EnvelopeID references the failed envelope.
	EnvelopeID id.ID `json:"envelope_id"`

	// TenantID identifies the tenant whose delivery failed.
	TenantID string `json:"tenant_id"`

	// EventType is the envelope's event type, for filtering.
	EventType string `json:"event_type"`

	// Priority is the envelope's priority name.
	Priority string `json:"priority"`

	// URL is the last attempted endpoint URL.
	URL string `json:"url"`

	// Payload is the notification body that failed to deliver.
	Payload json.RawMessage `json:"payload"`

	// Error is the error message from the final attempt.
	Error string `json:"error"`

	// Attempts is the total number of delivery attempts made.
	Attempts int `json:"attempts"`

	// LastStatusCode is the HTTP status from the final attempt, if any.
	LastStatusCode int `json:"last_status_code,omitempty"`

	// ReplayedAt is set once the entry has been re-injected.
	ReplayedAt *time.Time `json:"replayed_at,omitempty"`

	// FailedAt is when the envelope permanently failed.
	FailedAt time.Time `json:"failed_at"`
}

// ListOpts configures filtering and pagination for DLQ listing.
type ListOpts struct {
	Offset   int
	Limit    int
	TenantID string
	From     *time.Time
	To       *time.Time
}
