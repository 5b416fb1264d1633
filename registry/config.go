package registry

import (
	"encoding/json"
	"time"

	"github.com/signalpost/signalpost/envelope"
	"github.com/signalpost/signalpost/internal/entity"
)

// Endpoint is a webhook delivery target.
type Endpoint struct {
	// URL is the delivery URL.
	URL string `json:"url"`

	// Secret is the HMAC signing secret for this endpoint. Never serialized
	// into API responses; persisted by stores.
	Secret string `json:"secret,omitempty"`

	// Headers are custom HTTP headers sent with each delivery.
	Headers map[string]string `json:"headers,omitempty"`
}

// Settings holds a tenant's delivery preferences.
type Settings struct {
	// EnabledEvents maps event type names to an enabled flag. A nil map
	// enables every event type; with a non-nil map, only types explicitly
	// set to true are delivered.
	EnabledEvents map[string]bool `json:"enabled_events,omitempty"`

	// DefaultPriority is applied when a Notify call carries no override.
	DefaultPriority envelope.Priority `json:"default_priority"`

	// BatchingEnabled buffers non-urgent notifications into combined deliveries.
	BatchingEnabled bool `json:"batching_enabled"`

	// BatchInterval is the debounce window before a buffered batch flushes.
	// Zero falls back to the engine default.
	BatchInterval time.Duration `json:"batch_interval"`

	// MaxBatchSize caps the number of envelopes merged into one delivery.
	// Zero falls back to the engine default.
	MaxBatchSize int `json:"max_batch_size"`

	// PayloadSchemas optionally maps event type names to JSON Schemas.
	// Payloads for a listed type are validated before acceptance.
	PayloadSchemas map[string]json.RawMessage `json:"payload_schemas,omitempty"`
}

// EventEnabled reports whether the tenant receives the given event type.
func (s Settings) EventEnabled(eventType string) bool {
	if s.EnabledEvents == nil {
		return true
	}
	return s.EnabledEvents[eventType]
}

// TenantConfig is a tenant's delivery configuration: where notifications
// go and how they are shaped.
type TenantConfig struct {
	entity.Entity

	// TenantID identifies the configuration owner.
	TenantID string `json:"tenant_id"`

	// Primary is the main delivery endpoint.
	Primary Endpoint `json:"primary"`

	// Backup is attempted exactly once after retries against Primary are
	// exhausted. Optional.
	Backup *Endpoint `json:"backup,omitempty"`

	// Settings holds delivery preferences.
	Settings Settings `json:"settings"`
}

// ListOpts configures pagination for tenant config listing.
type ListOpts struct {
	Offset int
	Limit  int
}
