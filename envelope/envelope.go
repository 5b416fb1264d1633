// Package envelope defines the unit of notification work flowing through
// the delivery engine.
package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/signalpost/signalpost/id"
	"github.com/signalpost/signalpost/internal/entity"
)

// Priority orders envelopes for delivery. Lower rank is more urgent.
type Priority int

const (
	// PriorityNormal is the default tier. The zero value so that an
	// unset tenant default means normal.
	PriorityNormal Priority = iota

	// PriorityUrgent bypasses batching and is drained ahead of other work.
	PriorityUrgent

	// PriorityLow is drained after urgent and normal work.
	PriorityLow
)

// Rank returns the numeric ordering rank (urgent first).
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority parses a priority name.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "urgent":
		return PriorityUrgent, nil
	case "normal":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	default:
		return PriorityNormal, fmt.Errorf("envelope: unknown priority %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(data []byte) error {
	parsed, err := ParsePriority(string(data))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Envelope is one notification accepted into the delivery pipeline. It is
// created per Notify call and destroyed on a terminal outcome.
type Envelope struct {
	entity.Entity

	// ID is the unique TypeID for this envelope.
	ID id.ID `json:"id"`

	// TenantID identifies the tenant whose endpoints receive this notification.
	TenantID string `json:"tenant_id"`

	// EventType is the dot-separated event type name (e.g. "member.banned").
	EventType string `json:"event_type"`

	// Payload is the formatter-produced notification body. Opaque to the engine.
	Payload json.RawMessage `json:"payload"`

	// Priority controls batching bypass and retry drain order.
	Priority Priority `json:"priority"`
}
