package batch

import (
	"encoding/json"

	"github.com/signalpost/signalpost/envelope"
)

// combinedPayload is the wire shape of a merged batch delivery.
type combinedPayload struct {
	Batch bool              `json:"batch"`
	Count int               `json:"count"`
	Items []json.RawMessage `json:"items"`
}

type listedItem struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Combine merges envelope payloads into one batch payload.
//
// When every payload is a JSON object exposing a top-level "items" array
// (the formatter's combinable contract), the arrays are concatenated
// structurally. Otherwise the payloads are listed as-is, each tagged with
// its event type.
func Combine(envs []*envelope.Envelope) json.RawMessage {
	merged := combinedPayload{Batch: true, Items: []json.RawMessage{}}

	if items, ok := combinableItems(envs); ok && items != nil {
		merged.Items = items
	} else if !ok {
		for _, env := range envs {
			item, err := json.Marshal(listedItem{Type: env.EventType, Payload: env.Payload})
			if err != nil {
				continue
			}
			merged.Items = append(merged.Items, item)
		}
	}
	merged.Count = len(merged.Items)

	out, err := json.Marshal(merged)
	if err != nil {
		// Payloads are raw JSON already; marshal of the wrapper cannot
		// fail unless an item is corrupt. Degrade to an empty batch.
		out = []byte(`{"batch":true,"count":0,"items":[]}`)
	}
	return out
}

// combinableItems extracts and concatenates the "items" arrays when every
// payload carries one.
func combinableItems(envs []*envelope.Envelope) ([]json.RawMessage, bool) {
	var all []json.RawMessage
	for _, env := range envs {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(env.Payload, &obj); err != nil {
			return nil, false
		}
		raw, ok := obj["items"]
		if !ok {
			return nil, false
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, false
		}
		all = append(all, items...)
	}
	return all, true
}
