package v1

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Batch is the unit of transmission and retry. Common holds the fields whose
// encoded value is identical in every event; they are omitted from Events.
type Batch struct {
	BatchID string                       `json:"batchId"`
	Common  map[string]json.RawMessage   `json:"common,omitempty"`
	Events  []map[string]json.RawMessage `json:"events"`
}

// Fields that may move into the header. Timestamp and metadata always stay
// per event.
var factorable = []string{"eventType", "sessionId", "waiTag", "domain", "url", "customerId"}

// NewBatch encodes events into a batch with a fresh id. With compress set and
// more than one event, shared fields are factored into Common.
func NewBatch(events []Event, compress bool) (*Batch, error) {
	b := &Batch{
		BatchID: uuid.NewString(),
		Events:  make([]map[string]json.RawMessage, 0, len(events)),
	}
	for i := range events {
		raw, err := json.Marshal(&events[i])
		if err != nil {
			return nil, fmt.Errorf("failed to encode event %d: %w", i, err)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("failed to encode event %d: %w", i, err)
		}
		b.Events = append(b.Events, fields)
	}
	if compress && len(b.Events) > 1 {
		b.factor()
	}
	return b, nil
}

func (b *Batch) factor() {
	for _, key := range factorable {
		first, ok := b.Events[0][key]
		if !ok {
			continue
		}
		shared := true
		for _, fields := range b.Events[1:] {
			if v, ok := fields[key]; !ok || !bytes.Equal(v, first) {
				shared = false
				break
			}
		}
		if !shared {
			continue
		}
		if b.Common == nil {
			b.Common = make(map[string]json.RawMessage)
		}
		b.Common[key] = first
		for _, fields := range b.Events {
			delete(fields, key)
		}
	}
}

// Len returns the number of events in the batch.
func (b *Batch) Len() int {
	return len(b.Events)
}

// Expand merges Common back into every event and decodes them. Fields present
// on an event take precedence over the header.
func (b *Batch) Expand() ([]Event, error) {
	events := make([]Event, 0, len(b.Events))
	for i, fields := range b.Events {
		merged := make(map[string]json.RawMessage, len(fields)+len(b.Common))
		for k, v := range b.Common {
			merged[k] = v
		}
		for k, v := range fields {
			merged[k] = v
		}
		raw, err := json.Marshal(merged)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		var evt Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		events = append(events, evt)
	}
	return events, nil
}
