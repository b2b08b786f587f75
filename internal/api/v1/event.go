package v1

import (
	"fmt"
	"time"
)

// MaxEventTypeLen bounds eventType so one client cannot bloat the dedup keyspace.
const MaxEventTypeLen = 128

// Event is one behavioural observation emitted by an instrumented page.
// It is immutable once queued by the client and lives until the server
// acknowledges the batch that carries it.
type Event struct {
	// EventType is the domain-specific name, e.g. "page_view", "click".
	EventType string `json:"eventType"`

	// Timestamp is the client clock at emission. The raw form it arrived in
	// is preserved because the dedup key is computed over that exact text.
	Timestamp Timestamp `json:"timestamp"`

	// SessionID scopes the event to a short-lived browsing session.
	SessionID string `json:"sessionId"`

	// WaiTag is the pseudonymous identifier stamped by the identity manager.
	WaiTag string `json:"waiTag,omitempty"`

	Domain     string     `json:"domain,omitempty"`
	URL        string     `json:"url,omitempty"`
	CustomerID CustomerID `json:"customerId,omitempty"`

	// Metadata is free-form context (referrer, element ids, correlation method...).
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// --- Server-side attributes, never accepted from clients ---

	// DedupKey is the idempotency key the event was admitted under.
	DedupKey string `json:"-"`

	// IngestedAt is when the server accepted the event.
	IngestedAt time.Time `json:"-"`
}

// Validate ensures the event carries the attributes needed for correlation and dedup.
func (e *Event) Validate() error {
	if e.EventType == "" {
		return fmt.Errorf("eventType is required")
	}
	if len(e.EventType) > MaxEventTypeLen {
		return fmt.Errorf("eventType exceeds %d characters", MaxEventTypeLen)
	}
	if e.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}
