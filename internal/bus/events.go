// Package bus provides the in-process event bus. The resolver, the gateway and
// the message router publish what they do; metrics, logging and the websocket
// observer subscribe.
package bus

import (
	"time"

	"github.com/google/uuid"
)

// EventType names an event.
type EventType string

const (
	// Resolution
	EventIntentResolved EventType = "intent_resolved"

	// Gateway
	EventGatewayRequest       EventType = "gateway_request"
	EventGatewayAttemptFailed EventType = "gateway_attempt_failed"
	EventGatewayExhausted     EventType = "gateway_exhausted"
	EventQuotaRejected        EventType = "quota_rejected"
	EventRequestQueued        EventType = "request_queued"
	EventQueueReplayed        EventType = "queue_replayed"
	EventBreakerStateChanged  EventType = "breaker_state_changed"

	// Vault and router
	EventCredentialChanged EventType = "credential_changed"
	EventMessageHandled    EventType = "message_handled"
)

// Event is a single occurrence published on the bus. Fields that do not
// apply to a type are left empty.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	// Request tracking
	RequestID string `json:"request_id,omitempty"`
	Component string `json:"component,omitempty"`

	// Resolution
	Input      string  `json:"input,omitempty"`
	Action     string  `json:"action,omitempty"`
	Source     string  `json:"source,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	// Gateway
	Kind       string `json:"kind,omitempty"` // complete or classify
	Attempt    int    `json:"attempt,omitempty"`
	QueueDepth int    `json:"queue_depth,omitempty"`
	State      string `json:"state,omitempty"`

	// Router
	MessageType string `json:"message_type,omitempty"`

	DurationMs int64  `json:"duration_ms,omitempty"`
	Content    string `json:"content,omitempty"`
	Code       string `json:"code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// NewEvent creates a new event with the current timestamp and a fresh ID.
func NewEvent(eventType EventType) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
	}
}

// Publisher is the publishing half of the bus. Components accept it so tests
// can pass nil or a recorder.
type Publisher interface {
	Publish(event Event) error
}

// Emit publishes on p when p is non-nil. Publishing failures are ignored;
// events are observational.
func Emit(p Publisher, event Event) {
	if p == nil {
		return
	}
	_ = p.Publish(event)
}
