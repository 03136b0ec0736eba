package event

import (
	"time"

	"github.com/google/uuid"
)

// Payload keys shared by producers and consumers
const (
	KeyEntityType  = "entity_type"
	KeyEntityID    = "entity_id"
	KeyRequesterID = "requester_id"
	KeyStepOrder   = "step_order"
	KeyActorID     = "actor_id"
	KeyRecipients  = "recipients"
	KeyComments    = "comments"
	KeyReason      = "reason"
	KeyDelegateTo  = "delegate_to"
)

// Event is a side effect emitted by the engine after a successful save
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	InstanceID    int64                  `json:"instance_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates an event with a fresh ID that starts its own correlation chain
func NewEvent(eventType Type, instanceID int64, payload map[string]interface{}) *Event {
	id := uuid.NewString()
	return &Event{
		ID:            id,
		Type:          eventType,
		InstanceID:    instanceID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: id,
	}
}

// NewEventWithCorrelation creates an event linked to an existing correlation chain
func NewEventWithCorrelation(eventType Type, instanceID int64, payload map[string]interface{}, correlationID string) *Event {
	e := NewEvent(eventType, instanceID, payload)
	if correlationID != "" {
		e.CorrelationID = correlationID
	}
	return e
}

// WithPayload returns a copy of the event with key set
func (e *Event) WithPayload(key string, value interface{}) *Event {
	payload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	payload[key] = value

	c := *e
	c.Payload = payload
	return &c
}

func (e *Event) GetPayloadString(key string) string {
	if s, ok := e.Payload[key].(string); ok {
		return s
	}
	return ""
}

func (e *Event) GetPayloadInt(key string) int64 {
	switch v := e.Payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// GetPayloadStrings accepts both []string and the []interface{} produced by JSON decoding
func (e *Event) GetPayloadStrings(key string) []string {
	switch v := e.Payload[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
