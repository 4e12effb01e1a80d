package amqp

import (
	"encoding/json"
	"time"
)

// EventMessage is the wire envelope for engine events. Identity is
// stable per logical occurrence so consumers can dedup redeliveries;
// Payload carries the event's own JSON shape.
type EventMessage struct {
	RoutingKey string          `json:"routing_key"`
	Identity   string          `json:"identity"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  time.Time       `json:"timestamp"`
}

// NewEventMessage wraps an already-marshalled event payload.
func NewEventMessage(routingKey, identity string, payload []byte) *EventMessage {
	return &EventMessage{
		RoutingKey: routingKey,
		Identity:   identity,
		Payload:    payload,
		Timestamp:  time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *EventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EventMessageFromJSON creates a message from JSON bytes
func EventMessageFromJSON(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
