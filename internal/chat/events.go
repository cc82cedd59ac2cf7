package chat

import "encoding/json"

// EventType tags a domain stream event.
type EventType string

const (
	EventDelta    EventType = "delta"
	EventStatus   EventType = "status"
	EventError    EventType = "error"
	EventMetadata EventType = "metadata"
)

// Event is one domain event delivered by a streaming turn: a text delta, a
// status transition, a server-reported error, or a metadata entry.
type Event struct {
	Type    EventType `json:"type"`
	Delta   string    `json:"delta,omitempty"`
	Status  Status    `json:"status,omitempty"`
	Message string    `json:"message,omitempty"`
	Label   string    `json:"label,omitempty"`
	Value   string    `json:"value,omitempty"`
}

// Terminal reports whether this event ends the turn: an error event, or a
// status event carrying a terminal status.
func (e Event) Terminal() bool {
	if e.Type == EventError {
		return true
	}
	return e.Type == EventStatus && e.Status.Terminal()
}

// ParseEvent decodes a transport frame payload into a domain event. Frames
// that are not valid JSON, or that carry an unknown type, degrade to a raw
// text delta — a frame is never dropped and never an error.
func ParseEvent(raw string) Event {
	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return Event{Type: EventDelta, Delta: raw}
	}
	switch ev.Type {
	case EventDelta, EventStatus, EventError, EventMetadata:
		return ev
	default:
		return Event{Type: EventDelta, Delta: raw}
	}
}
