package domain

import "encoding/json"

// EventHandler receives the raw data of one inbound envelope.
type EventHandler func(data json.RawMessage)

// Channel is the bidirectional event channel to the relay. One instance
// exists per process; it is constructed at startup and injected into the
// session rather than referenced as ambient state.
type Channel interface {
	// Emit sends one {event, data} envelope. Fire-and-forget: no delivery
	// acknowledgement is awaited.
	Emit(event string, data any) error
	// On registers a handler for an inbound event name and returns an ID
	// for deregistration.
	On(event string, handler EventHandler) string
	// Off removes a previously registered handler.
	Off(event, handlerID string)
	Close() error
}
