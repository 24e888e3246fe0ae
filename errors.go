package courier

import "errors"

var (
	// ErrDestroyed is returned when using a broker after Destroy.
	ErrDestroyed = errors.New("broker destroyed")
	// ErrEmptyClientID is returned when a client id is required but missing.
	ErrEmptyClientID = errors.New("client id is required")
	// ErrEmptyEventType is returned when an event type is required but missing.
	ErrEmptyEventType = errors.New("event type is required")
	// ErrNilHandler is returned when subscribing without a handler.
	ErrNilHandler = errors.New("handler is required")
	// ErrUnknownEventType is returned for event types outside the configured catalog.
	ErrUnknownEventType = errors.New("unknown event type")
)
