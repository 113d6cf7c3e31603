package event

import "errors"

// Sentinel errors for the event bus.
var (
	// ErrInvalidName is returned when an event name is empty.
	ErrInvalidName = errors.New("event name cannot be empty")

	// ErrNilHandler is returned when a nil handler is provided.
	ErrNilHandler = errors.New("handler cannot be nil")
)
